// Command migrate applies SQL migrations against the configured database.
//
//	migrate -dir migrations up
//	migrate -dir migrations down 1
package main

import (
	"errors"
	"flag"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
)

func main() {
	dir := flag.String("dir", "migrations", "migrations directory")
	flag.Parse()

	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("[Migrate] DATABASE_URL is required")
	}

	m, err := migrate.New("file://"+*dir, dsn)
	if err != nil {
		log.Fatalf("[Migrate] Init failed: %v", err)
	}
	defer m.Close()

	cmd := flag.Arg(0)
	switch cmd {
	case "", "up":
		err = m.Up()
	case "down":
		steps := 1
		if arg := flag.Arg(1); arg != "" {
			steps, err = strconv.Atoi(arg)
			if err != nil {
				log.Fatalf("[Migrate] Invalid step count %q", arg)
			}
		}
		err = m.Steps(-steps)
	case "version":
		v, dirty, verr := m.Version()
		if verr != nil {
			log.Fatalf("[Migrate] Version failed: %v", verr)
		}
		log.Printf("[Migrate] Version %d (dirty=%v)", v, dirty)
		return
	default:
		log.Fatalf("[Migrate] Unknown command %q", cmd)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Printf("[Migrate] No changes to apply")
		return
	}
	if err != nil {
		log.Fatalf("[Migrate] Failed: %v", err)
	}
	log.Printf("[Migrate] Done")
}
