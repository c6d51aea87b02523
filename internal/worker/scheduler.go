package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/almanara/newsletter/internal/service/campaign"
)

// DefaultSchedulerPollInterval is how often to check for due campaigns.
const DefaultSchedulerPollInterval = 30 * time.Second

// Scheduler polls for scheduled campaigns whose send time has arrived and
// dispatches them. The campaign service's conditional status transition
// makes the poll safe against a concurrent manual send of the same
// campaign: only one of them wins the scheduled -> sending move.
type Scheduler struct {
	campaigns    *campaign.Service
	pollInterval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewScheduler creates a scheduler polling at the given interval.
// A non-positive interval uses the default.
func NewScheduler(campaigns *campaign.Service, pollInterval time.Duration) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = DefaultSchedulerPollInterval
	}
	return &Scheduler{
		campaigns:    campaigns,
		pollInterval: pollInterval,
	}
}

// Start begins the polling loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	log.Printf("[Scheduler] Started (poll interval %s)", s.pollInterval)
	return nil
}

// Stop halts the polling loop and waits for an in-flight dispatch to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	log.Printf("[Scheduler] Stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue()
		}
	}
}

func (s *Scheduler) dispatchDue() {
	due, err := s.campaigns.DueCampaigns(s.ctx)
	if err != nil {
		log.Printf("[Scheduler] Failed to list due campaigns: %v", err)
		return
	}

	for _, c := range due {
		if s.ctx.Err() != nil {
			return
		}

		report, err := s.campaigns.Send(s.ctx, c.ID)
		if err != nil {
			// Another sender may have won the transition; that's not a
			// scheduler failure.
			log.Printf("[Scheduler] Campaign %s: dispatch failed: %v", c.ID, err)
			continue
		}
		log.Printf("[Scheduler] Campaign %s: dispatched (sent=%d errors=%d)",
			c.ID, report.SentCount, report.Errors)
	}
}
