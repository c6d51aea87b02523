// Package subscriber implements the subscriber lifecycle: subscribe,
// unsubscribe, email verification, bulk import/export, and the listing and
// stats surface used by the admin UI.
//
// The service layer depends only on the Repository interface defined in this
// package; the Postgres implementation lives in repository/postgres.
package subscriber
