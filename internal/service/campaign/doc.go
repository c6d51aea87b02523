// Package campaign implements campaign lifecycle management and dispatch.
//
// The service layer contains all business logic for creating, scheduling,
// cancelling, and sending campaigns. It depends on the Repository interface
// defined in this package and on a SubscriberSource for recipient
// resolution; Postgres implementations of both live in repository/postgres.
package campaign
