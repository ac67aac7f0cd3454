// Package billing defines the core entities of the access-control and
// billing engine: payment plans, subscriptions, payment transactions, and
// usage records.
//
// Entities are plain structs with a Validate method enforcing their
// invariants. Status changes on transactions and subscriptions go through
// shared state machines, so an invalid transition (for example refunding a
// pending transaction, or reactivating a cancelled subscription) fails with a
// validation error rather than silently corrupting state.
//
// Billing period arithmetic is calendar-aware: advancing a monthly period
// from January 31 lands on the last day of February, not on March 2.
package billing
