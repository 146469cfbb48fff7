// Package task tracks long-running server-side jobs on behalf of a client.
// It launches jobs against a remote service, polls their status endpoints
// until a terminal state, keeps an authoritative in-memory view of every
// in-flight job keyed by entity and task type, and projects last-known
// statuses onto domain entities for display. Snapshots of the tracked state
// are persisted through a pluggable key-value backend so that in-flight jobs
// survive a process restart.
package task
