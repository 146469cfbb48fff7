// Package events carries terminal task notifications from the tracking
// subsystem to presentation code. Pollers publish an event on every terminal
// transition; handlers turn them into user-visible notifications without the
// tracker knowing who is listening.
package events
