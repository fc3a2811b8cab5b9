// Package delivery hands fired reminders and poll cards to the chat transport.
//
// Delivery is best-effort: each Envelope is resolved (channel first, then the
// optional recipient) and sent exactly once. Failures are classified into a
// Status, logged, counted and published on the event bus, but never retried
// and never propagated back into the timer that triggered them.
//
// # Throttling
//
// All sends share one token bucket so a burst of timers firing together
// cannot trip the platform's flood limits.
//
// # History
//
// For debugging and operator visibility, the dispatcher keeps a small
// in-memory history of recent attempts.
package delivery
