// Package timeout schedules durable deferred actions.
//
// A scheduled unit of work is a Record persisted in the store's
// reserved "timeout" table plus an in-memory timer. The table is the
// source of truth: timers are a cache rebuilt from it at every ready
// signal, so a restart neither loses scheduled work nor fires it twice.
// Overdue records found during recovery fire immediately.
package timeout
