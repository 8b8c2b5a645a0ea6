// Package daemon runs tourney's background work.
//
// Two jobs are scheduled with gocron:
//
//   - sync: re-derives every tournament's status from the clock, then
//     refreshes all pages from the API.
//   - sweep: evaluates reminder windows and delivers notifications.
//
// Each job runs once at startup and then on its interval. A job never
// overlaps itself. One trigger is tried at most MaxAttempts times with a
// growing backoff; a missing or rejected credential ends the trigger at
// once. After the final failure the job is marked failed and waits for its
// next occurrence.
//
// When a session path is configured, the daemon also watches the session
// file. A login done by another process (for example `tourney login`)
// triggers an immediate sync.
//
// # Graceful Shutdown
//
// Cancel the context passed to Start, or call Stop. Stop waits for
// running jobs to return.
package daemon
