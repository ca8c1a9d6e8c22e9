// Package tasks starts backend sync and analyze tasks and follows them to completion.
//
// # Core Operations
//
//  1. [Engine.Run] : Trigger one task
//     - Sends the PATCH mutation through the query layer
//     - Optionally waits on the live notification channel for the matching
//     task_id to reach SUCCESS, FAILURE or REVOKED
//
//  2. [Engine.Bulk] : Trigger many tasks
//     - Worker pool throttled by a token bucket limiter
//     - Partial failures are collected, not fatal
//     - Optional JSON manifest summarizing every outcome
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Implementation
//
// [Engine] depends on:
//   - [Triggerer] : library.Queries
//   - [Notifier] : notify.Channel (only needed when waiting)
package tasks
