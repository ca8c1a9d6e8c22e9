// Package models defines the wire types exchanged with the tunedeck backend.
//
// The package contains three groups of types:
//
// 1. Library resources returned by the REST API
//   - [Playlist], [PlaylistDetail], [Track], [Album], [Artist]
//   - [AudioFeatures] and [PlaylistAnalysis] for computed audio statistics
//   - [Page] wraps every paginated listing
//
// 2. Task and account types
//   - [TaskReceipt] is returned when a sync or analyze task is triggered
//   - [User] is returned by the token validation endpoint
//
// 3. Live channel types
//   - [Message] is the envelope pushed over the notification websocket
//   - [Notification] describes one lifecycle event of a backend task
//
// Every type carries validate tags. [Validate] runs them at the API boundary so
// shape mismatches fail fast instead of leaking zero values into views.
package models
