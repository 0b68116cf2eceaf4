// Package client talks to the conversation backend.
//
// A Client wraps an auth.Store and issues authenticated HTTP requests.
// When the backend rejects a credential the client invalidates it,
// re-authenticates through the store's interactive flow, and retries the
// request exactly once. A second rejection surfaces as
// auth.ErrAuthenticationFailed.
//
// # Reads
//
// GetConversationHistory, GetConversationByID, and GetModels are plain
// synchronous calls. Listings may be served from the local repository when
// it holds the full requested window; conversation detail always goes to
// the backend so a deleted conversation is never resurrected from cache.
//
// # Streaming
//
// SendConversation starts one turn and returns immediately. The turn runs
// on its own goroutine, consuming the backend's SSE feed and folding
// fragments into a stream.Dispatcher. Every outcome, success or failure,
// reaches the caller through exactly one handler callback. The returned
// dispatcher doubles as the cancellation handle: Abandon suppresses any
// callback that has not yet fired.
package client
