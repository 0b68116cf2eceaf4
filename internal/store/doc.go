// Package store defines the conversation domain types and the local
// conversation repository.
//
// # Overview
//
// The repository is a local cache/index of conversations the client has seen:
// summaries for listing and full details for continuation. It is keyed by
// conversation id and is lookup only: the backend is always the source of
// truth, and cache entries carry no TTL.
//
// # Types
//
// ConversationSummary is the listing view {id, title, createdTime}.
// ConversationDetail adds the ordered, append-only message sequence.
// Message bodies are typed content (content type + ordered parts).
// Page is one window of an offset/limit listing with its total count.
//
// # Storage
//
// SQLiteRepository persists the cache with modernc.org/sqlite. The schema is
// created automatically, WAL mode is enabled, and message ordering is stored
// explicitly so a cached conversation reads back in exactly the order it was
// written.
package store
