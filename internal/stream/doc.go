// Package stream implements the dispatcher that turns an incremental
// response feed into ordered events for a caller-supplied handler.
//
// # State machine
//
// A dispatcher covers one conversation turn:
//
//	Idle -> Streaming -> Completed
//	                  -> Failed
//
// Fragments accumulate into a running ConversationDetail. Duplicate
// fragments are dropped by their transport sequence marker when one is
// present; fragments without markers are applied append-only. On a
// well-formed terminal payload, OnConversationComplete fires exactly once;
// on any transport error or malformed payload, OnError fires exactly once.
// No callbacks fire after either terminal callback, or after Abandon.
//
// # Delivery context
//
// Callbacks are invoked on the stream-reading goroutine, never on the
// goroutine that initiated the send.
package stream
