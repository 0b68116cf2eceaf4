// ABOUTME: Handler contract for streamed conversation turns
// ABOUTME: Exactly one terminal callback fires per turn, never both

package stream

import "github.com/loomchat/loom/internal/store"

// Handler receives the outcome of a streamed conversation turn.
// Exactly one of the two callbacks fires per turn.
type Handler interface {
	// OnConversationComplete delivers the finished conversation.
	OnConversationComplete(detail *store.ConversationDetail)

	// OnError delivers the terminal failure.
	OnError(err error)
}

// HandlerFuncs adapts plain functions to the Handler interface.
// Nil fields are treated as no-ops.
type HandlerFuncs struct {
	Complete func(*store.ConversationDetail)
	Error    func(error)
}

func (h HandlerFuncs) OnConversationComplete(detail *store.ConversationDetail) {
	if h.Complete != nil {
		h.Complete(detail)
	}
}

func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}
