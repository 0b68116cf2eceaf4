// ABOUTME: Domain types and Repository interface for the local conversation index
// ABOUTME: Defines ConversationSummary/Detail, Message, ModelDescriptor and Page

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested conversation does not exist
var ErrNotFound = errors.New("not found")

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentTypeText is the default content type for message bodies
const ContentTypeText = "text"

// Content is the typed body of a message: a content type plus ordered parts
type Content struct {
	Type  string   `json:"content_type"`
	Parts []string `json:"parts"`
}

// Message is a single turn in a conversation. Immutable after creation.
type Message struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	CreatedAt time.Time         `json:"create_time"`
	Content   Content           `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Text returns the message parts joined into a single string.
func (m *Message) Text() string {
	out := ""
	for i, p := range m.Content.Parts {
		if i > 0 {
			out += "\n"
		}
		out += p
	}
	return out
}

// ConversationSummary is the listing view of a conversation.
// Immutable once created; superseded by a new summary on each turn.
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"create_time"`
}

// ConversationDetail is a full conversation: summary fields plus the
// append-only ordered message sequence.
type ConversationDetail struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []Message  `json:"messages"`
	CreatedAt time.Time  `json:"create_time"`
	UpdatedAt *time.Time `json:"update_time,omitempty"`
}

// Summary derives the listing view from a detail.
func (d *ConversationDetail) Summary() ConversationSummary {
	return ConversationSummary{ID: d.ID, Title: d.Title, CreatedAt: d.CreatedAt}
}

// ModelDescriptor describes a backend model offering. Slug is the unique key.
type ModelDescriptor struct {
	Slug            string            `json:"slug"`
	MaxTokens       int               `json:"max_tokens"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Tags            []string          `json:"tags"`
	Capabilities    map[string]bool   `json:"capabilities"`
	ProductFeatures map[string]string `json:"product_features"`
	EnabledTools    []string          `json:"enabled_tools,omitempty"`
}

// Page is one window of an offset/limit-paginated listing.
// Invariants: len(Items) <= Limit and Offset+len(Items) <= Total under
// consistent backend state.
type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Repository is the local cache/index of known conversations. It is lookup
// only, not authoritative. The backend remains the source of truth.
type Repository interface {
	UpsertSummary(ctx context.Context, s *ConversationSummary) error
	UpsertDetail(ctx context.Context, d *ConversationDetail) error
	List(ctx context.Context, offset, limit int) (*Page[ConversationSummary], error)
	Get(ctx context.Context, id string) (*ConversationDetail, error)
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the repository
	Close() error
}
