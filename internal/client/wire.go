// ABOUTME: Wire types and JSON helpers for the conversation backend API
// ABOUTME: Maps backend payload shapes onto the store domain types

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/loomchat/loom/internal/store"
)

// wireSummary is a conversation row in the listing payload.
type wireSummary struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	CreateTime float64 `json:"create_time"`
}

// wireConversations is the response of GET /conversations.
type wireConversations struct {
	Items  []wireSummary `json:"items"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// wireMessage is a message in detail and stream payloads.
type wireMessage struct {
	ID     string `json:"id"`
	Author struct {
		Role string `json:"role"`
	} `json:"author"`
	Content struct {
		ContentType string   `json:"content_type"`
		Parts       []string `json:"parts"`
	} `json:"content"`
	CreateTime float64           `json:"create_time"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// wireDetail is the response of GET /conversation/{id}.
type wireDetail struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Messages   []wireMessage `json:"messages"`
	CreateTime float64       `json:"create_time"`
	UpdateTime *float64      `json:"update_time,omitempty"`
}

// wireModels is the response of GET /models.
type wireModels struct {
	Models []wireModel `json:"models"`
}

type wireModel struct {
	Slug            string            `json:"slug"`
	MaxTokens       int               `json:"max_tokens"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Tags            []string          `json:"tags"`
	Capabilities    map[string]bool   `json:"capabilities"`
	ProductFeatures map[string]string `json:"product_features"`
	EnabledTools    []string          `json:"enabled_tools,omitempty"`
}

// epochToTime converts a backend unix-seconds timestamp (with fractional
// part) to time.Time.
func epochToTime(epoch float64) time.Time {
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

func (m *wireMessage) toMessage() store.Message {
	return store.Message{
		ID:        m.ID,
		Role:      store.Role(m.Author.Role),
		CreatedAt: epochToTime(m.CreateTime),
		Content: store.Content{
			Type:  m.Content.ContentType,
			Parts: m.Content.Parts,
		},
		Metadata: m.Metadata,
	}
}

func (d *wireDetail) toDetail() *store.ConversationDetail {
	detail := &store.ConversationDetail{
		ID:        d.ID,
		Title:     d.Title,
		CreatedAt: epochToTime(d.CreateTime),
	}
	if d.UpdateTime != nil {
		t := epochToTime(*d.UpdateTime)
		detail.UpdatedAt = &t
	}
	for i := range d.Messages {
		detail.Messages = append(detail.Messages, d.Messages[i].toMessage())
	}
	return detail
}

// getJSON issues an authenticated GET and decodes the JSON response body.
// 404 maps to store.ErrNotFound, other non-200 statuses to TransportError,
// and undecodable bodies to ErrMalformedResponse.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	resp, err := c.authorizedDo(ctx, c.httpClient, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return store.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return &TransportError{Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
