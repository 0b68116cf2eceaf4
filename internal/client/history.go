// ABOUTME: Read operations: conversation history, conversation detail, model catalog
// ABOUTME: Pure reads returning results synchronously, cache-first where safe

package client

import (
	"context"
	"fmt"

	"github.com/loomchat/loom/internal/store"
)

// GetConversationHistory returns one page of conversation summaries.
// Fails with ValidationError for limit <= 0 or offset < 0. Listings are
// served from the local repository when it holds the full requested window
// (staleness is acceptable for listing); otherwise the backend is queried
// and the cache refreshed.
func (c *Client) GetConversationHistory(ctx context.Context, offset, limit int) (*store.Page[store.ConversationSummary], error) {
	if limit <= 0 {
		return nil, &ValidationError{Field: "limit", Reason: fmt.Sprintf("must be positive, got %d", limit)}
	}
	if offset < 0 {
		return nil, &ValidationError{Field: "offset", Reason: fmt.Sprintf("must be non-negative, got %d", offset)}
	}

	if c.repo != nil {
		if page, ok := c.listFromCache(ctx, offset, limit); ok {
			return page, nil
		}
	}

	url := fmt.Sprintf("%s/conversations?offset=%d&limit=%d", c.baseURL, offset, limit)
	var wire wireConversations
	if err := c.getJSON(ctx, url, &wire); err != nil {
		return nil, err
	}

	if len(wire.Items) > limit || wire.Offset+len(wire.Items) > wire.Total {
		return nil, fmt.Errorf("%w: paging window %d+%d exceeds total %d",
			ErrMalformedResponse, wire.Offset, len(wire.Items), wire.Total)
	}

	page := &store.Page[store.ConversationSummary]{
		Items:  make([]store.ConversationSummary, 0, len(wire.Items)),
		Total:  wire.Total,
		Limit:  limit,
		Offset: offset,
	}
	for _, item := range wire.Items {
		summary := store.ConversationSummary{
			ID:        item.ID,
			Title:     item.Title,
			CreatedAt: epochToTime(item.CreateTime),
		}
		page.Items = append(page.Items, summary)

		if c.repo != nil {
			if err := c.repo.UpsertSummary(ctx, &summary); err != nil {
				c.logger.Warn("failed to cache conversation summary",
					"conversation_id", summary.ID, "error", err)
			}
		}
	}

	return page, nil
}

// listFromCache serves a listing page from the repository if it holds the
// complete requested window.
func (c *Client) listFromCache(ctx context.Context, offset, limit int) (*store.Page[store.ConversationSummary], bool) {
	total, err := c.repo.Count(ctx)
	if err != nil {
		c.logger.Warn("repository count failed, falling back to backend", "error", err)
		return nil, false
	}
	if total < offset+limit {
		return nil, false
	}

	page, err := c.repo.List(ctx, offset, limit)
	if err != nil {
		c.logger.Warn("repository list failed, falling back to backend", "error", err)
		return nil, false
	}
	return page, true
}

// GetConversationByID fetches a conversation with its full message sequence.
// The backend is authoritative: an id it does not know fails with
// store.ErrNotFound even if a stale cache entry exists.
func (c *Client) GetConversationByID(ctx context.Context, id string) (*store.ConversationDetail, error) {
	if id == "" {
		return nil, &ValidationError{Field: "id", Reason: "must not be empty"}
	}

	url := fmt.Sprintf("%s/conversation/%s", c.baseURL, id)
	var wire wireDetail
	if err := c.getJSON(ctx, url, &wire); err != nil {
		return nil, err
	}

	detail := wire.toDetail()
	if c.repo != nil {
		if err := c.repo.UpsertDetail(ctx, detail); err != nil {
			c.logger.Warn("failed to cache conversation detail",
				"conversation_id", detail.ID, "error", err)
		}
	}
	return detail, nil
}

// GetModels returns the backend's model catalog in its advertised order.
func (c *Client) GetModels(ctx context.Context) ([]store.ModelDescriptor, error) {
	var wire wireModels
	if err := c.getJSON(ctx, c.baseURL+"/models", &wire); err != nil {
		return nil, err
	}

	models := make([]store.ModelDescriptor, 0, len(wire.Models))
	for _, m := range wire.Models {
		models = append(models, store.ModelDescriptor{
			Slug:            m.Slug,
			MaxTokens:       m.MaxTokens,
			Title:           m.Title,
			Description:     m.Description,
			Tags:            m.Tags,
			Capabilities:    m.Capabilities,
			ProductFeatures: m.ProductFeatures,
			EnabledTools:    m.EnabledTools,
		})
	}
	return models, nil
}
