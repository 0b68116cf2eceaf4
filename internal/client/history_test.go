// ABOUTME: Tests for conversation listing, detail lookup, and the model catalog
// ABOUTME: Covers paging validation, cache-first listings, and backend authority

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomchat/loom/internal/store"
)

func listingHandler(t *testing.T, hits *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.Equal(t, "/conversations", r.URL.Path)
		assert.Equal(t, "0", r.URL.Query().Get("offset"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))

		json.NewEncoder(w).Encode(wireConversations{
			Items: []wireSummary{
				{ID: "conv-2", Title: "Newest", CreateTime: 1700000100},
				{ID: "conv-1", Title: "Older", CreateTime: 1700000000},
			},
			Total:  5,
			Limit:  2,
			Offset: 0,
		})
	}
}

func TestGetConversationHistory_ReturnsPage(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(listingHandler(t, &hits))
	defer server.Close()

	c, _ := newTestClient(t, server.URL)

	page, err := c.GetConversationHistory(context.Background(), 0, 2)
	require.NoError(t, err)

	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, 0, page.Offset)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "conv-2", page.Items[0].ID)
	assert.Equal(t, "Newest", page.Items[0].Title)
	assert.LessOrEqual(t, len(page.Items), page.Limit)
}

func TestGetConversationHistory_RejectsBadWindow(t *testing.T) {
	c, logins := newTestClient(t, "http://unreachable.invalid")

	for _, tc := range []struct {
		name          string
		offset, limit int
		field         string
	}{
		{"zero limit", 0, 0, "limit"},
		{"negative limit", 0, -3, "limit"},
		{"negative offset", -1, 10, "offset"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.GetConversationHistory(context.Background(), tc.offset, tc.limit)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	assert.Equal(t, int32(0), logins.Load(), "validation must not touch the network")
}

func TestGetConversationHistory_ImpossiblePagingRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireConversations{
			Items: []wireSummary{
				{ID: "conv-1", Title: "Ghost", CreateTime: 1700000000},
				{ID: "conv-2", Title: "Ghost2", CreateTime: 1700000001},
			},
			Total:  1, // fewer than the returned window
			Limit:  2,
			Offset: 0,
		})
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL)

	_, err := c.GetConversationHistory(context.Background(), 0, 2)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestGetConversationHistory_ServedFromCacheWhenComplete(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(listingHandler(t, &hits))
	defer server.Close()

	repo := newTestRepo(t)
	c, _ := newTestClient(t, server.URL, WithRepository(repo))

	// First call misses the cache and fills it.
	page, err := c.GetConversationHistory(context.Background(), 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int32(1), hits.Load())

	// The repository now holds the full window, so the second call stays local.
	page, err = c.GetConversationHistory(context.Background(), 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "conv-2", page.Items[0].ID, "newest first")
	assert.Equal(t, int32(1), hits.Load(), "no second backend call")
}

func TestGetConversationByID_ReturnsDetail(t *testing.T) {
	detail := wireDetail{
		ID:         "conv-9",
		Title:      "Deep dive",
		CreateTime: 1700000000.5,
	}
	msg := wireMessage{ID: "msg-1", CreateTime: 1700000001}
	msg.Author.Role = "user"
	msg.Content.ContentType = "text"
	msg.Content.Parts = []string{"what is", "a monad"}
	detail.Messages = append(detail.Messages, msg)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/conversation/conv-9", r.URL.Path)
		json.NewEncoder(w).Encode(detail)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL)

	got, err := c.GetConversationByID(context.Background(), "conv-9")
	require.NoError(t, err)
	assert.Equal(t, "conv-9", got.ID)
	assert.Equal(t, "Deep dive", got.Title)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, store.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "what is\na monad", got.Messages[0].Text())
	assert.Equal(t, int64(1700000000), got.CreatedAt.Unix())
}

func TestGetConversationByID_NotFoundBeatsStaleCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	repo := newTestRepo(t)
	require.NoError(t, repo.UpsertDetail(context.Background(), &store.ConversationDetail{
		ID:    "conv-stale",
		Title: "Deleted upstream",
	}))

	c, _ := newTestClient(t, server.URL, WithRepository(repo))

	_, err := c.GetConversationByID(context.Background(), "conv-stale")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetConversationByID_EmptyID(t *testing.T) {
	c, _ := newTestClient(t, "http://unreachable.invalid")

	_, err := c.GetConversationByID(context.Background(), "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "id", verr.Field)
}

func TestGetModels_PreservesBackendOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		json.NewEncoder(w).Encode(wireModels{Models: []wireModel{
			{Slug: "gpt-large", MaxTokens: 8192, Title: "Large", Tags: []string{"flagship"}},
			{Slug: "gpt-small", MaxTokens: 4096, Title: "Small"},
		}})
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL)

	models, err := c.GetModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "gpt-large", models[0].Slug)
	assert.Equal(t, 8192, models[0].MaxTokens)
	assert.Equal(t, "gpt-small", models[1].Slug)
}

func TestGetModels_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL)

	_, err := c.GetModels(context.Background())
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestGetModels_BoundedByClientTimeout(t *testing.T) {
	stall := make(chan struct{})
	defer close(stall)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-stall:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))

	_, err := c.GetModels(context.Background())
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
}

func TestAuthorizedDo_TransportErrorOnUnreachableBackend(t *testing.T) {
	c, _ := newTestClient(t, "http://127.0.0.1:1")

	_, err := c.GetModels(context.Background())
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Zero(t, terr.Status)
}
