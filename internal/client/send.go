// ABOUTME: Streaming send: builds the turn request, consumes the SSE feed, drives the dispatcher
// ABOUTME: All outcomes reach the handler; the initiating call returns immediately

package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loomchat/loom/internal/store"
	"github.com/loomchat/loom/internal/stream"
)

// ModelAuto lets the backend select the model for a turn.
const ModelAuto = "auto"

// sseTerminal is the stream's end-of-data marker.
const sseTerminal = "[DONE]"

// SendParams describes one conversation turn.
type SendParams struct {
	// Text is the user message.
	Text string

	// ConversationID continues an existing conversation when set. It is
	// validated against the backend id space: an unknown id fails with
	// store.ErrNotFound instead of silently starting a new conversation.
	ConversationID string

	// Model is the target model slug; empty or ModelAuto lets the backend pick.
	Model string
}

// wireSendRequest is the body of POST /conversation.
type wireSendRequest struct {
	Message         wireMessage `json:"message"`
	Model           string      `json:"model"`
	ConversationID  string      `json:"conversation_id,omitempty"`
	ParentMessageID string      `json:"parent_message_id,omitempty"`
}

// wireFragment is one SSE data frame of a streamed turn.
type wireFragment struct {
	Seq            string       `json:"seq,omitempty"`
	ConversationID string       `json:"conversation_id"`
	Title          string       `json:"title,omitempty"`
	Message        *wireMessage `json:"message,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// SendConversation starts one streamed conversation turn and returns
// immediately. Every outcome (validation failure, unknown continuation
// target, transport error, authentication exhaustion, or the completed
// conversation) is delivered through exactly one of the handler's
// callbacks, never through this call. The error return is non-nil only for
// a nil handler.
//
// The returned dispatcher is the caller's cancellation handle: Abandon
// suppresses all pending callbacks. Callers are expected to run at most one
// outstanding turn per handler instance.
func (c *Client) SendConversation(ctx context.Context, params SendParams, h stream.Handler) (*stream.Dispatcher, error) {
	if h == nil {
		return nil, errors.New("handler must not be nil")
	}

	d := stream.New(h, stream.WithLogger(c.logger))
	go c.runTurn(ctx, params, d)
	return d, nil
}

// runTurn executes a turn on the stream-reading goroutine. All handler
// callbacks fire from here.
func (c *Client) runTurn(ctx context.Context, params SendParams, d *stream.Dispatcher) {
	if strings.TrimSpace(params.Text) == "" {
		d.Fail(&ValidationError{Field: "text", Reason: "must not be empty"})
		return
	}
	model := params.Model
	if model == "" {
		model = ModelAuto
	}

	userMsg := store.Message{
		ID:        uuid.New().String(),
		Role:      store.RoleUser,
		CreatedAt: time.Now().UTC(),
		Content: store.Content{
			Type:  store.ContentTypeText,
			Parts: []string{params.Text},
		},
	}

	// Continuation targets are always validated against the backend id
	// space; a stale cache entry must not mask a deleted conversation.
	seed := &store.ConversationDetail{}
	parentMessageID := ""
	if params.ConversationID != "" {
		prior, err := c.GetConversationByID(ctx, params.ConversationID)
		if err != nil {
			d.Fail(err)
			return
		}
		seed = prior
		if n := len(prior.Messages); n > 0 {
			parentMessageID = prior.Messages[n-1].ID
		}
	}
	seed.Messages = append(seed.Messages, userMsg)
	d.Seed(seed)

	body, err := json.Marshal(wireSendRequest{
		Message: wireMessage{
			ID: userMsg.ID,
			Author: struct {
				Role string `json:"role"`
			}{Role: string(store.RoleUser)},
			Content: struct {
				ContentType string   `json:"content_type"`
				Parts       []string `json:"parts"`
			}{ContentType: store.ContentTypeText, Parts: []string{params.Text}},
			CreateTime: float64(userMsg.CreatedAt.UnixNano()) / float64(time.Second),
		},
		Model:           model,
		ConversationID:  params.ConversationID,
		ParentMessageID: parentMessageID,
	})
	if err != nil {
		d.Fail(fmt.Errorf("marshaling request: %w", err))
		return
	}

	// Streams outlive any whole-request timeout; ctx bounds them instead.
	resp, err := c.authorizedDo(ctx, c.streamClient, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/conversation", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		return req, nil
	})
	if err != nil {
		d.Fail(err)
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		d.Fail(store.ErrNotFound)
		return
	case resp.StatusCode != http.StatusOK:
		d.Fail(&TransportError{Status: resp.StatusCode})
		return
	}

	c.consumeStream(ctx, resp, d)
}

// consumeStream reads SSE data frames until the terminal marker, folding
// each fragment into the dispatcher.
func (c *Client) consumeStream(ctx context.Context, resp *http.Response, d *stream.Dispatcher) {
	scanner := bufio.NewScanner(resp.Body)
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line signals end of event
		if line == "" {
			if len(dataLines) == 0 {
				continue
			}
			data := strings.TrimSpace(strings.Join(dataLines, "\n"))
			dataLines = nil

			if data == sseTerminal {
				c.finishTurn(ctx, d)
				return
			}
			if err := c.applyFragment(data, d); err != nil {
				d.Fail(err)
				return
			}
			continue
		}

		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		// Other SSE fields (event:, id:, comments) carry no payload here.
	}

	if ctx.Err() != nil {
		// Caller abandoned the turn; suppress callbacks.
		d.Abandon()
		return
	}
	if err := scanner.Err(); err != nil {
		d.Fail(&TransportError{Err: err})
		return
	}
	d.Fail(fmt.Errorf("%w: stream ended without terminal marker", ErrMalformedResponse))
}

// applyFragment decodes one data frame and folds it into the dispatcher.
func (c *Client) applyFragment(data string, d *stream.Dispatcher) error {
	var frag wireFragment
	if err := json.Unmarshal([]byte(data), &frag); err != nil {
		return fmt.Errorf("%w: undecodable stream fragment: %v", ErrMalformedResponse, err)
	}
	if frag.Error != "" {
		return &TransportError{Err: fmt.Errorf("backend stream error: %s", frag.Error)}
	}

	f := stream.Fragment{
		Seq:            frag.Seq,
		ConversationID: frag.ConversationID,
		Title:          frag.Title,
	}
	if frag.Message != nil {
		f.Message = stream.FragmentMessage{
			ID:          frag.Message.ID,
			Role:        store.Role(frag.Message.Author.Role),
			ContentType: frag.Message.Content.ContentType,
			Delta:       strings.Join(frag.Message.Content.Parts, "\n"),
		}
		if frag.Message.CreateTime != 0 {
			f.Message.CreatedAt = epochToTime(frag.Message.CreateTime)
		}
	}

	if err := d.Apply(f); err != nil {
		return err
	}
	return nil
}

// finishTurn fires the completion callback, then records the completed
// conversation in the local repository.
func (c *Client) finishTurn(ctx context.Context, d *stream.Dispatcher) {
	d.Complete()
	if d.State() != stream.StateCompleted {
		// Abandoned while the terminal marker was in flight.
		return
	}

	detail := d.Detail()
	if c.repo != nil && detail.ID != "" {
		// Cache write failures must not fail the turn; the backend copy is
		// authoritative and the cache self-heals on the next read.
		if err := c.repo.UpsertDetail(ctx, detail); err != nil {
			c.logger.Warn("failed to cache completed conversation",
				"conversation_id", detail.ID, "error", err)
		}
	}
}
