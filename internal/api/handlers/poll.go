package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tweetrelay/internal/core"
	"tweetrelay/internal/scheduler"
)

// DuePoller claims due items for the pull delivery path.
type DuePoller interface {
	Poll(ctx context.Context) (*scheduler.PollResult, error)
}

// PollTweet is one claimed item in the poll response.
type PollTweet struct {
	ID             int64  `json:"id"`
	ExternalRef    string `json:"externalRef"`
	Group          string `json:"group"`
	Payload        string `json:"payload"`
	ScheduledAtUTC string `json:"scheduledAtUTC"`
	SentAt         string `json:"sentAt"`
}

// PollResponse is the wire contract of GET /v1/poll. The external poller
// expects this exact shape, so it is not wrapped in the API envelope.
type PollResponse struct {
	Success       bool        `json:"success"`
	TweetsCount   int         `json:"tweets_count"`
	Tweets        []PollTweet `json:"tweets"`
	Timestamp     string      `json:"timestamp"`
	WindowMinutes int         `json:"window_minutes"`
}

// PollHandler serves the pull delivery endpoint. It is unauthenticated:
// every item returned is already marked sent, and the caller is trusted to
// use the payload (at-most-once, fire-and-forget).
type PollHandler struct {
	poller DuePoller
	logger *slog.Logger
}

// NewPollHandler creates a PollHandler with the provided dependencies.
func NewPollHandler(poller DuePoller, l *slog.Logger) *PollHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PollHandler{poller: poller, logger: l}
}

// RegisterRoutes mounts the poll route on the provided chi.Router.
func (h *PollHandler) RegisterRoutes(r chi.Router) {
	r.Get("/poll", h.Poll)
}

// Poll handles GET /v1/poll.
func (h *PollHandler) Poll(w http.ResponseWriter, r *http.Request) {
	result, err := h.poller.Poll(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := PollResponse{
		Success:       true,
		TweetsCount:   len(result.Items),
		Tweets:        make([]PollTweet, len(result.Items)),
		Timestamp:     result.Timestamp.UTC().Format(time.RFC3339),
		WindowMinutes: result.Window.LookbackMinutes(),
	}
	for i, item := range result.Items {
		tweet := PollTweet{
			ID:             item.ID,
			ExternalRef:    item.ExternalRef,
			Group:          item.Group,
			Payload:        item.Content,
			ScheduledAtUTC: item.ScheduledAt.UTC().Format(time.RFC3339),
		}
		if item.SentAt != nil {
			tweet.SentAt = item.SentAt.UTC().Format(time.RFC3339)
		}
		resp.Tweets[i] = tweet
	}

	core.JSON(w, r, http.StatusOK, resp)
}
