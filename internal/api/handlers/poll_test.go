package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tweetrelay/internal/scheduler"
	"tweetrelay/internal/types"
)

type mockDuePoller struct {
	pollFn func(ctx context.Context) (*scheduler.PollResult, error)
}

func (m *mockDuePoller) Poll(ctx context.Context) (*scheduler.PollResult, error) {
	return m.pollFn(ctx)
}

func servePoll(poller DuePoller, r *http.Request) *httptest.ResponseRecorder {
	h := NewPollHandler(poller, slog.New(slog.NewTextHandler(io.Discard, nil)))
	router := chi.NewRouter()
	h.RegisterRoutes(router)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestPollHandler_ReturnsClaimedItems(t *testing.T) {
	now := time.Date(2024, 1, 15, 18, 32, 0, 0, time.UTC)
	sentAt := now
	poller := &mockDuePoller{
		pollFn: func(context.Context) (*scheduler.PollResult, error) {
			return &scheduler.PollResult{
				Items: []*types.ScheduledItem{{
					ID:          9,
					ExternalRef: "pm-9",
					Group:       "launch",
					Content:     "the post",
					ScheduledAt: time.Date(2024, 1, 15, 18, 30, 0, 0, time.UTC),
					Status:      types.StatusSent,
					SentAt:      &sentAt,
				}},
				Timestamp: now,
				Window:    scheduler.DefaultPullWindow(),
			}, nil
		},
	}

	w := servePoll(poller, httptest.NewRequest(http.MethodGet, "/poll", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp PollResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.TweetsCount)
	assert.Equal(t, "2024-01-15T18:32:00Z", resp.Timestamp)
	assert.Equal(t, 15, resp.WindowMinutes)

	require.Len(t, resp.Tweets, 1)
	tweet := resp.Tweets[0]
	assert.Equal(t, int64(9), tweet.ID)
	assert.Equal(t, "pm-9", tweet.ExternalRef)
	assert.Equal(t, "launch", tweet.Group)
	assert.Equal(t, "the post", tweet.Payload)
	assert.Equal(t, "2024-01-15T18:30:00Z", tweet.ScheduledAtUTC)
	assert.Equal(t, "2024-01-15T18:32:00Z", tweet.SentAt)
}

func TestPollHandler_EmptyResultHasZeroCount(t *testing.T) {
	poller := &mockDuePoller{
		pollFn: func(context.Context) (*scheduler.PollResult, error) {
			return &scheduler.PollResult{
				Timestamp: time.Date(2024, 1, 15, 18, 32, 0, 0, time.UTC),
				Window:    scheduler.DefaultPullWindow(),
			}, nil
		},
	}

	w := servePoll(poller, httptest.NewRequest(http.MethodGet, "/poll", nil))

	require.Equal(t, http.StatusOK, w.Code)

	// tweets must serialize as an empty array, not null.
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, "[]", string(raw["tweets"]))
	assert.Equal(t, "0", string(raw["tweets_count"]))
}

func TestPollHandler_RepoErrorIs500(t *testing.T) {
	poller := &mockDuePoller{
		pollFn: func(context.Context) (*scheduler.PollResult, error) {
			return nil, errors.New("select failed")
		},
	}

	w := servePoll(poller, httptest.NewRequest(http.MethodGet, "/poll", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
}
