package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tweetrelay/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// assignValue copies a mock row value into a scan destination.
func assignValue(dest, val any) {
	switch d := dest.(type) {
	case *int64:
		*d = val.(int64)
	case *int:
		*d = val.(int)
	case *string:
		*d = val.(string)
	case **string:
		if val == nil {
			*d = nil
		} else {
			s := val.(string)
			*d = &s
		}
	case *time.Time:
		*d = val.(time.Time)
	case **time.Time:
		if val == nil {
			*d = nil
		} else {
			t := val.(time.Time)
			*d = &t
		}
	case *types.Metadata:
		if val == nil {
			*d = nil
		} else {
			*d = val.(types.Metadata)
		}
	case *types.ScheduleStatus:
		*d = types.ScheduleStatus(val.(string))
	}
}

// --- Mock Row ---

type mockRow struct {
	vals    []any
	scanErr error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	for i, d := range dest {
		assignValue(d, r.vals[i])
	}
	return nil
}

// --- Mock Rows for Query ---

type mockRows struct {
	data    [][]any
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newMockRows(data [][]any) *mockRows {
	return &mockRows{data: data, idx: -1}
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *mockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx]
	for i, d := range dest {
		assignValue(d, row[i])
	}
	return nil
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

// itemRow builds a full scheduled_items row in column order.
func itemRow(id int64, scheduledAt time.Time, status string, attempts int, lastError any, sentAt any) []any {
	now := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)
	return []any{
		id, "pmid-1001", "oncology-q1", "New trial results look promising.",
		types.Metadata{"source": "pubmed"},
		scheduledAt, status, attempts, lastError, now, now, sentAt,
	}
}

// --- Insert ---

func TestScheduleRepository_Insert(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewScheduleRepository(dbx)

	created := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	dbx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{vals: []any{int64(42), "pending", 0, created, created}})

	item := &types.ScheduledItem{
		ExternalRef: "pmid-1001",
		Group:       "oncology-q1",
		Content:     "New trial results look promising.",
		ScheduledAt: time.Date(2024, 1, 15, 18, 30, 0, 0, time.UTC),
	}
	err := repo.Insert(context.Background(), item)
	require.NoError(t, err)

	assert.Equal(t, int64(42), item.ID)
	assert.Equal(t, types.StatusPending, item.Status)
	assert.Equal(t, 0, item.Attempts)
	assert.Equal(t, created, item.CreatedAt)
	dbx.AssertExpectations(t)
}

func TestScheduleRepository_Insert_DBError(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewScheduleRepository(dbx)

	dbx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("connection refused")})

	err := repo.Insert(context.Background(), &types.ScheduledItem{})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

// --- GetByID ---

func TestScheduleRepository_GetByID_NotFound(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewScheduleRepository(dbx)

	dbx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByID(context.Background(), 99)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundSchedule, appErr.Code)
}

func TestScheduleRepository_GetByID_Found(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewScheduleRepository(dbx)

	at := time.Date(2024, 1, 15, 18, 30, 0, 0, time.UTC)
	dbx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{vals: itemRow(7, at, "pending", 1, "timeout", nil)})

	item, err := repo.GetByID(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, int64(7), item.ID)
	assert.Equal(t, types.StatusPending, item.Status)
	assert.Equal(t, 1, item.Attempts)
	assert.Equal(t, "timeout", item.LastError)
	assert.Nil(t, item.SentAt)
	assert.True(t, item.ScheduledAt.Equal(at))
}

// --- SelectDue ---

func TestScheduleRepository_SelectDue_WindowArgs(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewScheduleRepository(dbx)

	now := time.Date(2024, 1, 15, 18, 32, 0, 0, time.UTC)
	lookback := 5 * time.Minute
	lookahead := 5 * time.Minute

	dbx.On("Query", mock.Anything, mock.AnythingOfType("string"),
		mock.MatchedBy(func(args []any) bool {
			return args[0] == 3 &&
				args[1].(time.Time).Equal(now.Add(-lookback)) &&
				args[2].(time.Time).Equal(now.Add(lookahead)) &&
				args[3] == 100
		})).
		Return(newMockRows([][]any{
			itemRow(1, now.Add(-2*time.Minute), "pending", 0, nil, nil),
			itemRow(2, now.Add(1*time.Minute), "pending", 2, "503 from receiver", nil),
		}), nil)

	items, err := repo.SelectDue(context.Background(), now, lookback, lookahead, 3, 100)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, int64(1), items[0].ID)
	assert.Equal(t, int64(2), items[1].ID)
	dbx.AssertExpectations(t)
}

func TestScheduleRepository_SelectDue_Empty(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewScheduleRepository(dbx)

	dbx.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(nil), nil)

	items, err := repo.SelectDue(context.Background(), time.Now().UTC(), time.Minute, time.Minute, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

// --- List ---

func TestScheduleRepository_List_FilterPlacement(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewScheduleRepository(dbx)

	dbx.On("Query", mock.Anything,
		mock.MatchedBy(func(sql string) bool {
			// group first, status second, ordered ascending
			return containsAll(sql, "group_name = $1", "status = $2", "ORDER BY scheduled_at ASC")
		}),
		mock.MatchedBy(func(args []any) bool {
			return len(args) == 2 && args[0] == "oncology-q1" && args[1] == "sent"
		})).
		Return(newMockRows(nil), nil)

	_, err := repo.List(context.Background(), types.ScheduleFilter{
		Group:  "oncology-q1",
		Status: types.StatusSent,
	})
	require.NoError(t, err)
	dbx.AssertExpectations(t)
}

func TestScheduleRepository_List_StatusAllSkipsPredicate(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewScheduleRepository(dbx)

	dbx.On("Query", mock.Anything,
		mock.MatchedBy(func(sql string) bool { return !containsAll(sql, "status =") }),
		mock.MatchedBy(func(args []any) bool { return len(args) == 0 })).
		Return(newMockRows(nil), nil)

	_, err := repo.List(context.Background(), types.ScheduleFilter{Status: types.StatusAll})
	require.NoError(t, err)
	dbx.AssertExpectations(t)
}

// --- Claim / ReleaseForRetry / MarkFailed ---

func TestScheduleRepository_Claim_Success(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewScheduleRepository(dbx)

	dbx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	claimed, err := repo.Claim(context.Background(), 5, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, claimed)
}

// last_error is declared NOT NULL DEFAULT '' in the migration; the claim must
// reset it with the empty string, never SQL NULL, or every claim would violate
// the constraint and no item could ever transition to sent.
func TestScheduleRepository_Claim_ResetsLastErrorToEmptyString(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewScheduleRepository(dbx)

	dbx.On("Exec", mock.Anything,
		mock.MatchedBy(func(sql string) bool {
			return containsAll(sql, "last_error = ''", "status = 'sent'") &&
				!strings.Contains(sql, "last_error = NULL")
		}),
		mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	_, err := repo.Claim(context.Background(), 5, time.Now().UTC())
	require.NoError(t, err)
	dbx.AssertExpectations(t)
}

func TestScheduleRepository_Claim_AlreadyClaimed(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewScheduleRepository(dbx)

	// Another selector flipped the row first: zero rows affected.
	dbx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	claimed, err := repo.Claim(context.Background(), 5, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, claimed, "a consumed claim must report false, not error")
}

func TestScheduleRepository_ReleaseForRetry(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewScheduleRepository(dbx)

	nextAt := time.Date(2024, 1, 15, 18, 40, 0, 0, time.UTC)
	dbx.On("Exec", mock.Anything, mock.AnythingOfType("string"),
		mock.MatchedBy(func(args []any) bool {
			return args[0] == 2 && args[1].(time.Time).Equal(nextAt) &&
				args[2] == "receiver returned 502" && args[3] == int64(5)
		})).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	released, err := repo.ReleaseForRetry(context.Background(), 5, 2, nextAt, "receiver returned 502")
	require.NoError(t, err)
	assert.True(t, released)
	dbx.AssertExpectations(t)
}

func TestScheduleRepository_MarkFailed_DBError(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewScheduleRepository(dbx)

	dbx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection reset"))

	_, err := repo.MarkFailed(context.Background(), 5, 3, "timeout")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

// --- UpdatePending ---

func TestScheduleRepository_UpdatePending_Success(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewScheduleRepository(dbx)

	at := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	dbx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{vals: itemRow(11, at, "pending", 0, nil, nil)}).Once()

	content := "Edited copy."
	item, err := repo.UpdatePending(context.Background(), 11, types.PendingUpdate{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, int64(11), item.ID)
	assert.Equal(t, types.StatusPending, item.Status)
}

func TestScheduleRepository_UpdatePending_NotPending(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewScheduleRepository(dbx)

	sentAt := time.Date(2024, 1, 15, 18, 31, 0, 0, time.UTC)

	// Conditional update misses, follow-up read shows the row is sent.
	dbx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows}).Once()
	dbx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{vals: itemRow(11, sentAt, "sent", 1, nil, sentAt)}).Once()

	content := "too late"
	_, err := repo.UpdatePending(context.Background(), 11, types.PendingUpdate{Content: &content})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictNotPending, appErr.Code)
	assert.Equal(t, "sent", appErr.Details["status"])
}

func TestScheduleRepository_UpdatePending_NotFound(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewScheduleRepository(dbx)

	dbx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows}).Twice()

	content := "nobody home"
	_, err := repo.UpdatePending(context.Background(), 404, types.PendingUpdate{Content: &content})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundSchedule, appErr.Code)
}

// containsAll reports whether s contains every substring.
func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
