package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

var keywordColumns = []string{
	"id", "keyword", "domain", "country", "city", "engine", "device",
	"position", "url", "history", "last_result",
	"last_updated", "last_update_error", "updating",
}

func newMockStore(t *testing.T) (*KeywordStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s, err := NewKeywordStoreWithPool(mock, "")
	require.NoError(t, err)
	return s, mock
}

func TestLoadDecodesRowsInRequestOrder(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	updated := time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC)
	var never *time.Time

	rows := pgxmock.NewRows(keywordColumns).
		AddRow("1", "running shoes", "example.com", "US", "", "", "desktop",
			3, "https://example.com/run", `{"2024-5-1":3}`, `[{"title":"Run","url":"https://example.com/run","position":3}]`,
			&updated, "false", false).
		AddRow("2", "кроссовки", "example.ru", "RU", "Москва", "xmlriver-yandex", "mobile",
			0, "", `not json`, ``,
			never, `{"date":"2024-05-02T00:00:00Z","error":"timeout","scraper":"xmlriver-yandex"}`, true)

	mock.ExpectQuery(regexp.QuoteMeta("FROM keywords WHERE id = ANY($1)")).
		WithArgs([]string{"2", "missing", "1"}).
		WillReturnRows(rows)

	got, err := s.Load(context.Background(), []string{"2", "missing", "1"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, "2", got[0].ID)
	require.Equal(t, tracker.DeviceMobile, got[0].Device)
	require.Equal(t, "xmlriver-yandex", got[0].Engine)
	require.Empty(t, got[0].History)
	require.Empty(t, got[0].LastResult)
	require.True(t, got[0].LastUpdated.IsZero())
	require.NotNil(t, got[0].LastUpdateError)
	require.Equal(t, "timeout", got[0].LastUpdateError.Error)
	require.Equal(t, "xmlriver-yandex", got[0].LastUpdateError.Provider)
	require.True(t, got[0].Updating)

	require.Equal(t, "1", got[1].ID)
	require.Equal(t, map[string]int{"2024-5-1": 3}, got[1].History)
	require.Len(t, got[1].LastResult, 1)
	require.Equal(t, updated, got[1].LastUpdated)
	require.Nil(t, got[1].LastUpdateError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadEmptyIDsSkipsQuery(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	got, err := s.Load(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListIDs(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM keywords ORDER BY id")).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("1").AddRow("2"))

	ids, err := s.ListIDs(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEncodesColumns(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	now := time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE keywords SET").
		WithArgs(
			"1",
			5,
			"https://example.com/a",
			`{"2024-5-1":5}`,
			`[{"title":"A","url":"https://example.com/a","position":5}]`,
			&now,
			"false",
			false,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.Update(context.Background(), "1", tracker.KeywordUpdate{
		Position:    5,
		URL:         "https://example.com/a",
		History:     map[string]int{"2024-5-1": 5},
		LastResult:  []tracker.ResultItem{{Title: "A", URL: "https://example.com/a", Position: 5}},
		LastUpdated: now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStoresErrorObject(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	when := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var noTime *time.Time

	mock.ExpectExec("UPDATE keywords SET").
		WithArgs(
			"1", 0, "", `{}`, `[]`, noTime,
			`{"date":"2024-05-01T00:00:00Z","error":"boom","scraper":"serpapi"}`,
			false,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.Update(context.Background(), "1", tracker.KeywordUpdate{
		LastUpdateError: &tracker.UpdateError{Date: when, Error: "boom", Provider: "serpapi"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE keywords SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.Update(context.Background(), "ghost", tracker.KeywordUpdate{})
	require.ErrorIs(t, err, tracker.ErrNotFound)
}

func TestSetUpdating(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE keywords SET updating = $2 WHERE id = ANY($1)")).
		WithArgs([]string{"1", "2"}, true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	require.NoError(t, s.SetUpdating(context.Background(), []string{"1", "2"}, true))
	require.NoError(t, s.SetUpdating(context.Background(), nil, true))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryErrorsAreWrapped(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	boom := errors.New("conn closed")
	mock.ExpectQuery("SELECT id FROM keywords").WillReturnError(boom)

	_, err := s.ListIDs(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestDecodeUpdateError(t *testing.T) {
	t.Parallel()

	require.Nil(t, decodeUpdateError("false"))
	require.Nil(t, decodeUpdateError(""))
	e := decodeUpdateError("legacy plain text")
	require.NotNil(t, e)
	require.Equal(t, "legacy plain text", e.Error)
}
