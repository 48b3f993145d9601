package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/contactdesk/score-api/internal/core"
	"github.com/contactdesk/score-api/internal/mocks"
	"github.com/contactdesk/score-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func scoreLogLine(t *testing.T, rec core.LogRecord) string {
	t.Helper()
	payload, err := json.Marshal(rec)
	require.NoError(t, err)
	return fmt.Sprintf("[%s] score.INFO: Contact score processed %s", rec.Timestamp, payload)
}

type logHandlerFixture struct {
	log      *mocks.MockScoreLog
	handlers *LogHandlers
}

func newLogHandlerFixture(t *testing.T) *logHandlerFixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	log := mocks.NewMockScoreLog(ctrl)
	svc, err := service.NewScoreLogService(service.ScoreLogServiceOptions{
		Log: log,
		Now: func() time.Time { return time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	return &logHandlerFixture{
		log:      log,
		handlers: &LogHandlers{Svc: svc},
	}
}

func TestLogHandlers_ListLogs(t *testing.T) {
	f := newLogHandlerFixture(t)

	lines := []string{
		scoreLogLine(t, core.LogRecord{
			ID: 1, Name: "Ada Lovelace", Email: "ada@example.com",
			Score: 40, Timestamp: "2026-08-29T10:00:00Z",
		}),
		scoreLogLine(t, core.LogRecord{
			ID: 2, Name: "Mary Jackson", Email: "mary@example.com",
			Score: 80, Timestamp: "2026-08-30T11:00:00Z",
		}),
	}
	f.log.EXPECT().ReadAll(gomock.Any()).Return(lines, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/logs?page=1&per_page=10", nil)
	w := httptest.NewRecorder()
	f.handlers.ListLogs(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var page service.LogPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Entries, 2)
	// Newest first
	assert.Equal(t, int64(2), page.Entries[0].ID)
	assert.Equal(t, int64(1), page.Entries[1].ID)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 1, page.CurrentPage)

	// Pagination fields live beside data, not under a wrapper object.
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	for _, key := range []string{"data", "current_page", "last_page", "per_page", "total", "from", "to", "next_page", "prev_page"} {
		assert.Contains(t, body, key)
	}
	assert.NotContains(t, body, "meta")
	assert.Equal(t, "1", string(body["from"]))
	assert.Equal(t, "2", string(body["to"]))
}

func TestLogHandlers_ListLogs_MissingLogIsEmpty(t *testing.T) {
	f := newLogHandlerFixture(t)

	f.log.EXPECT().ReadAll(gomock.Any()).Return(nil, core.ErrLogNotFound)

	r := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
	w := httptest.NewRecorder()
	f.handlers.ListLogs(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var page service.LogPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Empty(t, page.Entries)
	assert.Equal(t, 0, page.Total)

	// An empty page serializes null range markers.
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "null", string(body["from"]))
	assert.Equal(t, "null", string(body["to"]))
}

func TestLogHandlers_DownloadLogs(t *testing.T) {
	t.Run("streams a csv attachment", func(t *testing.T) {
		f := newLogHandlerFixture(t)

		lines := []string{
			scoreLogLine(t, core.LogRecord{
				ID: 3, Name: "Katherine Johnson", Email: "katherine@example.com",
				Score: 97, Timestamp: "2026-08-30T09:00:00Z",
			}),
		}
		f.log.EXPECT().ReadAll(gomock.Any()).Return(lines, nil)

		r := httptest.NewRequest(http.MethodGet, "/api/logs/download", nil)
		w := httptest.NewRecorder()
		f.handlers.DownloadLogs(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "contact_scores.csv")
		assert.Contains(t, w.Body.String(), "ID,Name,Email,Score,Timestamp")
		assert.Contains(t, w.Body.String(), "Katherine Johnson")
	})

	t.Run("missing log yields 404 with no csv headers", func(t *testing.T) {
		f := newLogHandlerFixture(t)

		f.log.EXPECT().ReadAll(gomock.Any()).Return(nil, core.ErrLogNotFound)

		r := httptest.NewRequest(http.MethodGet, "/api/logs/download", nil)
		w := httptest.NewRecorder()
		f.handlers.DownloadLogs(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NotEqual(t, "text/csv", w.Header().Get("Content-Type"))
	})
}

func TestLogHandlers_LogStats(t *testing.T) {
	f := newLogHandlerFixture(t)

	lines := []string{
		scoreLogLine(t, core.LogRecord{
			ID: 1, Email: "ada@example.com", Score: 50, Timestamp: "2026-08-29T10:00:00Z",
		}),
		scoreLogLine(t, core.LogRecord{
			ID: 2, Email: "mary@example.com", Score: 70, Timestamp: "2026-08-30T11:00:00Z",
		}),
	}
	f.log.EXPECT().ReadAll(gomock.Any()).Return(lines, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/logs/stats", nil)
	w := httptest.NewRecorder()
	f.handlers.LogStats(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var stats service.LogStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 60, stats.AverageScore)
}
