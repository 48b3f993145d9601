package data

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/contactdesk/score-api/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScoreLog(t *testing.T) *FileScoreLog {
	t.Helper()
	log, err := NewFileScoreLog(FileScoreLogOptions{
		Path:         filepath.Join(t.TempDir(), "logs", "scores.log"),
		TimeProvider: NewFixedTimeProvider(time.Date(2026, 8, 30, 14, 45, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	return log
}

func TestNewFileScoreLog_RequiresPath(t *testing.T) {
	_, err := NewFileScoreLog(FileScoreLogOptions{})
	require.Error(t, err)
}

func TestFileScoreLog_AppendAndReadAll(t *testing.T) {
	ctx := context.Background()
	log := newTestScoreLog(t)

	rec := core.LogRecord{
		ID:        7,
		Name:      "Dorothy Vaughan",
		Email:     "dorothy@example.com",
		Score:     93,
		Timestamp: "2026-08-30T14:45:00Z",
	}
	require.NoError(t, log.Append(ctx, rec))

	lines, err := log.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)

	want := `[2026-08-30T14:45:00Z] score.INFO: Contact score processed ` +
		`{"id":7,"name":"Dorothy Vaughan","email":"dorothy@example.com","score":93,"timestamp":"2026-08-30T14:45:00Z"}`
	assert.Equal(t, want, lines[0])
}

func TestFileScoreLog_AppendOrderPreserved(t *testing.T) {
	ctx := context.Background()
	log := newTestScoreLog(t)

	for i := 1; i <= 3; i++ {
		require.NoError(t, log.Append(ctx, core.LogRecord{
			ID:        int64(i),
			Email:     fmt.Sprintf("c%d@example.com", i),
			Score:     i * 10,
			Timestamp: "2026-08-30T14:45:00Z",
		}))
	}

	lines, err := log.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"id":1`)
	assert.Contains(t, lines[2], `"id":3`)
}

func TestFileScoreLog_ReadAllMissingFile(t *testing.T) {
	log := newTestScoreLog(t)

	lines, err := log.ReadAll(context.Background())
	require.ErrorIs(t, err, core.ErrLogNotFound)
	assert.Nil(t, lines)
}

func TestFileScoreLog_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	log := newTestScoreLog(t)

	const writers = 10
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = log.Append(ctx, core.LogRecord{
				ID:        int64(i),
				Email:     fmt.Sprintf("c%d@example.com", i),
				Score:     i,
				Timestamp: "2026-08-30T14:45:00Z",
			})
		}()
	}
	wg.Wait()

	lines, err := log.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, lines, writers)
}

func TestFileScoreLog_CancelledContext(t *testing.T) {
	log := newTestScoreLog(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, log.Append(ctx, core.LogRecord{ID: 1, Email: "a@example.com"}))
	_, err := log.ReadAll(ctx)
	require.Error(t, err)
}
