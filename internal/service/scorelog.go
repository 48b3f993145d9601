package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/contactdesk/score-api/internal/core"
	"github.com/contactdesk/score-api/internal/domain/model"
	apperrors "github.com/contactdesk/score-api/internal/errors"
)

const (
	logStatsCacheKey = "scorelog:stats"
	logStatsCacheTTL = 30 * time.Second

	// backfillName is substituted when a log entry has no name and the
	// contact no longer exists.
	backfillName = "N/A"

	defaultLogPerPage = 10
	maxLogPerPage     = 100
)

// logLinePattern matches the marker line written by the file score log. The
// leading bracketed timestamp and channel token are ignored; the JSON payload
// is authoritative.
var logLinePattern = regexp.MustCompile(`^\[[^\]]+\]\s+\S+\s+Contact score processed\s+(\{.*\})\s*$`)

// LogPage is one page of parsed log entries, newest first. Pagination fields
// sit beside data at the top level; from and to are null on an empty page.
type LogPage struct {
	Entries     []model.LogEntry `json:"data"`
	CurrentPage int              `json:"current_page"`
	LastPage    int              `json:"last_page"`
	PerPage     int              `json:"per_page"`
	Total       int              `json:"total"`
	From        *int             `json:"from"`
	To          *int             `json:"to"`
	NextPage    *int             `json:"next_page"`
	PrevPage    *int             `json:"prev_page"`
}

// LogStats summarises the parsed score log.
type LogStats struct {
	Total        int `json:"total"`
	Today        int `json:"today"`
	AverageScore int `json:"average_score"`
}

// ScoreLogServiceOptions groups dependencies for ScoreLogService.
type ScoreLogServiceOptions struct {
	Log      core.ScoreLog          // Required: durable score log
	Contacts core.ContactRepository // Optional: name backfill source
	Cache    core.CacheRepository   // Optional: stats cache
	Logger   *slog.Logger
	Now      func() time.Time // Optional: clock override for tests
}

// ScoreLogService is the read model over the durable score log. It never
// writes to the log; parsing, backfill, pagination, CSV export and stats are
// all derived views over the raw lines.
type ScoreLogService struct {
	log      core.ScoreLog
	contacts core.ContactRepository
	cache    core.CacheRepository
	logger   *slog.Logger
	now      func() time.Time
}

// NewScoreLogService constructs a new ScoreLogService.
func NewScoreLogService(opts ScoreLogServiceOptions) (*ScoreLogService, error) {
	if opts.Log == nil {
		return nil, errors.New("ScoreLog is required")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "scorelog_service")
	}

	return &ScoreLogService{
		log:      opts.Log,
		contacts: opts.Contacts,
		cache:    opts.Cache,
		logger:   logger,
		now:      now,
	}, nil
}

// List returns one page of log entries, newest first. A missing log source is
// treated as an empty log for listing purposes.
func (s *ScoreLogService) List(ctx context.Context, page, perPage int) (*LogPage, error) {
	page, perPage = normalizeLogPagination(page, perPage)

	entries, err := s.parseAll(ctx)
	if err != nil {
		if errors.Is(err, core.ErrLogNotFound) {
			entries = nil
		} else {
			return nil, err
		}
	}

	total := len(entries)
	lastPage := (total + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}

	start := (page - 1) * perPage
	end := start + perPage
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	pageEntries := entries[start:end]
	if err := s.backfillNames(ctx, pageEntries); err != nil {
		return nil, err
	}

	result := &LogPage{
		Entries:     pageEntries,
		CurrentPage: page,
		LastPage:    lastPage,
		PerPage:     perPage,
		Total:       total,
	}
	if len(pageEntries) > 0 {
		from := start + 1
		to := end
		result.From = &from
		result.To = &to
	}
	if page < lastPage {
		next := page + 1
		result.NextPage = &next
	}
	if page > 1 {
		prev := page - 1
		result.PrevPage = &prev
	}

	return result, nil
}

// WriteCSV streams all log entries, newest first, as CSV. A missing log
// source is a client-visible not-found error.
func (s *ScoreLogService) WriteCSV(ctx context.Context, w io.Writer) error {
	entries, err := s.parseAll(ctx)
	if err != nil {
		if errors.Is(err, core.ErrLogNotFound) {
			return apperrors.NotFound("score log not found")
		}
		return err
	}

	if err := s.backfillNames(ctx, entries); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ID", "Name", "Email", "Score", "Timestamp"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, entry := range entries {
		record := []string{
			strconv.FormatInt(entry.ID, 10),
			entry.Name,
			entry.Email,
			strconv.Itoa(entry.Score),
			entry.Timestamp,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Stats returns summary statistics over the full parsed log. Results are
// cached for a short TTL; cache failures degrade to a fresh computation.
func (s *ScoreLogService) Stats(ctx context.Context) (*LogStats, error) {
	if cached := s.cachedStats(ctx); cached != nil {
		return cached, nil
	}

	entries, err := s.parseAll(ctx)
	if err != nil && !errors.Is(err, core.ErrLogNotFound) {
		return nil, err
	}

	stats := s.computeStats(entries)
	s.storeStats(ctx, stats)
	return stats, nil
}

func (s *ScoreLogService) computeStats(entries []model.LogEntry) *LogStats {
	stats := &LogStats{Total: len(entries)}
	if len(entries) == 0 {
		return stats
	}

	today := s.now().Local().Format("2006-01-02")
	var sum int
	for _, entry := range entries {
		sum += entry.Score
		if ts, err := time.Parse(time.RFC3339, entry.Timestamp); err == nil {
			if ts.Local().Format("2006-01-02") == today {
				stats.Today++
			}
		}
	}
	stats.AverageScore = int(math.Round(float64(sum) / float64(len(entries))))
	return stats
}

func (s *ScoreLogService) cachedStats(ctx context.Context) *LogStats {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, logStatsCacheKey)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "log stats cache read failed", "error", err)
		}
		return nil
	}
	if raw == nil {
		return nil
	}
	var stats LogStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil
	}
	return &stats
}

func (s *ScoreLogService) storeStats(ctx context.Context, stats *LogStats) {
	if s.cache == nil || stats == nil {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, logStatsCacheKey, raw, logStatsCacheTTL); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "log stats cache write failed", "error", err)
	}
}

// parseAll reads the raw log and returns the valid entries, newest first.
// Lines without the marker or with incomplete payloads are skipped.
func (s *ScoreLogService) parseAll(ctx context.Context) ([]model.LogEntry, error) {
	lines, err := s.log.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]model.LogEntry, 0, len(lines))
	for _, line := range lines {
		entry, ok := parseLogLine(line)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}

	// Newest first: the file is append-ordered.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func parseLogLine(line string) (model.LogEntry, bool) {
	match := logLinePattern.FindStringSubmatch(line)
	if match == nil {
		return model.LogEntry{}, false
	}

	var raw struct {
		ID        *int64  `json:"id"`
		Name      string  `json:"name"`
		Email     *string `json:"email"`
		Score     *int    `json:"score"`
		Timestamp *string `json:"timestamp"`
	}
	if err := json.Unmarshal([]byte(match[1]), &raw); err != nil {
		return model.LogEntry{}, false
	}
	if raw.ID == nil || raw.Email == nil || raw.Score == nil || raw.Timestamp == nil {
		return model.LogEntry{}, false
	}

	return model.LogEntry{
		ID:        *raw.ID,
		Name:      raw.Name,
		Email:     *raw.Email,
		Score:     *raw.Score,
		Timestamp: *raw.Timestamp,
	}, true
}

// backfillNames resolves missing names from the contact store. Deleted
// contacts keep the sentinel name.
func (s *ScoreLogService) backfillNames(ctx context.Context, entries []model.LogEntry) error {
	if s.contacts == nil {
		for i := range entries {
			if entries[i].Name == "" {
				entries[i].Name = backfillName
			}
		}
		return nil
	}

	resolved := make(map[int64]string)
	for i := range entries {
		if entries[i].Name != "" {
			continue
		}
		name, ok := resolved[entries[i].ID]
		if !ok {
			contact, err := s.contacts.GetByID(ctx, entries[i].ID)
			if err != nil {
				return fmt.Errorf("backfill name for contact %d: %w", entries[i].ID, err)
			}
			name = backfillName
			if contact != nil && contact.Name != "" {
				name = contact.Name
			}
			resolved[entries[i].ID] = name
		}
		entries[i].Name = name
	}
	return nil
}

func normalizeLogPagination(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultLogPerPage
	}
	if perPage > maxLogPerPage {
		perPage = maxLogPerPage
	}
	return page, perPage
}
