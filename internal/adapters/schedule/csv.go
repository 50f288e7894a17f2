// Package schedule loads kickoff times for markets from enriched CSV files.
// The exchange does not expose kickoff for football markets, so discovery
// relies on these files.
package schedule

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/dipbot/internal/domain"
	"github.com/alejandrodnm/dipbot/internal/ports"
)

var _ ports.ScheduleSource = (*CSVSource)(nil)

// CSVSource reads one or more schedule files. Each file is re-read when its
// modification time changes, so schedules can be refreshed without a
// restart.
type CSVSource struct {
	paths []string

	mu      sync.Mutex
	modTime map[string]time.Time
	byFile  map[string][]domain.ScheduledMarket
}

// NewCSVSource creates a source over paths. Files are read lazily.
func NewCSVSource(paths ...string) *CSVSource {
	return &CSVSource{
		paths:   paths,
		modTime: make(map[string]time.Time),
		byFile:  make(map[string][]domain.ScheduledMarket),
	}
}

// Upcoming returns markets whose kickoff falls in (now, now+lookahead],
// ordered by kickoff. A ticker present in several files keeps the last one.
// A missing or unreadable file is logged and skipped.
func (s *CSVSource) Upcoming(_ context.Context, now time.Time, lookahead time.Duration) ([]domain.ScheduledMarket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make(map[string]domain.ScheduledMarket)
	loaded := 0
	for _, path := range s.paths {
		if err := s.refresh(path); err != nil {
			slog.Warn("schedule: could not load file", "path", path, "err", err)
			continue
		}
		loaded++
		for _, m := range s.byFile[path] {
			merged[m.Ticker] = m
		}
	}
	if loaded == 0 && len(s.paths) > 0 {
		return nil, errors.New("schedule.Upcoming: no schedule file could be loaded")
	}

	horizon := now.Add(lookahead)
	var out []domain.ScheduledMarket
	for _, m := range merged {
		if m.Kickoff.After(now) && !m.Kickoff.After(horizon) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kickoff.Equal(out[j].Kickoff) {
			return out[i].Ticker < out[j].Ticker
		}
		return out[i].Kickoff.Before(out[j].Kickoff)
	})
	return out, nil
}

func (s *CSVSource) refresh(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if prev, ok := s.modTime[path]; ok && prev.Equal(info.ModTime()) {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	markets, err := Parse(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	s.byFile[path] = markets
	s.modTime[path] = info.ModTime()
	slog.Info("schedule: loaded", "path", path, "markets", len(markets))
	return nil
}

// Parse reads a schedule CSV with a header row. Required columns are
// market_ticker and one of kickoff_ts or strike_date, given as unix seconds
// or RFC3339. market_title, yes_subtitle and event_ticker are optional.
// Rows with a missing ticker or unparseable kickoff are skipped.
func Parse(r io.Reader) ([]domain.ScheduledMarket, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["market_ticker"]; !ok {
		return nil, errors.New("missing market_ticker column")
	}
	_, hasKickoff := col["kickoff_ts"]
	_, hasStrike := col["strike_date"]
	if !hasKickoff && !hasStrike {
		return nil, errors.New("missing kickoff_ts or strike_date column")
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []domain.ScheduledMarket
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ticker := field(rec, "market_ticker")
		raw := field(rec, "kickoff_ts")
		if raw == "" {
			raw = field(rec, "strike_date")
		}
		kickoff, err := parseKickoff(raw)
		if ticker == "" || err != nil {
			slog.Debug("schedule: skipping row", "line", line, "ticker", ticker, "err", err)
			continue
		}

		title := field(rec, "market_title")
		if sub := field(rec, "yes_subtitle"); sub != "" && title != "" {
			title += " (" + sub + ")"
		}
		out = append(out, domain.ScheduledMarket{
			Ticker:      ticker,
			EventTicker: field(rec, "event_ticker"),
			Title:       title,
			Kickoff:     kickoff,
		})
	}
	return out, nil
}

func parseKickoff(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("empty kickoff")
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Unix(int64(secs), 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("kickoff %q: %w", raw, err)
	}
	return t.UTC(), nil
}
