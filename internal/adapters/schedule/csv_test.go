package schedule_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/dipbot/internal/adapters/schedule"
)

const nflCSV = `event_ticker,market_ticker,market_title,yes_subtitle,strike_date
KXNFLGAME-25OCT19KCLV,KXNFLGAME-25OCT19KCLV-KC,Las Vegas at Kansas City,Kansas City,1760905500
KXNFLGAME-25OCT19KCLV,KXNFLGAME-25OCT19KCLV-LV,Las Vegas at Kansas City,Las Vegas,1760905500
KXNFLGAME-25OCT20TBDET,KXNFLGAME-25OCT20TBDET-DET,Tampa Bay at Detroit,,2025-10-20T23:00:00Z
,MISSING-TICKER-ROW-IS-FINE,,,not-a-date
`

const cfbCSV = `market_ticker,kickoff_ts
KXNCAAFGAME-25OCT18OSUWIS-OSU,1760806800
`

func TestParse(t *testing.T) {
	markets, err := schedule.Parse(strings.NewReader(nflCSV))
	require.NoError(t, err)
	require.Len(t, markets, 3)

	kc := markets[0]
	assert.Equal(t, "KXNFLGAME-25OCT19KCLV-KC", kc.Ticker)
	assert.Equal(t, "KXNFLGAME-25OCT19KCLV", kc.EventTicker)
	assert.Equal(t, "Las Vegas at Kansas City (Kansas City)", kc.Title)
	assert.Equal(t, time.Unix(1760905500, 0).UTC(), kc.Kickoff)

	det := markets[2]
	assert.Equal(t, "Tampa Bay at Detroit", det.Title)
	assert.Equal(t, time.Date(2025, 10, 20, 23, 0, 0, 0, time.UTC), det.Kickoff)
}

func TestParse_MissingColumns(t *testing.T) {
	_, err := schedule.Parse(strings.NewReader("ticker,kickoff_ts\nA,1\n"))
	assert.ErrorContains(t, err, "market_ticker")

	_, err = schedule.Parse(strings.NewReader("market_ticker,title\nA,x\n"))
	assert.ErrorContains(t, err, "kickoff_ts")
}

func TestCSVSource_Upcoming(t *testing.T) {
	dir := t.TempDir()
	nfl := filepath.Join(dir, "nfl.csv")
	cfb := filepath.Join(dir, "cfb.csv")
	require.NoError(t, os.WriteFile(nfl, []byte(nflCSV), 0o644))
	require.NoError(t, os.WriteFile(cfb, []byte(cfbCSV), 0o644))

	src := schedule.NewCSVSource(cfb, nfl, filepath.Join(dir, "missing.csv"))
	now := time.Unix(1760805000, 0) // 30 minutes before the CFB kickoff

	got, err := src.Upcoming(context.Background(), now, 30*time.Hour)
	require.NoError(t, err)

	var tickers []string
	for _, m := range got {
		tickers = append(tickers, m.Ticker)
	}
	assert.Equal(t, []string{
		"KXNCAAFGAME-25OCT18OSUWIS-OSU",
		"KXNFLGAME-25OCT19KCLV-KC",
		"KXNFLGAME-25OCT19KCLV-LV",
	}, tickers)

	// kickoff already passed: excluded
	got, err = src.Upcoming(context.Background(), time.Unix(1760806800, 0), time.Hour)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCSVSource_NoReadableFile(t *testing.T) {
	src := schedule.NewCSVSource(filepath.Join(t.TempDir(), "nope.csv"))
	_, err := src.Upcoming(context.Background(), time.Now(), time.Hour)
	assert.Error(t, err)
}
