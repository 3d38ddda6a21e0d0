package journal

import (
	"context"
	"database/sql"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrade() TradeRecord {
	ist := time.FixedZone("IST", 5*3600+30*60)
	return TradeRecord{
		TradeID:    "01JNF3ZK8Y8ZQK4W3XG3M9Q0AB",
		Symbol:     "NIFTY 24850 CE 04 MAR 25",
		Instrument: "NSE_FO|42536",
		Type:       "CE",
		Strike:     24850,
		Quantity:   65,
		EntryTime:  time.Date(2025, 3, 4, 9, 41, 7, 0, ist),
		ExitTime:   time.Date(2025, 3, 4, 10, 2, 33, 0, ist),
		EntryPrice: 150,
		ExitPrice:  155.385,
		PnL:        350.025,
		PnLPercent: 3.59,
		ExitReason: "stop_loss",
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournal(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trades", "trades.csv")
	j, err := NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, j.RecordTrade(sampleTrade()))
	require.NoError(t, j.Close())

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{
		"2025-03-04", "NIFTY 24850 CE 04 MAR 25", "CE", "24850", "09:41:07", "10:02:33",
		"150.00", "155.39", "350.03", "3.59%", "stop_loss",
	}, rows[1])

	// reopening appends without a second header
	j, err = NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, j.RecordTrade(sampleTrade()))
	require.NoError(t, j.Close())
	assert.Len(t, readCSV(t, path), 3)
}

func TestSQLiteJournal(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)

	rec := sampleTrade()
	require.NoError(t, j.RecordTrade(rec))
	assert.Error(t, j.RecordTrade(rec), "duplicate trade id")

	got, err := j.Trades(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.TradeID, got[0].TradeID)
	assert.Equal(t, rec.PnL, got[0].PnL)
	assert.True(t, rec.ExitTime.Equal(got[0].ExitTime))
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM trades WHERE exit_reason = 'stop_loss'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	j, err := Open("none", "")
	require.NoError(t, err)
	assert.NoError(t, j.RecordTrade(sampleTrade()))
	assert.NoError(t, j.Close())

	_, err = Open("parquet", "x")
	assert.Error(t, err)

	j, err = Open("csv", filepath.Join(t.TempDir(), "t.csv"))
	require.NoError(t, err)
	assert.IsType(t, &CSVJournal{}, j)
	assert.NoError(t, j.Close())
}
