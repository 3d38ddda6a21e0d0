package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

var csvHeader = []string{
	"Date", "Symbol", "Type", "Strike", "Entry Time", "Exit Time",
	"Entry Price", "Exit Price", "PnL", "PnL %", "Exit Reason",
}

// CSVJournal appends one row per trade. The header is written once, when
// the file is created.
type CSVJournal struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

func NewCSV(path string) (*CSVJournal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	w := csv.NewWriter(f)
	if st.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			f.Close()
			return nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &CSVJournal{f: f, w: w}, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	err := j.w.Write([]string{
		t.ExitTime.Format("2006-01-02"),
		t.Symbol,
		t.Type,
		strconv.FormatFloat(t.Strike, 'f', -1, 64),
		t.EntryTime.Format("15:04:05"),
		t.ExitTime.Format("15:04:05"),
		money(t.EntryPrice),
		money(t.ExitPrice),
		money(t.PnL),
		money(t.PnLPercent) + "%",
		t.ExitReason,
	})
	if err != nil {
		return err
	}
	j.w.Flush()
	return j.w.Error()
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.w.Flush()
	if err := j.w.Error(); err != nil {
		return err
	}
	return j.f.Close()
}
