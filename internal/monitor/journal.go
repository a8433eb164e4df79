package monitor

import (
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Entry is the persisted view of an open position. It exists for manual
// reconciliation after a crash; nothing resumes from it.
type Entry struct {
	Symbol       string          `json:"symbol"`
	OrderID      string          `json:"order_id"`
	OpenedAt     time.Time       `json:"opened_at"`
	BuyPrice     decimal.Decimal `json:"buy_price"`
	BuyQty       decimal.Decimal `json:"buy_qty"`
	Commission   decimal.Decimal `json:"commission"`
	TargetProfit decimal.Decimal `json:"target_profit"`
	StopLoss     decimal.Decimal `json:"stop_loss"`
	BreakEven    decimal.Decimal `json:"break_even"`
	Trailing     bool            `json:"trailing"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// EntryFor snapshots pos at levels.
func EntryFor(pos Position, levels Levels) *Entry {
	return &Entry{
		Symbol:       pos.Buy.Symbol,
		OrderID:      pos.Buy.ID,
		OpenedAt:     pos.OpenedAt,
		BuyPrice:     pos.Buy.Price,
		BuyQty:       pos.Buy.Qty,
		Commission:   pos.Buy.Commission,
		TargetProfit: levels.TargetProfit,
		StopLoss:     levels.StopLoss,
		BreakEven:    levels.BreakEven,
		Trailing:     levels.Trailing,
	}
}

// Journal keeps the open position in a JSON file.
type Journal struct {
	path string
}

// NewJournal creates a journal at path.
func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Path returns the journal file location.
func (j *Journal) Path() string { return j.path }

// Load reads the journal. It returns nil if no position is recorded.
func (j *Journal) Load() (*Entry, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Save replaces the journal with e.
func (j *Journal) Save(e *Entry) error {
	e.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return err
	}
	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, j.path)
}

// Remove deletes the journal; a missing file is not an error.
func (j *Journal) Remove() error {
	if err := os.Remove(j.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Archive moves a leftover journal aside so a new position cannot overwrite it.
// It returns the archived path, or "" when there was nothing to archive.
func (j *Journal) Archive(now time.Time) (string, error) {
	if _, err := os.Stat(j.path); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	dst := j.path + "." + now.UTC().Format("20060102T150405") + ".stale"
	if err := os.Rename(j.path, dst); err != nil {
		return "", err
	}
	return dst, nil
}
