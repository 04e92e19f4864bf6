// Package storage persists scan summaries and order outcomes to a
// JSON journal on disk.
package storage

import (
	"time"

	"github.com/wheelhouse-trading/wheelhouse/internal/models"
)

// ScanSummary is the persisted digest of one completed scan.
type ScanSummary struct {
	ScanID        string    `json:"scan_id"`
	AsOf          time.Time `json:"as_of"`
	Symbols       int       `json:"symbols"`
	Opportunities int       `json:"opportunities"`
	Errors        int       `json:"errors"`
	Duration      string    `json:"duration"`
}

// Interface is the journal contract consumed by the scanner and the
// order orchestrator.
type Interface interface {
	RecordScan(summary ScanSummary) error
	LastScan() *ScanSummary
	AppendOutcomes(outcomes []models.OrderOutcome) error
	OutcomeHistory() []models.OrderOutcome
}

// Ensure implementations satisfy the contract at compile time.
var (
	_ Interface = (*Journal)(nil)
	_ Interface = (*MemoryJournal)(nil)
)
