package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wheelhouse-trading/wheelhouse/internal/models"
)

// journalData is the on-disk document.
type journalData struct {
	LastScan    *ScanSummary          `json:"last_scan,omitempty"`
	Outcomes    []models.OrderOutcome `json:"outcomes"`
	LastUpdated time.Time             `json:"last_updated"`
}

// Journal is a file-backed journal guarded by a read-write mutex.
// Every mutation is flushed with a write-to-temp-then-rename so a
// crash never leaves a half-written file.
type Journal struct {
	mu   sync.RWMutex
	path string
	data journalData
}

// NewJournal opens or creates the journal at path. Parent directories
// are created as needed.
func NewJournal(path string) (*Journal, error) {
	j := &Journal{path: path}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	if _, err := os.Stat(path); err == nil {
		if err := j.load(); err != nil {
			return nil, fmt.Errorf("loading journal: %w", err)
		}
	}

	return j, nil
}

func (j *Journal) load() error {
	data, err := os.ReadFile(j.path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &j.data)
}

// save flushes the current document. Callers must hold the write lock.
func (j *Journal) save() error {
	j.data.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(j.data, "", "  ")
	if err != nil {
		return err
	}

	tmpFile := j.path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpFile, j.path)
}

// RecordScan stores the latest scan summary.
func (j *Journal) RecordScan(summary ScanSummary) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.data.LastScan = &summary
	return j.save()
}

// LastScan returns the most recent scan summary, nil when none exists.
func (j *Journal) LastScan() *ScanSummary {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.data.LastScan == nil {
		return nil
	}
	s := *j.data.LastScan
	return &s
}

// AppendOutcomes records a batch of order outcomes.
func (j *Journal) AppendOutcomes(outcomes []models.OrderOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.data.Outcomes = append(j.data.Outcomes, outcomes...)
	return j.save()
}

// OutcomeHistory returns all recorded outcomes, oldest first.
func (j *Journal) OutcomeHistory() []models.OrderOutcome {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]models.OrderOutcome, len(j.data.Outcomes))
	copy(out, j.data.Outcomes)
	return out
}

// MemoryJournal is an in-memory Interface implementation for tests and
// paper mode without persistence.
type MemoryJournal struct {
	mu       sync.RWMutex
	lastScan *ScanSummary
	outcomes []models.OrderOutcome
}

// NewMemoryJournal returns an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal { return &MemoryJournal{} }

// RecordScan stores the latest scan summary.
func (m *MemoryJournal) RecordScan(summary ScanSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastScan = &summary
	return nil
}

// LastScan returns the most recent scan summary, nil when none exists.
func (m *MemoryJournal) LastScan() *ScanSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastScan == nil {
		return nil
	}
	s := *m.lastScan
	return &s
}

// AppendOutcomes records a batch of order outcomes.
func (m *MemoryJournal) AppendOutcomes(outcomes []models.OrderOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcomes...)
	return nil
}

// OutcomeHistory returns all recorded outcomes, oldest first.
func (m *MemoryJournal) OutcomeHistory() []models.OrderOutcome {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.OrderOutcome, len(m.outcomes))
	copy(out, m.outcomes)
	return out
}
