package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelhouse-trading/wheelhouse/internal/models"
)

func TestJournal_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "journal.json")

	j, err := NewJournal(path)
	require.NoError(t, err)
	assert.Nil(t, j.LastScan())
	assert.Empty(t, j.OutcomeHistory())

	summary := ScanSummary{
		ScanID:        "scan-1",
		AsOf:          time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC),
		Symbols:       3,
		Opportunities: 7,
		Errors:        1,
		Duration:      "1.2s",
	}
	require.NoError(t, j.RecordScan(summary))

	outcomes := []models.OrderOutcome{
		{OptionSymbol: "AAPL250704P00185000", Status: models.OutcomeAccepted, ProviderID: 10},
		{OptionSymbol: "MSFT250704P00400000", Status: models.OutcomeRejected, Reason: models.ReasonInsufficientFunds},
	}
	require.NoError(t, j.AppendOutcomes(outcomes))

	// A fresh instance reads back the persisted state.
	reopened, err := NewJournal(path)
	require.NoError(t, err)

	last := reopened.LastScan()
	require.NotNil(t, last)
	assert.Equal(t, "scan-1", last.ScanID)
	assert.Equal(t, 7, last.Opportunities)

	history := reopened.OutcomeHistory()
	require.Len(t, history, 2)
	assert.Equal(t, models.OutcomeAccepted, history[0].Status)
	assert.Equal(t, models.ReasonInsufficientFunds, history[1].Reason)
}

func TestJournal_AppendEmptyIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")
	j, err := NewJournal(path)
	require.NoError(t, err)

	require.NoError(t, j.AppendOutcomes(nil))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "empty append must not create the file")
}

func TestJournal_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewJournal(path)
	assert.Error(t, err)
}

func TestJournal_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")
	j, err := NewJournal(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = j.AppendOutcomes([]models.OrderOutcome{{Status: models.OutcomeAccepted}})
		}()
	}
	wg.Wait()

	assert.Len(t, j.OutcomeHistory(), 8)
}

func TestMemoryJournal(t *testing.T) {
	m := NewMemoryJournal()
	assert.Nil(t, m.LastScan())

	require.NoError(t, m.RecordScan(ScanSummary{ScanID: "s"}))
	require.NoError(t, m.AppendOutcomes([]models.OrderOutcome{{Status: models.OutcomeFailed}}))

	assert.Equal(t, "s", m.LastScan().ScanID)
	assert.Len(t, m.OutcomeHistory(), 1)

	// Mutating the returned slice must not affect the journal.
	history := m.OutcomeHistory()
	history[0].Status = models.OutcomeAccepted
	assert.Equal(t, models.OutcomeFailed, m.OutcomeHistory()[0].Status)
}
