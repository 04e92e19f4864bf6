package dashboard

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelhouse-trading/wheelhouse/internal/mock"
	"github.com/wheelhouse-trading/wheelhouse/internal/models"
	"github.com/wheelhouse-trading/wheelhouse/internal/orders"
	"github.com/wheelhouse-trading/wheelhouse/internal/positions"
	"github.com/wheelhouse-trading/wheelhouse/internal/scanner"
	"github.com/wheelhouse-trading/wheelhouse/internal/storage"
	"github.com/wheelhouse-trading/wheelhouse/internal/watchlist"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestServer(t *testing.T, token string) (*Server, *storage.MemoryJournal) {
	t.Helper()

	gateway := mock.NewGateway(100000)
	journal := storage.NewMemoryJournal()
	logger := quietLogger()

	deps := Deps{
		Scanner:      scanner.New(gateway, logger, scanner.Options{}),
		Reconciler:   positions.New(gateway, gateway, logger),
		Orchestrator: orders.New(gateway, journal, logger, orders.Options{}),
		Execution:    gateway,
		Journal:      journal,
		Watchlist:    watchlist.Normalize([]string{"AAPL", "MSFT"}),
		ScanFilter: scanner.Filter{
			Side:         models.OptionTypePut,
			MinDTE:       21,
			MaxDTE:       45,
			MaxDelta:     0.35,
			MinPremium:   0.10,
			MaxSpreadPct: 20,
		},
	}

	return NewServer(Config{Addr: ":0", AuthToken: token}, deps, logger), journal
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestServer_AuthToken(t *testing.T) {
	srv, _ := newTestServer(t, "sekrit")
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays open for probes.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	req.Header.Set("X-Auth-Token", "sekrit")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ScanRecordsSummary(t *testing.T) {
	srv, journal := newTestServer(t, "")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scan", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var result scanner.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.ScanID)
	assert.NotEmpty(t, result.Opportunities)

	last := journal.LastScan()
	require.NotNil(t, last)
	assert.Equal(t, result.ScanID, last.ScanID)

	// The recorded summary is also served back.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scan/last", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_LastScanEmpty(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scan/last", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_SubmitOrders(t *testing.T) {
	srv, journal := newTestServer(t, "")

	body, err := json.Marshal(map[string]any{
		"dry_run": true,
		"items": []orders.BatchItem{
			{
				Opportunity: models.Opportunity{
					ChainContract: models.ChainContract{
						Symbol:     "AAPL250704P00185000",
						Underlying: "AAPL",
						Strike:     185,
						OptionType: models.OptionTypePut,
					},
					Mid: 2.50,
				},
				Side:     models.SideSellToOpen,
				Quantity: 1,
			},
		},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var result orders.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Succeeded)
	require.Len(t, result.Outcomes, 1)
	assert.True(t, result.Outcomes[0].Simulated)

	assert.Len(t, journal.OutcomeHistory(), 1)
}

func TestServer_SubmitOrdersRejectsEmptyBody(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader([]byte(`{}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_WorkingOrdersAlwaysArray(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/working", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}
