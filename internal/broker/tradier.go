package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wheelhouse-trading/wheelhouse/internal/models"
)

// TradierAPI is the Tradier REST client. It implements both gateway
// interfaces: market data and execution share the same credentials.
type TradierAPI struct {
	client    *http.Client
	logger    *logrus.Logger
	apiKey    string
	baseURL   string
	accountID string
	sandbox   bool
	timeout   time.Duration
}

// NewTradierAPI creates a new TradierAPI client with default settings.
func NewTradierAPI(apiKey, accountID string, sandbox bool) *TradierAPI {
	return NewTradierAPIWithBaseURL(apiKey, accountID, sandbox, "")
}

// NewTradierAPIWithBaseURL creates a new TradierAPI client with an
// optional custom baseURL, used by tests to point at a local server.
func NewTradierAPIWithBaseURL(apiKey, accountID string, sandbox bool, baseURL string) *TradierAPI {
	if baseURL == "" {
		if sandbox {
			baseURL = "https://sandbox.tradier.com/v1"
		} else {
			baseURL = "https://api.tradier.com/v1"
		}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	const defaultTimeout = 10 * time.Second
	return &TradierAPI{
		apiKey:    apiKey,
		baseURL:   baseURL,
		accountID: accountID,
		client:    &http.Client{Timeout: defaultTimeout},
		logger:    logrus.StandardLogger(),
		sandbox:   sandbox,
		timeout:   defaultTimeout,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (t *TradierAPI) WithHTTPClient(c *http.Client) *TradierAPI {
	if c != nil {
		t.client = c
	}
	return t
}

// WithTimeout sets the HTTP client timeout duration.
func (t *TradierAPI) WithTimeout(timeout time.Duration) *TradierAPI {
	t.timeout = timeout
	if t.client != nil {
		t.client.Timeout = timeout
	}
	return t
}

// WithLogger sets the structured logger used for request diagnostics.
func (t *TradierAPI) WithLogger(logger *logrus.Logger) *TradierAPI {
	if logger != nil {
		t.logger = logger
	}
	return t
}

// ============ API Response Structures ============

// Handle single-object vs array responses from Tradier.
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

// OptionChainResponse represents the API response for option chain requests.
type OptionChainResponse struct {
	Options struct {
		Option singleOrArray[Option] `json:"option"`
	} `json:"options"`
}

// Option represents an option contract from the Tradier API.
type Option struct {
	Greeks         *Greeks `json:"greeks,omitempty"`
	Symbol         string  `json:"symbol"`
	Description    string  `json:"description"`
	OptionType     string  `json:"option_type"`
	ExpirationDate string  `json:"expiration_date"`
	Underlying     string  `json:"underlying"`
	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	Last           float64 `json:"last"`
	BidSize        int     `json:"bid_size"`
	AskSize        int     `json:"ask_size"`
	Volume         int64   `json:"volume"`
	OpenInterest   int64   `json:"open_interest"`
	Strike         float64 `json:"strike"`
}

// Greeks contains option Greeks data from the Tradier API.
type Greeks struct {
	UpdatedAt string  `json:"updated_at"`
	Delta     float64 `json:"delta"`
	Gamma     float64 `json:"gamma"`
	Theta     float64 `json:"theta"`
	Vega      float64 `json:"vega"`
	Rho       float64 `json:"rho"`
	BidIV     float64 `json:"bid_iv"`
	MidIV     float64 `json:"mid_iv"`
	AskIV     float64 `json:"ask_iv"`
	SmvVol    float64 `json:"smv_vol"`
}

// PositionsResponse represents the positions response from the Tradier API.
type PositionsResponse struct {
	Positions PositionsWrapper `json:"positions"`
}

// PositionsWrapper handles the case where positions can be "null" string or an object.
type PositionsWrapper struct {
	Position singleOrArray[PositionItem] `json:"position"`
}

func (pw *PositionsWrapper) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)

	// Tradier returns both bare null and the string "null" for empty accounts.
	if bytes.Equal(trimmed, []byte(`null`)) || bytes.Equal(trimmed, []byte(`"null"`)) {
		*pw = PositionsWrapper{}
		return nil
	}

	type normalWrapper PositionsWrapper
	return json.Unmarshal(b, (*normalWrapper)(pw))
}

// PositionItem represents a single position item from the Tradier API.
// Symbol is an OSI option symbol or an equity ticker; Quantity is
// negative for short positions.
type PositionItem struct {
	DateAcquired string  `json:"date_acquired"`
	Symbol       string  `json:"symbol"`
	CostBasis    float64 `json:"cost_basis"`
	ID           int     `json:"id"`
	Quantity     float64 `json:"quantity"`
}

// QuotesResponse represents the quotes response from the Tradier API.
type QuotesResponse struct {
	Quotes struct {
		Quote singleOrArray[QuoteItem] `json:"quote"`
	} `json:"quotes"`
}

// QuoteItem represents a single quote item from the Tradier API.
type QuoteItem struct {
	Symbol           string  `json:"symbol"`
	Description      string  `json:"description"`
	Type             string  `json:"type"`
	Low              float64 `json:"low"`
	AverageVolume    int64   `json:"average_volume"`
	ChangePercentage float64 `json:"change_percentage"`
	Open             float64 `json:"open"`
	High             float64 `json:"high"`
	Volume           int64   `json:"volume"`
	Close            float64 `json:"close"`
	PrevClose        float64 `json:"prevclose"`
	Bid              float64 `json:"bid"`
	BidSize          int     `json:"bidsize"`
	Change           float64 `json:"change"`
	Ask              float64 `json:"ask"`
	AskSize          int     `json:"asksize"`
	Last             float64 `json:"last"`
}

// Price returns the best available underlying price: last trade when
// present, otherwise the quote midpoint.
func (q *QuoteItem) Price() float64 {
	if q.Last > 0 {
		return q.Last
	}
	return (q.Bid + q.Ask) / 2
}

// ExpirationsResponse represents the expirations response from the Tradier API.
type ExpirationsResponse struct {
	Expirations struct {
		Date []string `json:"date"`
	} `json:"expirations"`
}

// BalanceResponse represents the account balance response from the Tradier API.
type BalanceResponse struct {
	Balances struct {
		OptionShortValue   float64 `json:"option_short_value"`
		TotalEquity        float64 `json:"total_equity"`
		AccountNumber      string  `json:"account_number"`
		AccountType        string  `json:"account_type"`
		CurrentRequirement float64 `json:"current_requirement"`
		Equity             float64 `json:"equity"`
		LongMarketValue    float64 `json:"long_market_value"`
		MarketValue        float64 `json:"market_value"`
		OpenPL             float64 `json:"open_pl"`
		OptionLongValue    float64 `json:"option_long_value"`
		OptionRequirement  float64 `json:"option_requirement"`
		PendingOrdersCount int     `json:"pending_orders_count"`
		ShortMarketValue   float64 `json:"short_market_value"`
		StockLongValue     float64 `json:"stock_long_value"`
		TotalCash          float64 `json:"total_cash"`
		UnclearedFunds     float64 `json:"uncleared_funds"`
		PendingCash        float64 `json:"pending_cash"`

		// Account type specific nested objects
		Margin *struct {
			FedCall           float64 `json:"fed_call"`
			MaintenanceCall   float64 `json:"maintenance_call"`
			OptionBuyingPower float64 `json:"option_buying_power"`
			StockBuyingPower  float64 `json:"stock_buying_power"`
			StockShortValue   float64 `json:"stock_short_value"`
			Sweep             float64 `json:"sweep"`
		} `json:"margin"`

		Cash *struct {
			CashAvailable  float64 `json:"cash_available"`
			Sweep          float64 `json:"sweep"`
			UnsettledFunds float64 `json:"unsettled_funds"`
		} `json:"cash"`

		PDT *struct {
			FedCall           float64 `json:"fed_call"`
			MaintenanceCall   float64 `json:"maintenance_call"`
			OptionBuyingPower float64 `json:"option_buying_power"`
			StockBuyingPower  float64 `json:"stock_buying_power"`
			StockShortValue   float64 `json:"stock_short_value"`
		} `json:"pdt"`
	} `json:"balances"`
}

// GetOptionBuyingPower extracts option buying power based on account type.
func (b *BalanceResponse) GetOptionBuyingPower() (float64, error) {
	switch b.Balances.AccountType {
	case "margin":
		if b.Balances.Margin != nil {
			return b.Balances.Margin.OptionBuyingPower, nil
		}
		return 0, fmt.Errorf("margin account type specified but margin data is missing")
	case "pdt":
		if b.Balances.PDT != nil {
			return b.Balances.PDT.OptionBuyingPower, nil
		}
		return 0, fmt.Errorf("pdt account type specified but pdt data is missing")
	case "cash":
		if b.Balances.Cash != nil {
			return b.Balances.Cash.CashAvailable, nil
		}
		return 0, fmt.Errorf("cash account type specified but cash data is missing")
	}

	return 0, fmt.Errorf("unknown account type: %s", b.Balances.AccountType)
}

// OrderResponse represents the order response from the Tradier API.
type OrderResponse struct {
	Order struct {
		CreateDate        string  `json:"create_date"`
		Type              string  `json:"type"`
		Symbol            string  `json:"symbol"`
		Side              string  `json:"side"`
		Class             string  `json:"class"`
		Status            string  `json:"status"`
		Duration          string  `json:"duration"`
		AvgFillPrice      float64 `json:"avg_fill_price"`
		ExecQuantity      float64 `json:"exec_quantity"`
		RemainingQuantity float64 `json:"remaining_quantity"`
		ID                int     `json:"id"`
		Price             float64 `json:"price"`
		Quantity          float64 `json:"quantity"`
	} `json:"order"`
}

// OrdersResponse represents the account orders list from the Tradier API.
type OrdersResponse struct {
	Orders struct {
		Order singleOrArray[WorkingOrder] `json:"order"`
	} `json:"orders"`
}

// HistoricalDataResponse represents the response from historical data API.
type HistoricalDataResponse struct {
	History struct {
		Day []struct {
			Date   string  `json:"date"`
			Open   float64 `json:"open"`
			High   float64 `json:"high"`
			Low    float64 `json:"low"`
			Close  float64 `json:"close"`
			Volume int64   `json:"volume"`
		} `json:"day"`
	} `json:"history"`
}

// ============ Market Data ============

// GetQuoteCtx retrieves the current market quote for a symbol.
func (t *TradierAPI) GetQuoteCtx(ctx context.Context, symbol string) (*QuoteItem, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("greeks", "false")
	endpoint := t.baseURL + "/markets/quotes?" + params.Encode()

	var response QuotesResponse
	if err := t.makeRequestCtx(ctx, "GET", endpoint, nil, &response); err != nil {
		return nil, err
	}

	quotes := response.Quotes.Quote
	if len(quotes) == 0 {
		return nil, fmt.Errorf("no quote found for symbol: %s", symbol)
	}

	first := quotes[0]
	return &first, nil
}

// GetExpirationsCtx retrieves available expiration dates for options on a symbol.
func (t *TradierAPI) GetExpirationsCtx(ctx context.Context, symbol string) ([]string, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("includeAllRoots", "true")
	params.Set("strikes", "false")
	endpoint := t.baseURL + "/markets/options/expirations?" + params.Encode()

	var response ExpirationsResponse
	if err := t.makeRequestCtx(ctx, "GET", endpoint, nil, &response); err != nil {
		return nil, err
	}

	return response.Expirations.Date, nil
}

// GetOptionChainCtx retrieves the option chain for one expiration date.
func (t *TradierAPI) GetOptionChainCtx(ctx context.Context, symbol, expiration string, greeks bool) ([]Option, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("expiration", expiration)
	params.Set("greeks", fmt.Sprintf("%t", greeks))
	endpoint := t.baseURL + "/markets/options/chains?" + params.Encode()

	var response OptionChainResponse
	if err := t.makeRequestCtx(ctx, "GET", endpoint, nil, &response); err != nil {
		return nil, err
	}

	return []Option(response.Options.Option), nil
}

// GetOptionChainsCtx composes quote, expirations, and per-expiration
// chains into one snapshot covering the [minDTE, maxDTE] window.
// Expirations outside the window are never fetched.
func (t *TradierAPI) GetOptionChainsCtx(ctx context.Context, symbol string, minDTE, maxDTE int, asOf time.Time) (*ChainSnapshot, error) {
	quote, err := t.GetQuoteCtx(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("quote for %s: %w", symbol, err)
	}

	expirations, err := t.GetExpirationsCtx(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("expirations for %s: %w", symbol, err)
	}

	snapshot := &ChainSnapshot{
		Underlying:      symbol,
		UnderlyingPrice: quote.Price(),
		AsOf:            asOf,
	}

	for _, expStr := range expirations {
		expDate, err := time.Parse("2006-01-02", expStr)
		if err != nil {
			t.logger.WithFields(logrus.Fields{
				"symbol":     symbol,
				"expiration": expStr,
			}).Warn("skipping unparseable expiration date")
			continue
		}

		dte := daysBetween(asOf, expDate)
		if dte < minDTE || dte > maxDTE {
			continue
		}

		options, err := t.GetOptionChainCtx(ctx, symbol, expStr, true)
		if err != nil {
			return nil, fmt.Errorf("chain for %s %s: %w", symbol, expStr, err)
		}

		for _, opt := range options {
			contract, ok := contractFromOption(opt, symbol, expDate)
			if !ok {
				continue
			}
			snapshot.Contracts = append(snapshot.Contracts, contract)
		}
	}

	return snapshot, nil
}

// contractFromOption converts a provider option row to the engine's
// chain contract. Rows with an unknown option type are dropped.
func contractFromOption(opt Option, underlying string, expiration time.Time) (models.ChainContract, bool) {
	optType := models.OptionType(opt.OptionType)
	if !optType.Valid() {
		return models.ChainContract{}, false
	}

	contract := models.ChainContract{
		Symbol:       opt.Symbol,
		Underlying:   underlying,
		Strike:       opt.Strike,
		Expiration:   expiration,
		OptionType:   optType,
		Bid:          opt.Bid,
		Ask:          opt.Ask,
		Last:         opt.Last,
		Volume:       opt.Volume,
		OpenInterest: opt.OpenInterest,
	}
	if opt.Greeks != nil {
		contract.Delta = opt.Greeks.Delta
		contract.IV = opt.Greeks.MidIV
	}
	return contract, true
}

// GetHistoricalClosesCtx retrieves up to days daily closes, oldest first.
func (t *TradierAPI) GetHistoricalClosesCtx(ctx context.Context, symbol string, days int) ([]float64, error) {
	end := time.Now().UTC()
	// Pad the calendar window so weekends and holidays still yield
	// the requested number of sessions.
	start := end.AddDate(0, 0, -(days*3/2 + 7))

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "daily")
	params.Set("start", start.Format("2006-01-02"))
	params.Set("end", end.Format("2006-01-02"))
	endpoint := t.baseURL + "/markets/history?" + params.Encode()

	var response HistoricalDataResponse
	if err := t.makeRequestCtx(ctx, "GET", endpoint, nil, &response); err != nil {
		return nil, fmt.Errorf("historical data for %s: %w", symbol, err)
	}

	closes := make([]float64, 0, len(response.History.Day))
	for _, day := range response.History.Day {
		closes = append(closes, day.Close)
	}
	if len(closes) > days {
		closes = closes[len(closes)-days:]
	}
	return closes, nil
}

// ============ Account and Orders ============

// GetPositionsCtx retrieves current positions from the account.
func (t *TradierAPI) GetPositionsCtx(ctx context.Context) ([]PositionItem, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/positions", t.baseURL, t.accountID)

	var response PositionsResponse
	if err := t.makeRequestCtx(ctx, "GET", endpoint, nil, &response); err != nil {
		return nil, err
	}

	return []PositionItem(response.Positions.Position), nil
}

// GetBalanceCtx retrieves account balance information.
func (t *TradierAPI) GetBalanceCtx(ctx context.Context) (*BalanceResponse, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/balances", t.baseURL, t.accountID)

	var response BalanceResponse
	if err := t.makeRequestCtx(ctx, "GET", endpoint, nil, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// GetOptionBuyingPowerCtx returns the account's option buying power.
func (t *TradierAPI) GetOptionBuyingPowerCtx(ctx context.Context) (float64, error) {
	balance, err := t.GetBalanceCtx(ctx)
	if err != nil {
		return 0, err
	}
	return balance.GetOptionBuyingPower()
}

// PlaceOptionOrderCtx places a single-leg limit option order.
func (t *TradierAPI) PlaceOptionOrderCtx(ctx context.Context, req models.OrderRequest) (*OrderResponse, error) {
	if !req.Side.Valid() {
		return nil, fmt.Errorf("invalid order side: %s", req.Side)
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("invalid quantity for order: %d, quantity must be greater than zero", req.Quantity)
	}
	if req.LimitPrice <= 0 {
		return nil, fmt.Errorf("invalid price for limit order: %.2f, price must be positive", req.LimitPrice)
	}

	duration := req.Duration
	if duration == "" {
		duration = "day"
	}

	params := url.Values{}
	params.Add("class", "option")
	params.Add("symbol", req.Underlying)
	params.Add("option_symbol", req.OptionSymbol)
	params.Add("side", string(req.Side))
	params.Add("quantity", fmt.Sprintf("%d", req.Quantity))
	params.Add("type", "limit")
	params.Add("duration", duration)
	params.Add("price", fmt.Sprintf("%.2f", req.LimitPrice))
	if req.Tag != "" {
		params.Add("tag", req.Tag)
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/orders", t.baseURL, t.accountID)

	var response OrderResponse
	if err := t.makeRequestCtx(ctx, "POST", endpoint, params, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// GetWorkingOrdersCtx returns orders still live at the provider.
func (t *TradierAPI) GetWorkingOrdersCtx(ctx context.Context) ([]WorkingOrder, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/orders", t.baseURL, t.accountID)

	var response OrdersResponse
	if err := t.makeRequestCtx(ctx, "GET", endpoint, nil, &response); err != nil {
		return nil, err
	}

	working := make([]WorkingOrder, 0, len(response.Orders.Order))
	for _, o := range response.Orders.Order {
		switch o.Status {
		case "open", "pending", "partially_filled":
			working = append(working, o)
		}
	}
	return working, nil
}

// CancelOrderCtx cancels a working order by provider ID.
func (t *TradierAPI) CancelOrderCtx(ctx context.Context, orderID int) error {
	endpoint := fmt.Sprintf("%s/accounts/%s/orders/%d", t.baseURL, t.accountID, orderID)
	var response OrderResponse
	return t.makeRequestCtx(ctx, "DELETE", endpoint, nil, &response)
}

// makeRequestCtx makes an HTTP request with context support for timeout/cancellation.
func (t *TradierAPI) makeRequestCtx(ctx context.Context, method, endpoint string,
	params url.Values, response interface{}) error {
	var req *http.Request
	var err error

	if method == "POST" && params != nil {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(params.Encode()))
		if err != nil {
			return err
		}
		req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
		if err != nil {
			return err
		}
	}

	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "wheelhouse/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.logger.WithError(err).Warn("failed to close response body")
		}
	}()

	remaining := resp.Header.Get("X-Ratelimit-Available")
	if remaining != "" && t.sandbox {
		t.logger.WithField("remaining", remaining).Debug("rate limit headroom")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusNoContent {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		ct := resp.Header.Get("Content-Type")
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s (%s) -> %s (retry-after: %s)", method, endpoint, ct, string(body), ra)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s (%s) -> %s", method, endpoint, ct, string(body))}
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// daysBetween returns whole days from date a to date b, UTC-truncated.
func daysBetween(a, b time.Time) int {
	at := a.UTC().Truncate(24 * time.Hour)
	bt := b.UTC().Truncate(24 * time.Hour)
	return int(bt.Sub(at).Hours() / 24)
}
