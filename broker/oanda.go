// broker/oanda.go
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fx_sentinel_go/logs"
)

// Ensure OandaClient implements the Client interface.
var _ Client = (*OandaClient)(nil)

// OandaClient talks to the OANDA v20 REST API (practice or live host).
type OandaClient struct {
	apiKey    string
	accountID string
	baseURL   string
	http      *http.Client
}

// oandaError is the error body the v20 API returns on non-2xx responses.
type oandaError struct {
	ErrorMessage string `json:"errorMessage"`
}

// NewOandaClient creates a new v20 REST client.
func NewOandaClient(apiKey, accountID, baseURL string, timeoutSeconds int) *OandaClient {
	return &OandaClient{
		apiKey:    apiKey,
		accountID: accountID,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
	}
}

// do issues one authenticated request and decodes the JSON response into
// out. Non-2xx responses are turned into a single descriptive error.
func (c *OandaClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr oandaError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.ErrorMessage != "" {
			return fmt.Errorf("oanda API error: HTTP %d: %s", resp.StatusCode, apiErr.ErrorMessage)
		}
		return fmt.Errorf("oanda API error: HTTP %d, body: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse response JSON: %w", err)
		}
	}
	return nil
}

// parseF tolerates the v20 convention of numeric fields encoded as strings.
func parseF(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func (c *OandaClient) GetAccount(ctx context.Context) (*Account, error) {
	var resp struct {
		Account struct {
			ID             string `json:"id"`
			Balance        string `json:"balance"`
			Currency       string `json:"currency"`
			OpenTradeCount int    `json:"openTradeCount"`
		} `json:"account"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts/"+c.accountID+"/summary", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get account summary: %w", err)
	}
	return &Account{
		ID:             resp.Account.ID,
		Balance:        parseF(resp.Account.Balance),
		Currency:       resp.Account.Currency,
		OpenTradeCount: resp.Account.OpenTradeCount,
	}, nil
}

func (c *OandaClient) OpenTrades(ctx context.Context) ([]OpenTrade, error) {
	var resp struct {
		Trades []struct {
			ID           string `json:"id"`
			Instrument   string `json:"instrument"`
			CurrentUnits string `json:"currentUnits"`
			Price        string `json:"price"`
			UnrealizedPL string `json:"unrealizedPL"`
		} `json:"trades"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts/"+c.accountID+"/openTrades", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get open trades: %w", err)
	}

	trades := make([]OpenTrade, 0, len(resp.Trades))
	for _, t := range resp.Trades {
		trades = append(trades, OpenTrade{
			ID:           t.ID,
			Instrument:   t.Instrument,
			Units:        parseF(t.CurrentUnits),
			Price:        parseF(t.Price),
			UnrealizedPL: parseF(t.UnrealizedPL),
		})
	}
	return trades, nil
}

func (c *OandaClient) Pricing(ctx context.Context, instruments []string) (map[string]Price, error) {
	var resp struct {
		Prices []struct {
			Instrument string `json:"instrument"`
			Time       string `json:"time"`
			Bids       []struct {
				Price string `json:"price"`
			} `json:"bids"`
			Asks []struct {
				Price string `json:"price"`
			} `json:"asks"`
		} `json:"prices"`
	}

	path := "/accounts/" + c.accountID + "/pricing?instruments=" + url.QueryEscape(strings.Join(instruments, ","))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get pricing: %w", err)
	}

	prices := make(map[string]Price, len(resp.Prices))
	for _, p := range resp.Prices {
		if p.Instrument == "" || len(p.Bids) == 0 || len(p.Asks) == 0 {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, p.Time)
		prices[p.Instrument] = Price{
			Instrument: p.Instrument,
			Bid:        parseF(p.Bids[0].Price),
			Ask:        parseF(p.Asks[0].Price),
			Time:       ts,
		}
	}
	return prices, nil
}

func (c *OandaClient) Candles(ctx context.Context, instrument string, count int, granularity string) ([]Candle, error) {
	var resp struct {
		Candles []struct {
			Time     string `json:"time"`
			Volume   int    `json:"volume"`
			Complete bool   `json:"complete"`
			Mid      struct {
				O string `json:"o"`
				H string `json:"h"`
				L string `json:"l"`
				C string `json:"c"`
			} `json:"mid"`
		} `json:"candles"`
	}

	path := fmt.Sprintf("/instruments/%s/candles?count=%d&granularity=%s&price=M", instrument, count, granularity)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get candles for %s: %w", instrument, err)
	}

	candles := make([]Candle, 0, len(resp.Candles))
	for _, raw := range resp.Candles {
		ts, _ := time.Parse(time.RFC3339, raw.Time)
		candles = append(candles, Candle{
			Time:     ts,
			Open:     parseF(raw.Mid.O),
			High:     parseF(raw.Mid.H),
			Low:      parseF(raw.Mid.L),
			Close:    parseF(raw.Mid.C),
			Volume:   raw.Volume,
			Complete: raw.Complete,
		})
	}
	return candles, nil
}

func (c *OandaClient) CreateMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	type fillTrigger struct {
		Price string `json:"price"`
	}
	type orderBody struct {
		Type           string       `json:"type"`
		Instrument     string       `json:"instrument"`
		Units          string       `json:"units"`
		TimeInForce    string       `json:"timeInForce"`
		PositionFill   string       `json:"positionFill"`
		StopLossOnFill *fillTrigger `json:"stopLossOnFill,omitempty"`
		TakeProfitFill *fillTrigger `json:"takeProfitOnFill,omitempty"`
	}

	body := struct {
		Order orderBody `json:"order"`
	}{
		Order: orderBody{
			Type:         "MARKET",
			Instrument:   req.Instrument,
			Units:        strconv.Itoa(req.Units),
			TimeInForce:  "FOK",
			PositionFill: "DEFAULT",
		},
	}
	if req.StopLoss > 0 {
		body.Order.StopLossOnFill = &fillTrigger{Price: strconv.FormatFloat(req.StopLoss, 'f', 5, 64)}
	}
	if req.TakeProfit > 0 {
		body.Order.TakeProfitFill = &fillTrigger{Price: strconv.FormatFloat(req.TakeProfit, 'f', 5, 64)}
	}

	var resp struct {
		OrderFillTransaction struct {
			TradeOpened struct {
				TradeID string `json:"tradeID"`
			} `json:"tradeOpened"`
			Instrument string `json:"instrument"`
			Units      string `json:"units"`
			Price      string `json:"price"`
		} `json:"orderFillTransaction"`
	}
	if err := c.do(ctx, http.MethodPost, "/accounts/"+c.accountID+"/orders", &body, &resp); err != nil {
		return nil, fmt.Errorf("failed to place market order: %w", err)
	}

	fill := resp.OrderFillTransaction
	units := int(parseF(fill.Units))
	if units == 0 {
		units = req.Units
	}
	logs.Infof("[Broker] Market order filled: %s %d units of %s at %s", orderDirection(units), abs(units), req.Instrument, fill.Price)
	return &OrderResult{
		TradeID:    fill.TradeOpened.TradeID,
		Instrument: fill.Instrument,
		Units:      units,
		Price:      parseF(fill.Price),
	}, nil
}

func (c *OandaClient) Ping(ctx context.Context) error {
	_, err := c.GetAccount(ctx)
	return err
}

func orderDirection(units int) string {
	if units < 0 {
		return "SELL"
	}
	return "BUY"
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
