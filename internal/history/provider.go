package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "history_requests_total",
		Help: "Number of history API requests, by endpoint and outcome",
	}, []string{"endpoint", "outcome"})
)

// Provider fetches finalized candles and latest quotes from the history API.
// It backs both indicator seeding and the polling fallback feed.
type Provider interface {
	// RecentCandles returns up to count finalized candles for the
	// instrument, oldest first.
	RecentCandles(ctx context.Context, instrumentID string, interval time.Duration, count int) ([]*models.Candle, error)

	// FetchLatest returns the most recent quote as a tick.
	FetchLatest(ctx context.Context, instrumentID string) (*models.Tick, error)
}

// Config holds configuration for the HTTP history client
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Client is the HTTP implementation of Provider.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a new history API client
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// candleJSON is the wire shape of a finalized candle from the history API.
type candleJSON struct {
	InstrumentID string    `json:"instrument_id"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       int64     `json:"volume"`
	VWAP         float64   `json:"vwap"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
}

// quoteJSON is the wire shape of the latest-quote endpoint.
type quoteJSON struct {
	InstrumentID string    `json:"instrument_id"`
	Price        float64   `json:"price"`
	Volume       int64     `json:"volume"`
	Timestamp    time.Time `json:"timestamp"`
}

// RecentCandles fetches the most recent finalized candles, oldest first.
func (c *Client) RecentCandles(ctx context.Context, instrumentID string, interval time.Duration, count int) ([]*models.Candle, error) {
	q := url.Values{}
	q.Set("instrument", instrumentID)
	q.Set("interval", interval.String())
	q.Set("limit", strconv.Itoa(count))

	var payload []candleJSON
	if err := c.getJSON(ctx, "/v1/candles", q, &payload); err != nil {
		requestsTotal.WithLabelValues("candles", "error").Inc()
		return nil, err
	}
	requestsTotal.WithLabelValues("candles", "ok").Inc()

	candles := make([]*models.Candle, 0, len(payload))
	for i := range payload {
		cj := &payload[i]
		candle := &models.Candle{
			InstrumentID: cj.InstrumentID,
			Interval:     interval,
			Open:         cj.Open,
			High:         cj.High,
			Low:          cj.Low,
			Close:        cj.Close,
			Volume:       cj.Volume,
			VWAP:         cj.VWAP,
			StartTime:    cj.StartTime,
			EndTime:      cj.EndTime,
			IsFinal:      true,
		}
		if candle.EndTime.IsZero() {
			candle.EndTime = candle.StartTime.Add(interval)
		}
		if err := candle.Validate(); err != nil {
			return nil, fmt.Errorf("history returned invalid candle for %s at %s: %w",
				instrumentID, cj.StartTime, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// FetchLatest fetches the most recent quote for an instrument.
func (c *Client) FetchLatest(ctx context.Context, instrumentID string) (*models.Tick, error) {
	q := url.Values{}
	q.Set("instrument", instrumentID)

	var payload quoteJSON
	if err := c.getJSON(ctx, "/v1/quotes/latest", q, &payload); err != nil {
		requestsTotal.WithLabelValues("quotes", "error").Inc()
		return nil, err
	}
	requestsTotal.WithLabelValues("quotes", "ok").Inc()

	tick := &models.Tick{
		InstrumentID: payload.InstrumentID,
		Price:        payload.Price,
		Volume:       payload.Volume,
		ExchangeTS:   payload.Timestamp,
		ReceiptTS:    time.Now(),
	}
	if err := tick.Validate(); err != nil {
		return nil, fmt.Errorf("latest quote for %s invalid: %w", instrumentID, err)
	}
	return tick, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out interface{}) error {
	u := c.cfg.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("history request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("history API returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding history response: %w", err)
	}
	return nil
}
