package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"custody-wallet-go/internal/cache"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type feedResponse struct {
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Feed refreshes rates from an HTTP endpoint into the injected cache and
// falls back to a static table on a cache miss.
type Feed struct {
	url      string
	client   *http.Client
	cache    cache.Cache
	fallback Static
	interval time.Duration
	ttl      time.Duration

	stopChan chan struct{}
	doneChan chan struct{}
	once     sync.Once
}

var _ Source = (*Feed)(nil)

func NewFeed(url string, client *http.Client, c cache.Cache, fallback Static, interval, ttl time.Duration) *Feed {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Feed{
		url:      url,
		client:   client,
		cache:    c,
		fallback: fallback,
		interval: interval,
		ttl:      ttl,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

func rateKey(assetCode string) string {
	return "rate:" + strings.ToUpper(assetCode)
}

func (f *Feed) Rate(ctx context.Context, assetCode string) (decimal.Decimal, bool) {
	value, ok, err := f.cache.Get(ctx, rateKey(assetCode))
	if err != nil {
		zap.L().Warn("Rate cache read failed", zap.String("asset", assetCode), zap.Error(err))
	}
	if ok {
		rate, err := decimal.NewFromString(value)
		if err == nil {
			return rate, true
		}
		zap.L().Warn("Discarding malformed cached rate", zap.String("asset", assetCode), zap.String("value", value))
	}
	return f.fallback.Rate(ctx, assetCode)
}

// Refresh fetches the feed once and caches every rate it returns.
func (f *Feed) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create rates request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("rates request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read rates response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rates feed returned %d: %s", resp.StatusCode, string(body))
	}

	var payload feedResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("failed to decode rates response: %w", err)
	}

	for asset, rate := range payload.Rates {
		if err := f.cache.Set(ctx, rateKey(asset), rate.String(), f.ttl); err != nil {
			return fmt.Errorf("failed to cache rate for %s: %w", asset, err)
		}
	}

	zap.L().Debug("Exchange rates refreshed", zap.Int("count", len(payload.Rates)))
	return nil
}

// Start refreshes immediately and then on every interval until Stop.
func (f *Feed) Start(ctx context.Context) {
	zap.L().Info("Starting exchange rate feed",
		zap.String("url", f.url),
		zap.Duration("interval", f.interval))

	go f.loop(ctx)
}

func (f *Feed) Stop() {
	f.once.Do(func() { close(f.stopChan) })
	<-f.doneChan
}

func (f *Feed) loop(ctx context.Context) {
	defer close(f.doneChan)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		if err := f.Refresh(ctx); err != nil {
			zap.L().Warn("Exchange rate refresh failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-f.stopChan:
			return
		case <-ticker.C:
		}
	}
}
