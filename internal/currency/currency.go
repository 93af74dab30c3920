// Package currency resolves exchange rates for display-currency checkout.
// Rates come from an external feed and are cached; when neither the cache
// nor the feed can produce a rate, callers get rate 1.0 with a fallback
// flag so checkout proceeds in the base currency.
package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"shopcenter/backend/internal/cache"
)

const cacheKey = "currency:rates"

type ratesPayload struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

type Service struct {
	baseCurrency string
	feedURL      string
	ttl          time.Duration
	cache        cache.RateCache
	httpClient   *http.Client
	logger       *zap.Logger
}

func NewService(baseCurrency string, feedURL string, ttl time.Duration, rateCache cache.RateCache, logger *zap.Logger) *Service {
	if rateCache == nil {
		rateCache = cache.NoopRateCache{}
	}
	if ttl <= 0 || ttl > time.Hour {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		baseCurrency: strings.ToUpper(baseCurrency),
		feedURL:      feedURL,
		ttl:          ttl,
		cache:        rateCache,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
	}
}

func (s *Service) BaseCurrency() string {
	return s.baseCurrency
}

// GetRate returns the multiplier from the base currency to code. The second
// return reports whether the service fell back to 1.0 because no rate was
// available.
func (s *Service) GetRate(ctx context.Context, code string) (float64, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || code == s.baseCurrency {
		return 1.0, false
	}

	rates, err := s.rates(ctx)
	if err != nil {
		s.logger.Warn("exchange rate lookup failed, using base currency",
			zap.String("currency", code),
			zap.Error(err))
		return 1.0, true
	}

	rate, ok := rates[code]
	if !ok || rate <= 0 {
		s.logger.Warn("no exchange rate for currency, using base currency",
			zap.String("currency", code))
		return 1.0, true
	}
	return rate, false
}

// ListSupported returns the currency codes the feed currently quotes,
// sorted. The base currency is always included.
func (s *Service) ListSupported(ctx context.Context) []string {
	codes := []string{s.baseCurrency}
	rates, err := s.rates(ctx)
	if err == nil {
		for code := range rates {
			if code != s.baseCurrency {
				codes = append(codes, code)
			}
		}
	}
	sort.Strings(codes)
	return codes
}

func (s *Service) rates(ctx context.Context) (map[string]float64, error) {
	if rates, ok, err := s.cache.GetRates(ctx, cacheKey); err == nil && ok {
		return rates, nil
	} else if err != nil {
		s.logger.Warn("rate cache read failed", zap.Error(err))
	}

	rates, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetRates(ctx, cacheKey, rates, s.ttl); err != nil {
		s.logger.Warn("rate cache write failed", zap.Error(err))
	}
	return rates, nil
}

func (s *Service) fetch(ctx context.Context) (map[string]float64, error) {
	if s.feedURL == "" {
		return nil, fmt.Errorf("currency: no rate feed configured")
	}

	url := strings.TrimRight(s.feedURL, "/") + "/" + s.baseCurrency
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("currency: build rate request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("currency: fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("currency: rate feed returned status %d", resp.StatusCode)
	}

	var payload ratesPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("currency: decode rate feed: %w", err)
	}
	if len(payload.Rates) == 0 {
		return nil, fmt.Errorf("currency: rate feed returned no rates")
	}
	return payload.Rates, nil
}
