// services/currency-conversion/internal/service/rate_source.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"globalpay/services/currency-conversion/internal/apperrors"
	"globalpay/services/currency-conversion/internal/models"
)

const (
	ProviderExchangeRateAPI = "exchangerate-api"
	ProviderAlphaVantage    = "alphavantage"

	defaultExchangeRateAPIURL = "https://v6.exchangerate-api.com/v6"
	defaultAlphaVantageURL    = "https://www.alphavantage.co/query"
)

// RateSource fetches a single live exchange rate. Implementations make exactly
// one outbound call and never retry.
type RateSource interface {
	FetchRate(ctx context.Context, base, quote models.Currency) (float64, error)
	Name() string
}

// NewRateSource builds the client for the configured provider.
func NewRateSource(provider, apiURL, apiKey string, timeout time.Duration, logger *zap.Logger) (RateSource, error) {
	httpClient := &http.Client{Timeout: timeout}

	switch provider {
	case ProviderExchangeRateAPI, "":
		if apiURL == "" {
			apiURL = defaultExchangeRateAPIURL
		}
		return &ExchangeRateAPIClient{apiURL: strings.TrimRight(apiURL, "/"), apiKey: apiKey, httpClient: httpClient, logger: logger}, nil
	case ProviderAlphaVantage:
		if apiURL == "" {
			apiURL = defaultAlphaVantageURL
		}
		return &AlphaVantageClient{apiURL: apiURL, apiKey: apiKey, httpClient: httpClient, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown rate provider %q", provider)
	}
}

// ExchangeRateAPIClient talks to the exchangerate-api.com pair endpoint.
type ExchangeRateAPIClient struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

func (c *ExchangeRateAPIClient) Name() string { return ProviderExchangeRateAPI }

func (c *ExchangeRateAPIClient) FetchRate(ctx context.Context, base, quote models.Currency) (float64, error) {
	endpoint := fmt.Sprintf("%s/%s/pair/%s/%s", c.apiURL, c.apiKey, base, quote)

	body, err := fetch(ctx, c.httpClient, c.Name(), endpoint)
	if err != nil {
		c.logger.Warn("rate fetch failed",
			zap.String("provider", c.Name()),
			zap.String("from", base.String()),
			zap.String("to", quote.String()),
			zap.Error(err))
		return 0, err
	}

	var apiResp struct {
		Result         string  `json:"result"`
		ErrorType      string  `json:"error-type"`
		ConversionRate float64 `json:"conversion_rate"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return 0, fmt.Errorf("%w: failed to parse response: %v", apperrors.ErrRateFetch, err)
	}
	if apiResp.Result != "success" {
		return 0, fmt.Errorf("%w: provider returned %q", apperrors.ErrRateFetch, apiResp.ErrorType)
	}

	return positiveRate(apiResp.ConversionRate)
}

// AlphaVantageClient talks to the CURRENCY_EXCHANGE_RATE function.
type AlphaVantageClient struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// alphaVantageRatePath addresses the rate inside the nested realtime object; its keys contain dots.
const alphaVantageRatePath = `Realtime Currency Exchange Rate.5\. Exchange Rate`

func (c *AlphaVantageClient) Name() string { return ProviderAlphaVantage }

func (c *AlphaVantageClient) FetchRate(ctx context.Context, base, quote models.Currency) (float64, error) {
	params := url.Values{}
	params.Set("function", "CURRENCY_EXCHANGE_RATE")
	params.Set("from_currency", base.String())
	params.Set("to_currency", quote.String())
	params.Set("apikey", c.apiKey)
	endpoint := c.apiURL + "?" + params.Encode()

	body, err := fetch(ctx, c.httpClient, c.Name(), endpoint)
	if err != nil {
		c.logger.Warn("rate fetch failed",
			zap.String("provider", c.Name()),
			zap.String("from", base.String()),
			zap.String("to", quote.String()),
			zap.Error(err))
		return 0, err
	}

	if !gjson.ValidBytes(body) {
		return 0, fmt.Errorf("%w: malformed response body", apperrors.ErrRateFetch)
	}
	if msg := gjson.GetBytes(body, "Error Message"); msg.Exists() {
		return 0, fmt.Errorf("%w: provider error: %s", apperrors.ErrRateFetch, msg.String())
	}

	result := gjson.GetBytes(body, alphaVantageRatePath)
	if !result.Exists() {
		return 0, fmt.Errorf("%w: rate missing from response", apperrors.ErrRateFetch)
	}
	return positiveRate(result.Float())
}

func fetch(ctx context.Context, client *http.Client, provider, endpoint string) ([]byte, error) {
	start := time.Now()
	outcome := "error"
	defer func() {
		rateFetchDuration.WithLabelValues(provider, outcome).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrRateFetch, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: API request failed: %v", apperrors.ErrRateFetch, redactKey(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: API returned status %d", apperrors.ErrRateFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", apperrors.ErrRateFetch, err)
	}

	outcome = "ok"
	return body, nil
}

// redactKey drops the request URL from transport errors so API keys never reach the logs.
func redactKey(err error) error {
	if urlErr, ok := err.(*url.Error); ok {
		return urlErr.Err
	}
	return err
}

func positiveRate(rate float64) (float64, error) {
	if rate <= 0 {
		return 0, fmt.Errorf("%w: non-positive rate %v", apperrors.ErrRateFetch, rate)
	}
	return rate, nil
}
