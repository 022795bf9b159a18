package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/ertvault/internal/domain"
	"github.com/alejandrodnm/ertvault/internal/ports"
)

const (
	defaultRatePerSec = 20

	maxRetries    = 3
	baseRetryWait = 250 * time.Millisecond
)

// Client consume un feed HTTP de precios con rate limiting y retries.
//
//	GET {base}/prices/{asset} → {"asset":"ETH","price":"200012345678","decimals":8,"timestamp":1772445600}
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
}

var _ ports.PriceOracle = (*Client)(nil)

// priceResponse es el payload del feed. price es un entero escalado por 10^decimals.
type priceResponse struct {
	Asset     string          `json:"asset"`
	Price     decimal.Decimal `json:"price"`
	Decimals  int32           `json:"decimals"`
	Timestamp int64           `json:"timestamp"` // unix seconds
}

// NewClient crea un Client contra base. ratePerSec <= 0 usa el default.
func NewClient(base string, ratePerSec float64) *Client {
	if ratePerSec <= 0 {
		ratePerSec = defaultRatePerSec
	}
	return &Client{
		http:    &http.Client{Timeout: 5 * time.Second},
		base:    strings.TrimRight(base, "/"),
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), int(math.Max(1, ratePerSec/4))),
	}
}

// GetPriceUSD devuelve la última cotización del asset.
func (c *Client) GetPriceUSD(ctx context.Context, asset string) (domain.Price, error) {
	var resp priceResponse
	if err := c.get(ctx, c.base+"/prices/"+url.PathEscape(asset), &resp); err != nil {
		return domain.Price{}, fmt.Errorf("oracle.GetPriceUSD %s: %w", asset, err)
	}
	if !resp.Price.IsPositive() {
		return domain.Price{}, fmt.Errorf("oracle.GetPriceUSD %s: non-positive price %s", asset, resp.Price)
	}
	if resp.Asset == "" {
		resp.Asset = asset
	}
	return domain.Price{
		Asset:     resp.Asset,
		Value:     resp.Price,
		Decimals:  resp.Decimals,
		Timestamp: time.Unix(resp.Timestamp, 0).UTC(),
	}, nil
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial, respetando el contexto.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				return fmt.Errorf("request failed after %d retries: %w", attempt, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("oracle: rate limited by feed", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
