// Package gasoracle fetches gas price suggestions from a gas-station style
// HTTP endpoint. Submission cost bounds come from here when configured; the
// node's own suggestion is the caller's fallback.
package gasoracle

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var gweiPerWei = decimal.New(1, 9)

// Oracle queries a gas price endpoint returning gwei tiers.
type Oracle struct {
	client *resty.Client
}

// stationResponse is the gas-station JSON shape: tiers in gwei.
type stationResponse struct {
	SafeLow  float64 `json:"safeLow"`
	Standard float64 `json:"standard"`
	Fast     float64 `json:"fast"`
}

// New creates an oracle for the given endpoint URL.
func New(url string) *Oracle {
	client := resty.New().
		SetBaseURL(url).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &Oracle{client: client}
}

// SuggestGasPrice returns the "standard" tier in wei.
func (o *Oracle) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return o.suggest(ctx, func(r stationResponse) float64 { return r.Standard })
}

// SuggestFastGasPrice returns the "fast" tier in wei.
func (o *Oracle) SuggestFastGasPrice(ctx context.Context) (*big.Int, error) {
	return o.suggest(ctx, func(r stationResponse) float64 { return r.Fast })
}

func (o *Oracle) suggest(ctx context.Context, pick func(stationResponse) float64) (*big.Int, error) {
	var out stationResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("")
	if err != nil {
		return nil, errors.Wrap(err, "gas oracle request failed")
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, errors.Errorf("gas oracle returned status %d", resp.StatusCode())
	}

	gwei := pick(out)
	if gwei <= 0 {
		return nil, errors.New("gas oracle returned no usable price")
	}
	wei := decimal.NewFromFloat(gwei).Mul(gweiPerWei).Truncate(0).BigInt()
	return wei, nil
}
