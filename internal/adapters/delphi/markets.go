package delphi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/alejandrodnm/delphibot/internal/domain"
)

// ListMarkets implementa ports.MarketLister.
func (c *Client) ListMarkets(ctx context.Context, status domain.MarketStatus, limit int) ([]domain.UpstreamMarket, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("status", string(status))
	u := fmt.Sprintf("%s/markets?%s", c.base, q.Encode())

	res := c.fetch(ctx, "markets", u, 0)
	if !res.OK {
		return nil, fmt.Errorf("delphi.ListMarkets: %w", resultError("markets", res))
	}

	var resp marketsResponse
	if err := json.Unmarshal(res.JSON, &resp); err != nil {
		return nil, fmt.Errorf("delphi.ListMarkets: decode: %w", err)
	}
	return mapMarkets(resp.Items), nil
}

// FetchEvals implementa ports.EvalFetcher. Si el cliente tiene evalDeadline,
// el request se hace con FetchJSONWithTimeout.
func (c *Client) FetchEvals(ctx context.Context, marketID string, modelIdx int) (domain.EvalSeries, error) {
	q := url.Values{}
	q.Set("modelIdx", strconv.Itoa(modelIdx))
	u := fmt.Sprintf("%s/markets/%s/evals?%s", c.base, url.PathEscape(marketID), q.Encode())

	res := c.fetch(ctx, "evals", u, c.evalDeadline)
	if !res.OK {
		return domain.EvalSeries{}, fmt.Errorf("delphi.FetchEvals: market %s idx %d: %w",
			marketID, modelIdx, resultError("evals", res))
	}

	items, err := decodeEvals(res.JSON)
	if err != nil {
		return domain.EvalSeries{}, fmt.Errorf("delphi.FetchEvals: decode: %w", err)
	}
	return mapEvals(marketID, modelIdx, items, res.JSON), nil
}

// FetchChart implementa ports.ChartFetcher.
func (c *Client) FetchChart(ctx context.Context, marketID, timeframe string) (domain.Chart, error) {
	if timeframe == "" {
		timeframe = "auto"
	}
	q := url.Values{}
	q.Set("timeframe", timeframe)
	u := fmt.Sprintf("%s/markets/%s/chart?%s", c.base, url.PathEscape(marketID), q.Encode())

	res := c.fetch(ctx, "chart", u, 0)
	if !res.OK {
		return domain.Chart{}, fmt.Errorf("delphi.FetchChart: market %s: %w", marketID, resultError("chart", res))
	}

	raw, points, err := locateChart(res.JSON)
	if err != nil {
		return domain.Chart{}, fmt.Errorf("delphi.FetchChart: market %s: %w", marketID, err)
	}
	return mapChart(marketID, timeframe, raw, points), nil
}

// FetchMarket implementa ports.MarketFetcher. Si la respuesta viene envuelta
// en {"market": {...}} se desenvuelve.
func (c *Client) FetchMarket(ctx context.Context, marketID string) (map[string]any, error) {
	u := fmt.Sprintf("%s/markets/%s", c.base, url.PathEscape(marketID))

	res := c.fetch(ctx, "market", u, 0)
	if !res.OK {
		return nil, fmt.Errorf("delphi.FetchMarket: %w", resultError("market", res))
	}

	var obj map[string]any
	if err := json.Unmarshal(res.JSON, &obj); err != nil {
		return nil, fmt.Errorf("delphi.FetchMarket: decode: %w", err)
	}
	if inner, ok := obj["market"].(map[string]any); ok {
		return inner, nil
	}
	return obj, nil
}

// EvalDeadline devuelve el deadline aplicado a FetchEvals (0 = sin deadline).
func (c *Client) EvalDeadline() time.Duration {
	return c.evalDeadline
}
