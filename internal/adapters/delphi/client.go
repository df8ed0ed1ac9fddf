package delphi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBase = "https://delphi-api.gensyn.ai"

	// Delphi no documenta límites; nos quedamos bastante por debajo de lo observado.
	defaultRatePerSec = 20
	defaultBurst      = 20

	defaultHTTPTimeout = 30 * time.Second
	maxBodyBytes       = 8 << 20
)

// Result es la forma uniforme de cualquier fetch. Nunca hay panic ni error:
// un fallo de transporte es OK=false con Status=0, un body no-JSON es OK=false con JSON=nil.
// Raw conserva el texto recibido (o el error de transporte) para diagnóstico.
type Result struct {
	OK     bool
	Status int
	JSON   json.RawMessage
	Raw    string
}

// Observer recibe una muestra por request. Lo implementa el adaptador de métricas.
type Observer interface {
	ObserveRequest(endpoint string, status int, ok bool, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, int, bool, time.Duration) {}

// Client es el HTTP client de Delphi con rate limiting y sin retries.
type Client struct {
	http         *http.Client
	base         string
	limiter      *rate.Limiter
	observer     Observer
	evalDeadline time.Duration
}

// Option configura un Client.
type Option func(*Client)

// WithHTTPClient sustituye el http.Client por defecto.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateLimit ajusta el limiter de requests salientes.
func WithRateLimit(perSec float64, burst int) Option {
	return func(c *Client) {
		if perSec > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
		}
	}
}

// WithObserver registra un Observer para cada request.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

// NewClient crea un Client contra base. Si base está vacío usa el URL de producción.
func NewClient(base string, opts ...Option) *Client {
	if base == "" {
		base = defaultBase
	}
	c := &Client{
		http:     &http.Client{Timeout: defaultHTTPTimeout},
		base:     base,
		limiter:  rate.NewLimiter(defaultRatePerSec, defaultBurst),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithEvalDeadline devuelve una copia cuyo FetchEvals aborta tras d.
// La copia comparte http.Client y limiter con el original.
func (c *Client) WithEvalDeadline(d time.Duration) *Client {
	cp := *c
	cp.evalDeadline = d
	return &cp
}

// FetchJSON hace un GET y devuelve siempre un Result.
func (c *Client) FetchJSON(ctx context.Context, url string) Result {
	return c.fetch(ctx, "raw", url, 0)
}

// FetchJSONWithTimeout es FetchJSON con un deadline propio: si vence, el request
// en vuelo se cancela y se devuelve Status=0.
func (c *Client) FetchJSONWithTimeout(ctx context.Context, url string, deadline time.Duration) Result {
	return c.fetch(ctx, "raw", url, deadline)
}

func (c *Client) fetch(ctx context.Context, endpoint, url string, deadline time.Duration) Result {
	start := time.Now()
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	res := c.do(ctx, url)
	c.observer.ObserveRequest(endpoint, res.Status, res.OK, time.Since(start))

	if !res.OK {
		slog.Debug("delphi request failed",
			"endpoint", endpoint,
			"url", url,
			"status", res.Status,
			"raw", truncate(res.Raw, 200),
		)
	}
	return res
}

func (c *Client) do(ctx context.Context, url string) Result {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{Raw: fmt.Sprintf("rate limiter: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Raw: err.Error()}
	}
	req.Header.Set("Accept", "application/json")
	// El cache vive encima de este cliente; no queremos respuestas cacheadas por intermediarios.
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Raw: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Result{Raw: err.Error()}
		}
		return Result{Status: resp.StatusCode, Raw: err.Error()}
	}

	res := Result{Status: resp.StatusCode, Raw: string(body)}
	if json.Valid(body) {
		res.JSON = json.RawMessage(body)
	}
	res.OK = res.JSON != nil && resp.StatusCode >= 200 && resp.StatusCode < 300
	return res
}

// UpstreamError describe un Result fallido en los métodos tipados.
type UpstreamError struct {
	Endpoint string
	Status   int
	Raw      string
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("delphi %s: transport failure: %s", e.Endpoint, truncate(e.Raw, 200))
	}
	return fmt.Sprintf("delphi %s: status %d: %s", e.Endpoint, e.Status, truncate(e.Raw, 200))
}

func resultError(endpoint string, r Result) error {
	return &UpstreamError{Endpoint: endpoint, Status: r.Status, Raw: r.Raw}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
