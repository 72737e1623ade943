package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/cchriscode/ticketcore/internal/domain"
	"github.com/cchriscode/ticketcore/internal/resilience"
)

// Statuses reported by the payment collaborator.
const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
	StatusRefunded  = "refunded"
)

type ValidationResult struct {
	TotalCents int64 `json:"total_cents"`
}

type StatusResult struct {
	Found  bool   `json:"found"`
	Status string `json:"status"`
	Method string `json:"method"`
}

// Client is the outbound interface to the payment collaborator. Both
// calls are idempotent reads; the core never issues the collaborator's
// non-idempotent confirm/refund calls on its own.
type Client interface {
	Validate(ctx context.Context, referenceID, userID string) (*ValidationResult, error)
	GetStatus(ctx context.Context, reservationID string) (*StatusResult, error)
}

// HTTPClient wraps the collaborator's HTTP API with a bounded timeout, a
// retry policy for its idempotent reads and a circuit breaker that fails
// fast once the collaborator is observed unhealthy.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	maxRetries int
	log        zerolog.Logger
}

func NewHTTPClient(baseURL string, timeout time.Duration, maxRetries, breakerThreshold int, breakerReset time.Duration, log zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    resilience.NewCircuitBreaker("payment", breakerThreshold, breakerReset),
		maxRetries: maxRetries,
		log:        log.With().Str("component", "payment").Logger(),
	}
}

// Validate returns the expected charge for a payment reference. Consulted
// before creating a reservation; an unreachable collaborator fails closed.
func (c *HTTPClient) Validate(ctx context.Context, referenceID, userID string) (*ValidationResult, error) {
	endpoint := fmt.Sprintf("%s/payments/validate?reference=%s&user=%s",
		c.baseURL, url.QueryEscape(referenceID), url.QueryEscape(userID))

	var out ValidationResult
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("validate payment: %w", err)
	}
	return &out, nil
}

// GetStatus returns the authoritative payment status of a reservation.
// An unknown reservation degrades to Found=false rather than an error so
// reconciliation can keep scanning.
func (c *HTTPClient) GetStatus(ctx context.Context, reservationID string) (*StatusResult, error) {
	endpoint := fmt.Sprintf("%s/payments/%s/status", c.baseURL, url.PathEscape(reservationID))

	var out StatusResult
	err := c.getJSON(ctx, endpoint, &out)
	switch {
	case err == nil:
		out.Found = true
		return &out, nil
	case errors.Is(err, domain.ErrNotFound):
		return &StatusResult{Found: false}, nil
	default:
		return nil, fmt.Errorf("payment status: %w", err)
	}
}

// getJSON is the shared decorator chain: timeout (http.Client) -> retry
// (idempotent GETs only) -> circuit breaker. A 404 is a definitive answer,
// not a failure: it neither trips the breaker nor burns retries.
func (c *HTTPClient) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	var notFound bool
	err := resilience.Retry(ctx, c.maxRetries, 200*time.Millisecond, func() error {
		return c.breaker.Execute(func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch resp.StatusCode {
			case http.StatusOK:
				notFound = false
				return json.NewDecoder(resp.Body).Decode(out)
			case http.StatusNotFound:
				notFound = true
				return nil
			default:
				return fmt.Errorf("payment collaborator returned %d", resp.StatusCode)
			}
		})
	})
	if err != nil {
		c.log.Warn().Err(err).Str("endpoint", endpoint).Msg("payment collaborator unreachable")
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
	if notFound {
		return fmt.Errorf("payment reference: %w", domain.ErrNotFound)
	}
	return nil
}
