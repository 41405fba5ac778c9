package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/campus-carbon/carbon-portal/internal/domain"
)

// Source returns every building's figures for one calendar month.
type Source interface {
	FetchBuildings(ctx context.Context, year, month int) ([]domain.BuildingReading, error)
}

// ErrNotConfigured is returned when no telemetry URL has been set.
var ErrNotConfigured = errors.New("telemetry api url not configured")

// Client fetches building readings from the campus telemetry API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]domain.BuildingReading]
}

type buildingsResponse struct {
	Buildings []domain.BuildingReading `json:"buildings"`
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "telemetry-api",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[[]domain.BuildingReading](settings),
	}
}

// BreakerState reports the circuit breaker state; GET /api/collect shows it.
func (c *Client) BreakerState() string { return c.breaker.State().String() }

func (c *Client) FetchBuildings(ctx context.Context, year, month int) ([]domain.BuildingReading, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}
	return c.breaker.Execute(func() ([]domain.BuildingReading, error) {
		return c.fetch(ctx, year, month)
	})
}

func (c *Client) fetch(ctx context.Context, year, month int) ([]domain.BuildingReading, error) {
	q := url.Values{}
	q.Set("year", strconv.Itoa(year))
	q.Set("month", strconv.Itoa(month))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/buildings?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var data buildingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return data.Buildings, nil
}
