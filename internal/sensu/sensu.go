package sensu

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/angeloszaimis/endpoint-monitor/pkg/logger"
)

const (
	// CheckName names every check result this monitor posts.
	CheckName = "check_http"
	// CheckSource marks results, and therefore clients, created by this monitor.
	CheckSource = "consul"
)

var ErrUnexpectedStatus = errors.New("unexpected status from sensu api")

type Check struct {
	Name        string `json:"name"`
	CheckSource string `json:"check_source"`
	Status      int    `json:"status"`
	Output      string `json:"output"`
}

// Result is one entry of GET /results.
type Result struct {
	Client string `json:"client"`
	Check  Check  `json:"check"`
}

// Payload is the JSON body of POST /results.
type Payload map[string]any

// Source returns the client the payload reports for.
func (p Payload) Source() string {
	v, ok := p["source"]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

type Options struct {
	// PostTimeout bounds a single POST /results.
	PostTimeout time.Duration
	// InsecureSkipVerify disables certificate validation on result posts.
	InsecureSkipVerify bool
}

type Client struct {
	api     *resty.Client
	results *resty.Client
	logger  *slog.Logger
}

// New returns a client for the Sensu API rooted at baseURL. Reads and deletes
// use no timeout of their own; result posts use opts.
func New(baseURL string, opts Options, log *slog.Logger) *Client {
	api := resty.New().
		SetBaseURL(baseURL).
		SetLogger(logger.FormatLogger{Logger: log}).
		SetHeader("Accept", "application/json")

	results := resty.New().
		SetBaseURL(baseURL).
		SetLogger(logger.FormatLogger{Logger: log}).
		SetTimeout(opts.PostTimeout).
		SetTLSClientConfig(&tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		api:     api,
		results: results,
		logger:  log,
	}
}

// Results lists every check result Sensu knows about.
func (c *Client) Results(ctx context.Context) ([]Result, error) {
	resp, err := c.api.R().SetContext(ctx).Get("/results")
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("list results: %w: %s", ErrUnexpectedStatus, resp.Status())
	}

	var results []Result
	if err := json.Unmarshal(resp.Body(), &results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return results, nil
}

// ManagedClients returns the distinct, sorted names of clients that have at
// least one result tagged with CheckSource.
func (c *Client) ManagedClients(ctx context.Context) ([]string, error) {
	results, err := c.Results(ctx)
	if err != nil {
		return nil, err
	}
	return managedClients(results), nil
}

func managedClients(results []Result) []string {
	seen := make(map[string]struct{})
	for _, r := range results {
		if r.Check.CheckSource != CheckSource || r.Client == "" {
			continue
		}
		seen[r.Client] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeleteClient removes a client from Sensu. It reports false with a nil error
// when the client was already gone.
func (c *Client) DeleteClient(ctx context.Context, name string) (bool, error) {
	resp, err := c.api.R().
		SetContext(ctx).
		SetPathParam("name", name).
		Delete("/clients/{name}")
	if err != nil {
		return false, fmt.Errorf("delete client %s: %w", name, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return false, nil
	case resp.IsError():
		return false, fmt.Errorf("delete client %s: %w: %s", name, ErrUnexpectedStatus, resp.Status())
	}
	return true, nil
}

// PostResult ships one check result. Failures are logged here and returned
// so the caller can count them; they are never retried.
func (c *Client) PostResult(ctx context.Context, payload Payload) error {
	source := payload.Source()
	log := logger.FromContext(ctx, c.logger)

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error("Failed to encode check result",
			slog.String("client", source),
			slog.Any("err", err))
		return fmt.Errorf("encode result for %s: %w", source, err)
	}

	resp, err := c.results.R().
		SetContext(ctx).
		SetBody(body).
		Post("/results")
	if err != nil {
		log.Error("Problem sending check result to Sensu",
			slog.String("client", source),
			slog.Any("err", err))
		return fmt.Errorf("post result for %s: %w", source, err)
	}

	if resp.IsError() {
		log.Error("Problem sending check result to Sensu",
			slog.String("client", source),
			slog.Int("status", resp.StatusCode()),
			slog.String("response", resp.String()))
		if len(resp.Body()) == 0 {
			log.Warn("Nothing returned from POST to Sensu for this payload",
				slog.String("payload", string(body)))
		}
		return fmt.Errorf("post result for %s: %w: %s", source, ErrUnexpectedStatus, resp.Status())
	}

	log.Info("Shipped result to Sensu", slog.String("client", source))
	return nil
}
