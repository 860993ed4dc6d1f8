package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/angeloszaimis/endpoint-monitor/pkg/logger"
)

const maxRedirects = 10

var errTooManyRedirects = errors.New("too many redirects")

// Status is a Sensu check status.
type Status int

const (
	// StatusOK means the endpoint answered with a status below 399.
	StatusOK Status = 0
	// StatusHTTPError means the endpoint answered with an error-class status.
	StatusHTTPError Status = 1
	// StatusUnreachable means no HTTP response was received at all.
	StatusUnreachable Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusHTTPError:
		return "http_error"
	case StatusUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Outcome is the result of a single check. Output is never empty.
type Outcome struct {
	Status     Status
	Output     string
	StatusCode int
	Duration   time.Duration
}

// Endpoint builds http://<node>:<port>, extended by the "uri" metadata entry
// when one is present.
func Endpoint(node string, port int, meta map[string]string) string {
	endpoint := "http://" + net.JoinHostPort(node, strconv.Itoa(port))

	uri, ok := meta["uri"]
	if !ok {
		return endpoint
	}
	uri = strings.TrimLeft(uri, "/")
	if uri == "" {
		return endpoint
	}
	return endpoint + "/" + uri
}

type Checker struct {
	client *resty.Client
}

// NewChecker returns a checker whose GETs give up after timeout. When log has
// debug enabled the HTTP exchanges are dumped through it.
func NewChecker(timeout time.Duration, log *slog.Logger) *Checker {
	return &Checker{
		client: resty.New().
			SetTimeout(timeout).
			SetLogger(logger.FormatLogger{Logger: log}).
			SetDebug(log.Enabled(context.Background(), slog.LevelDebug)).
			SetRedirectPolicy(resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errTooManyRedirects
				}
				return nil
			})).
			SetHeader("User-Agent", "endpoint-monitor/check_http"),
	}
}

// Check issues a GET against endpoint.
func (c *Checker) Check(ctx context.Context, endpoint string) Outcome {
	start := time.Now()
	resp, err := c.client.R().SetContext(ctx).Get(endpoint)
	duration := time.Since(start)

	// the endpoint answered, it just never stopped redirecting
	if errors.Is(err, errTooManyRedirects) {
		var code int
		if resp != nil {
			code = resp.StatusCode()
		}
		return Outcome{
			Status: StatusHTTPError,
			Output: fmt.Sprintf("Got HTTP status code %d trying to connect to endpoint %s.\nException details:\nstopped after %d redirects",
				code, endpoint, maxRedirects),
			StatusCode: code,
			Duration:   duration,
		}
	}

	if err != nil {
		return Outcome{
			Status:   StatusUnreachable,
			Output:   fmt.Sprintf("Problem connecting to %s.\nException details:\n%s", endpoint, err),
			Duration: duration,
		}
	}

	code := resp.StatusCode()
	if code < 399 {
		return Outcome{
			Status:     StatusOK,
			Output:     fmt.Sprintf("Success! Got HTTP status code %d from endpoint %s", code, endpoint),
			StatusCode: code,
			Duration:   duration,
		}
	}

	return Outcome{
		Status: StatusHTTPError,
		Output: fmt.Sprintf("Got HTTP status code %d trying to connect to endpoint %s.\nException details:\n%s",
			code, endpoint, errorDetail(resp)),
		StatusCode: code,
		Duration:   duration,
	}
}

func errorDetail(resp *resty.Response) string {
	detail := resp.Status()
	if detail == "" {
		detail = fmt.Sprintf("%d %s", resp.StatusCode(), http.StatusText(resp.StatusCode()))
	}

	body := strings.TrimSpace(resp.String())
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	if body != "" {
		detail += ": " + body
	}
	return detail
}
