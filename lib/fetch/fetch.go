package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"kubecompat/lib/restyutil"
	"kubecompat/lib/telemetry"
)

var tracer = otel.Tracer("kubecompat/lib/fetch")

// ErrNotFound is returned for any response that is not a 2xx.
var ErrNotFound = errors.New("page not found")

// Fetcher retrieves the raw body behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Options struct {
	Timeout time.Duration
	// RequestsPerSecond <= 0 disables rate limiting.
	RequestsPerSecond float64
	// CacheSize <= 0 disables memoization.
	CacheSize        int
	CloudflareBypass bool
	UserAgent        string
	Headers          map[string]string
	// DumpDir receives a copy of every request/response pair when set.
	DumpDir string
}

// Client is a memoizing, rate limited Fetcher. successful bodies are kept
// for the lifetime of the client, failures are never cached. every caller
// gets its own copy of a body.
type Client struct {
	http    *resty.Client
	cache   *lru.Cache[string, []byte]
	limiter *rate.Limiter
}

func NewClient(opts Options) (*Client, error) {
	client := resty.New()
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	if opts.UserAgent != "" {
		client.SetHeader("user-agent", opts.UserAgent)
	}
	client.SetHeaders(opts.Headers)
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	telemetry.InstrumentResty(client, "kubecompat/fetch/http")
	if opts.DumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(opts.DumpDir)
		if err != nil {
			return nil, err
		}
		restyutil.DumpMessages(client, output)
	}

	c := &Client{http: client}

	if opts.CacheSize > 0 {
		cache, err := lru.New[string, []byte](opts.CacheSize)
		if err != nil {
			return nil, err
		}
		c.cache = cache
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return c, nil
}

func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	if c.cache != nil {
		if body, ok := c.cache.Get(url); ok {
			span.SetAttributes(attribute.Bool("cached", true))
			return slices.Clone(body), nil
		}
	}

	if c.limiter != nil {
		err := c.limiter.Wait(ctx)
		if err != nil {
			return nil, err
		}
	}

	res, err := c.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if !res.IsSuccess() {
		span.SetStatus(codes.Error, res.Status())
		slog.WarnContext(ctx, "failed to fetch page", "url", url, "status", res.StatusCode())
		return nil, fmt.Errorf("fetch %s: status %d: %w", url, res.StatusCode(), ErrNotFound)
	}

	body := res.Body()
	if c.cache != nil {
		c.cache.Add(url, slices.Clone(body))
	}
	return body, nil
}

// FetchJSON fetches url and decodes its body into out.
func FetchJSON(ctx context.Context, f Fetcher, url string, out any) error {
	body, err := f.Fetch(ctx, url)
	if err != nil {
		return err
	}
	err = json.Unmarshal(body, out)
	if err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
