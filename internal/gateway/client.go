// Package gateway fetches the product collection from the remote source.
package gateway

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-catalog/internal/catalog"
	"github.com/xenking/kart-catalog/internal/domain/product"
)

// DefaultURL is the public catalog source.
const DefaultURL = "https://dummyjson.com/products?limit=200"

// MaxBodySize caps the response body.
const MaxBodySize = 32 << 20

const defaultUserAgent = "kart-catalog/1.0"

var _ catalog.Fetcher = (*Client)(nil)

// Config configures a Client.
type Config struct {
	URL       string
	UserAgent string
	// Timeout bounds one round trip. Zero leaves it to the caller context.
	Timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The instrumented
// transport is not applied to it.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the client logger.
func WithLogger(lg *zap.Logger) Option {
	return func(cl *Client) { cl.lg = lg }
}

// WithTelemetry instruments outgoing requests.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(cl *Client) {
		cl.tp = tp
		cl.mp = mp
	}
}

// Client performs one GET of the whole collection per Fetch. It neither
// retries nor caches.
type Client struct {
	url       string
	userAgent string
	timeout   time.Duration
	http      *http.Client
	lg        *zap.Logger
	tp        trace.TracerProvider
	mp        metric.MeterProvider
}

// New creates a Client.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		url:       cfg.URL,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		lg:        zap.NewNop(),
	}
	if c.url == "" {
		c.url = DefaultURL
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		var otelOpts []otelhttp.Option
		if c.tp != nil {
			otelOpts = append(otelOpts, otelhttp.WithTracerProvider(c.tp))
		}
		if c.mp != nil {
			otelOpts = append(otelOpts, otelhttp.WithMeterProvider(c.mp))
		}
		c.http = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport, otelOpts...),
		}
	}
	return c
}

// Fetch retrieves and decodes the collection.
func (c *Client) Fetch(ctx context.Context) ([]product.Product, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch catalog")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, errors.Errorf("fetch catalog: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if len(body) > MaxBodySize {
		return nil, errors.Errorf("response body exceeds %d bytes", MaxBodySize)
	}

	products, err := DecodeCollection(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	c.lg.Debug("Fetched catalog",
		zap.String("url", c.url),
		zap.Int("products", len(products)),
		zap.Int("bytes", len(body)),
	)
	return products, nil
}

// DecodeCollection parses either a bare array of records or an object
// carrying the array under "products". Other envelope fields are ignored.
func DecodeCollection(data []byte) ([]product.Product, error) {
	d := jx.DecodeBytes(data)
	switch tt := d.Next(); tt {
	case jx.Array:
		return decodeArray(d)
	case jx.Object:
		var (
			out   []product.Product
			found bool
		)
		err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "products" {
				return d.Skip()
			}
			items, err := decodeArray(d)
			if err != nil {
				return errors.Wrap(err, "products")
			}
			out, found = items, true
			return nil
		})
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errors.New("missing products field")
		}
		return out, nil
	default:
		return nil, errors.Errorf("unexpected %s, want array or object", tt)
	}
}

func decodeArray(d *jx.Decoder) ([]product.Product, error) {
	out := []product.Product{}
	err := d.Arr(func(d *jx.Decoder) error {
		p, err := product.Decode(d)
		if err != nil {
			return errors.Wrapf(err, "record %d", len(out))
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
