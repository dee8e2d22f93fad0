// Package gateway is the client of the content-addressed storage gateway (IPFS with pinning service).
// Images and metadata are referenced by content hashes stored in the ledger
package gateway

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/lunfardo314/ledgerchat/global"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

type (
	environment interface {
		global.Logging
		global.Metrics
	}

	Client struct {
		environment
		url         string
		pinEndpoint string
		jwt         string
		maxSize     int64
		httpClient  *http.Client
		limiter     *rate.Limiter
		metrics     *gatewayMetrics
	}

	ConfigOption func(c *Client)

	gatewayMetrics struct {
		requests     *prometheus.CounterVec
		placeholders prometheus.Counter
	}
)

const (
	TraceTag = "gateway"

	DefaultURL         = "https://gateway.pinata.cloud"
	DefaultPinEndpoint = "https://api.pinata.cloud"
	DefaultRatePerSec  = 5
	DefaultMaxSize     = 16 << 20

	pinFilePath = "/pinning/pinFileToIPFS"
	pinJSONPath = "/pinning/pinJSONToIPFS"
)

// Placeholder is served instead of images which cannot be fetched
//
//go:embed placeholder.png
var Placeholder []byte

func WithPinEndpoint(url string) ConfigOption {
	return func(c *Client) {
		if url != "" {
			c.pinEndpoint = strings.TrimRight(url, "/")
		}
	}
}

func WithJWT(jwt string) ConfigOption {
	return func(c *Client) {
		c.jwt = jwt
	}
}

// WithRateLimit limits requests per second. 0 or less disables the limit
func WithRateLimit(perSec float64) ConfigOption {
	return func(c *Client) {
		if perSec <= 0 {
			c.limiter = nil
			return
		}
		burst := int(perSec)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

func WithHTTPClient(hc *http.Client) ConfigOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithMaxSize(n int64) ConfigOption {
	return func(c *Client) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

func New(env environment, url string, opts ...ConfigOption) *Client {
	if url == "" {
		url = DefaultURL
	}
	ret := &Client{
		environment: env,
		url:         strings.TrimRight(url, "/"),
		pinEndpoint: DefaultPinEndpoint,
		maxSize:     DefaultMaxSize,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(DefaultRatePerSec, DefaultRatePerSec),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if reg := env.MetricsRegistry(); reg != nil {
		ret.metrics = &gatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ledgerchat_gateway_requests_total",
				Help: "requests to the storage gateway by kind and result",
			}, []string{"kind", "result"}),
			placeholders: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ledgerchat_gateway_placeholders_total",
				Help: "images replaced by placeholder",
			}),
		}
		reg.MustRegister(ret.metrics.requests, ret.metrics.placeholders)
	}
	return ret
}

// NewFromConfig reads 'gateway' sub-tree of the profile
func NewFromConfig(env environment) *Client {
	sub := viper.Sub("gateway")
	if sub == nil {
		return New(env, "")
	}
	opts := []ConfigOption{
		WithPinEndpoint(sub.GetString("pin_endpoint")),
		WithJWT(sub.GetString("jwt")),
	}
	if sub.IsSet("rate_per_sec") {
		opts = append(opts, WithRateLimit(sub.GetFloat64("rate_per_sec")))
	}
	return New(env, sub.GetString("url"), opts...)
}

// URL of the content under the gateway
func (c *Client) URL(hash string) string {
	return c.url + "/ipfs/" + strings.TrimSpace(hash)
}

// Fetch downloads content by its hash
func (c *Client) Fetch(ctx context.Context, hash string) ([]byte, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, global.Errorf(global.KindValidation, "fetch", "empty content hash")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(hash), nil)
	if err != nil {
		return nil, global.NewError(global.KindInternal, "fetch", err)
	}
	data, err := c.do(req, "fetch")
	if err != nil {
		return nil, err
	}
	c.Tracef(TraceTag, "fetched %s: %d bytes", hash, len(data))
	return data, nil
}

// FetchJSON downloads JSON content and unmarshals it into v
func (c *Client) FetchJSON(ctx context.Context, hash string, v any) error {
	data, err := c.Fetch(ctx, hash)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(data, v); err != nil {
		return global.NewError(global.KindMalformedResponse, "fetch", err)
	}
	return nil
}

// ImageOrPlaceholder never fails. The flag is false when the placeholder is returned
func (c *Client) ImageOrPlaceholder(ctx context.Context, hash string) ([]byte, bool) {
	data, err := c.Fetch(ctx, hash)
	if err != nil || len(data) == 0 {
		if c.metrics != nil {
			c.metrics.placeholders.Inc()
		}
		c.Log().Debugf("[gateway] image %q replaced by placeholder: %v", hash, err)
		return Placeholder, false
	}
	return data, true
}

// PinFile uploads the file to the pinning service and returns its content hash
func (c *Client) PinFile(ctx context.Context, name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", global.Errorf(global.KindValidation, "pin", "empty file")
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return "", global.NewError(global.KindInternal, "pin", err)
	}
	if _, err = part.Write(data); err != nil {
		return "", global.NewError(global.KindInternal, "pin", err)
	}
	if err = w.Close(); err != nil {
		return "", global.NewError(global.KindInternal, "pin", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pinEndpoint+pinFilePath, &buf)
	if err != nil {
		return "", global.NewError(global.KindInternal, "pin", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.pin(req)
}

// PinJSON uploads JSON document to the pinning service and returns its content hash
func (c *Client) PinJSON(ctx context.Context, v any) (string, error) {
	body, err := json.Marshal(map[string]any{"pinataContent": v})
	if err != nil {
		return "", global.NewError(global.KindValidation, "pin", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pinEndpoint+pinJSONPath, bytes.NewReader(body))
	if err != nil {
		return "", global.NewError(global.KindInternal, "pin", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.pin(req)
}

func (c *Client) pin(req *http.Request) (string, error) {
	if c.jwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.jwt)
	}
	data, err := c.do(req, "pin")
	if err != nil {
		return "", err
	}
	hash := gjson.GetBytes(data, "IpfsHash").String()
	if hash == "" {
		return "", global.Errorf(global.KindMalformedResponse, "pin", "response without content hash")
	}
	c.Infof1("[gateway] pinned %s", hash)
	return hash, nil
}

func (c *Client) do(req *http.Request, kind string) ([]byte, error) {
	data, err := c.doNoMetrics(req, kind)
	if c.metrics != nil {
		result := "ok"
		if err != nil {
			result = global.KindOf(err).String()
		}
		c.metrics.requests.WithLabelValues(kind, result).Inc()
	}
	return data, err
}

func (c *Client) doNoMetrics(req *http.Request, kind string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, global.NewError(global.KindConnectionFailed, kind, err)
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, global.NewError(global.KindConnectionFailed, kind, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, global.NewError(global.KindConnectionFailed, kind, err)
	}
	if int64(len(data)) > c.maxSize {
		return nil, global.Errorf(global.KindValidation, kind, "content exceeds %d bytes", c.maxSize)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, global.Errorf(global.KindConnectionFailed, kind, "http status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}
