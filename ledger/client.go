// Package ledger is the only path from the session to the ledger service.
// Every read and write goes through Client.Call, so response classification and
// normalization into canonical entity shapes happen in one place
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/gjson"
)

type (
	environment interface {
		global.Logging
		global.Metrics
	}

	Request struct {
		From   string   `json:"from"`
		Method string   `json:"method"`
		Args   []any    `json:"args"`
		Value  *big.Int `json:"-"`
	}

	Receipt struct {
		TxHash      string `json:"txHash"`
		Success     bool   `json:"success"`
		BlockNumber uint64 `json:"blockNumber"`
		Reason      string `json:"reason,omitempty"`
	}

	// Backend is the transport to the ledger service
	Backend interface {
		Call(ctx context.Context, req Request) (json.RawMessage, error)
		Send(ctx context.Context, req Request) (txHash string, err error)
		// Receipt returns nil receipt while the transaction is not confirmed yet
		Receipt(ctx context.Context, txHash string) (*Receipt, error)
	}

	// Journal records submitted writes and their outcome
	Journal interface {
		Submitted(op string, args []any, txHash string) string
		Completed(id string, rcpt *Receipt, err error)
	}

	ConfigOptions struct {
		PollPeriod     time.Duration
		ConfirmTimeout time.Duration // 0 means wait until the context is done
		Journal        Journal
	}

	ConfigOption func(o *ConfigOptions)

	Client struct {
		environment
		backend      Backend
		cfg          ConfigOptions
		accountMutex sync.RWMutex
		account      string
		metrics      *clientMetrics
	}
)

const (
	TraceTag          = "ledger"
	defaultPollPeriod = time.Second
)

type submittedHookKey struct{}

// WithSubmittedHook returns context which makes Transact call the hook when the transaction
// is accepted for submission and confirmation wait starts
func WithSubmittedHook(ctx context.Context, hook func(txHash string)) context.Context {
	return context.WithValue(ctx, submittedHookKey{}, hook)
}

func submittedHook(ctx context.Context) func(string) {
	if hook, ok := ctx.Value(submittedHookKey{}).(func(string)); ok {
		return hook
	}
	return nil
}

func WithPollPeriod(d time.Duration) ConfigOption {
	return func(o *ConfigOptions) {
		if d > 0 {
			o.PollPeriod = d
		}
	}
}

func WithConfirmTimeout(d time.Duration) ConfigOption {
	return func(o *ConfigOptions) {
		o.ConfirmTimeout = d
	}
}

func WithJournal(j Journal) ConfigOption {
	return func(o *ConfigOptions) {
		o.Journal = j
	}
}

func New(env environment, backend Backend, opts ...ConfigOption) *Client {
	cfg := ConfigOptions{PollPeriod: defaultPollPeriod}
	for _, opt := range opts {
		opt(&cfg)
	}
	ret := &Client{
		environment: env,
		backend:     backend,
		cfg:         cfg,
	}
	if reg := env.MetricsRegistry(); reg != nil {
		ret.metrics = newClientMetrics(reg)
	}
	return ret
}

// SetAccount binds the client to the session account. All operations are issued on behalf of it
func (c *Client) SetAccount(addr string) {
	c.accountMutex.Lock()
	defer c.accountMutex.Unlock()
	c.account = addr
}

func (c *Client) Account() string {
	c.accountMutex.RLock()
	defer c.accountMutex.RUnlock()
	return c.account
}

// Call is the uniform contract for all ledger operations.
// Read returns the value checked against the expected shape.
// Write returns the transaction hash only after the transaction is confirmed
func (c *Client) Call(ctx context.Context, op Operation, args ...any) (gjson.Result, error) {
	if op.Kind == Write {
		rcpt, err := c.Transact(ctx, op, nil, args...)
		if err != nil {
			return gjson.Result{}, err
		}
		return gjson.Result{Type: gjson.String, Str: rcpt.TxHash, Raw: fmt.Sprintf("%q", rcpt.TxHash)}, nil
	}
	return c.read(ctx, op, args)
}

func (c *Client) read(ctx context.Context, op Operation, args []any) (gjson.Result, error) {
	start := time.Now()
	raw, err := c.backend.Call(ctx, c.request(op, nil, args))
	if err != nil {
		err = classify(op.Name, err)
		c.observe(op, start, err)
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(raw) {
		err = global.Errorf(global.KindMalformedResponse, op.Name, "response is not valid JSON")
		c.observe(op, start, err)
		return gjson.Result{}, err
	}
	res := gjson.ParseBytes(raw)
	if err = checkShape(op, res); err != nil {
		c.observe(op, start, err)
		return gjson.Result{}, err
	}
	c.observe(op, start, nil)
	c.Tracef(TraceTag, "read %s(%v) -> %d bytes", op.Name, args, len(raw))
	return res, nil
}

// Transact submits write operation and waits for the confirmation.
// The value is paid with the transaction, nil means no payment
func (c *Client) Transact(ctx context.Context, op Operation, value *big.Int, args ...any) (*Receipt, error) {
	if op.Kind != Write {
		return nil, global.Errorf(global.KindInternal, op.Name, "operation is not a write operation")
	}
	start := time.Now()
	txHash, err := c.backend.Send(ctx, c.request(op, value, args))
	if err != nil {
		err = classify(op.Name, err)
		c.observe(op, start, err)
		return nil, err
	}
	var journalID string
	if c.cfg.Journal != nil {
		journalID = c.cfg.Journal.Submitted(op.Name, args, txHash)
	}
	c.Tracef(TraceTag, "submitted %s(%v) tx %s", op.Name, args, txHash)
	if hook := submittedHook(ctx); hook != nil {
		hook(txHash)
	}

	rcpt, err := c.waitConfirmation(ctx, op, txHash)
	if c.cfg.Journal != nil {
		c.cfg.Journal.Completed(journalID, rcpt, err)
	}
	c.observe(op, start, err)
	if err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.confirmWait.Observe(time.Since(start).Seconds())
	}
	c.Log().Debugf("[ledger] %s confirmed in block %d, tx %s", op.Name, rcpt.BlockNumber, txHash)
	return rcpt, nil
}

func (c *Client) waitConfirmation(ctx context.Context, op Operation, txHash string) (*Receipt, error) {
	if c.cfg.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
		defer cancel()
	}
	ticker := time.NewTicker(c.cfg.PollPeriod)
	defer ticker.Stop()

	for {
		rcpt, err := c.backend.Receipt(ctx, txHash)
		if err != nil {
			return nil, classify(op.Name, err)
		}
		if rcpt != nil {
			if !rcpt.Success {
				reason := rcpt.Reason
				if reason == "" {
					reason = "execution reverted"
				}
				return rcpt, global.Errorf(global.KindTransactionReverted, op.Name, "tx %s: %s", txHash, reason)
			}
			return rcpt, nil
		}
		select {
		case <-ctx.Done():
			return nil, global.NewError(global.KindConnectionFailed, op.Name,
				fmt.Errorf("waiting for confirmation of tx %s: %w", txHash, ctx.Err()))
		case <-ticker.C:
		}
	}
}

func (c *Client) request(op Operation, value *big.Int, args []any) Request {
	if args == nil {
		args = []any{}
	}
	return Request{
		From:   c.Account(),
		Method: op.Name,
		Args:   args,
		Value:  value,
	}
}

// classify converts transport errors into the error taxonomy. Errors without kind
// are treated as unavailable provider or network
func classify(op string, err error) error {
	var e *global.Error
	if errors.As(err, &e) {
		return global.AsError(op, err)
	}
	return global.NewError(global.KindConnectionFailed, op, err)
}

func checkShape(op Operation, res gjson.Result) error {
	ok := true
	switch op.Shape {
	case ShapeArray:
		ok = res.IsArray()
	case ShapeString:
		ok = res.Type == gjson.String
	case ShapeBool:
		ok = res.Type == gjson.True || res.Type == gjson.False
	case ShapeInteger:
		_, ok = parseBigInt(res)
	}
	if !ok {
		return global.Errorf(global.KindMalformedResponse, op.Name, "expected %s, got '%s'", op.Shape, util.Trunc(res.Raw, 80))
	}
	return nil
}

type clientMetrics struct {
	calls       *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	confirmWait prometheus.Histogram
}

func newClientMetrics(reg *prometheus.Registry) *clientMetrics {
	ret := &clientMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerchat_ledger_calls_total",
			Help: "ledger operations issued by the client, by operation, kind and result",
		}, []string{"op", "kind", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledgerchat_ledger_call_seconds",
			Help:    "duration of ledger operations including confirmation wait for writes",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"op"}),
		confirmWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledgerchat_ledger_confirmation_seconds",
			Help:    "time from submission until confirmation of write operations",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
	reg.MustRegister(ret.calls, ret.latency, ret.confirmWait)
	return ret
}

func (c *Client) observe(op Operation, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = global.KindOf(err).String()
	}
	c.metrics.calls.WithLabelValues(op.Name, op.Kind.String(), result).Inc()
	c.metrics.latency.WithLabelValues(op.Name).Observe(time.Since(start).Seconds())
}
