// Package rpc is the JSON-RPC 2.0 over HTTP transport to the ledger service and
// to the wallet account provider
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lunfardo314/ledgerchat/account"
	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/ledger"
	"github.com/tidwall/gjson"
)

type (
	environment interface {
		global.Logging
	}

	Client struct {
		environment
		endpoint   string
		httpClient *http.Client
		headers    map[string]string
	}

	ConfigOption func(c *Client)

	request struct {
		JSONRPC string `json:"jsonrpc"`
		ID      string `json:"id"`
		Method  string `json:"method"`
		Params  []any  `json:"params"`
	}

	response struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  json.RawMessage `json:"result"`
		Error   *Error          `json:"error,omitempty"`
	}

	// Error is the JSON-RPC error object
	Error struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data,omitempty"`
	}

	callParams struct {
		From   string `json:"from"`
		Method string `json:"method"`
		Args   []any  `json:"args"`
		Value  string `json:"value,omitempty"`
	}
)

const (
	MethodCall            = "ledger_call"
	MethodSend            = "ledger_send"
	MethodGetReceipt      = "ledger_getReceipt"
	MethodRequestAccounts = "wallet_requestAccounts"

	// CodeUserRejected is returned by wallets when the user declines the request
	CodeUserRejected = 4001
	// CodeExecutionReverted is returned when contract execution reverts
	CodeExecutionReverted = 3
	CodeServerError       = -32000
	CodeMethodNotFound    = -32601
	CodeInvalidParams     = -32602

	TraceTag       = "rpc"
	defaultTimeout = 30 * time.Second
)

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithHTTPClient(hc *http.Client) ConfigOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithHeader(name, value string) ConfigOption {
	return func(c *Client) {
		c.headers[name] = value
	}
}

func New(env environment, endpoint string, opts ...ConfigOption) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("rpc: endpoint required")
	}
	ret := &Client{
		environment: env,
		endpoint:    endpoint,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		headers:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret, nil
}

// Invoke makes one JSON-RPC call. Transport failures are returned as is, JSON-RPC errors as *Error
func (c *Client) Invoke(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	req := request{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	c.Tracef(TraceTag, "-> %s %s", method, body)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	c.Tracef(TraceTag, "<- %s %s", method, respBody)

	var rpcResp response
	if err = json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, global.NewError(global.KindMalformedResponse, method, fmt.Errorf("unmarshal response: %w", err))
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// ledger.Backend

func (c *Client) Call(ctx context.Context, req ledger.Request) (json.RawMessage, error) {
	res, err := c.Invoke(ctx, MethodCall, callParams{From: req.From, Method: req.Method, Args: req.Args})
	if err != nil {
		return nil, classify(req.Method, err)
	}
	return res, nil
}

func (c *Client) Send(ctx context.Context, req ledger.Request) (string, error) {
	p := callParams{From: req.From, Method: req.Method, Args: req.Args}
	if req.Value != nil {
		p.Value = req.Value.String()
	}
	res, err := c.Invoke(ctx, MethodSend, p)
	if err != nil {
		return "", classify(req.Method, err)
	}
	hash := gjson.ParseBytes(res)
	if hash.Type != gjson.String || hash.Str == "" {
		return "", global.Errorf(global.KindMalformedResponse, req.Method, "expected transaction hash, got '%s'", string(res))
	}
	return hash.Str, nil
}

// Receipt returns nil while the transaction is pending
func (c *Client) Receipt(ctx context.Context, txHash string) (*ledger.Receipt, error) {
	res, err := c.Invoke(ctx, MethodGetReceipt, txHash)
	if err != nil {
		return nil, classify(MethodGetReceipt, err)
	}
	return parseReceipt(txHash, res)
}

func parseReceipt(txHash string, raw json.RawMessage) (*ledger.Receipt, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	r := gjson.ParseBytes(raw)
	switch {
	case r.Type == gjson.Null:
		return nil, nil
	case !r.IsObject():
		return nil, global.Errorf(global.KindMalformedResponse, MethodGetReceipt, "expected receipt object, got '%s'", string(raw))
	}
	ret := &ledger.Receipt{
		TxHash: r.Get("transactionHash").String(),
		Reason: r.Get("revertReason").String(),
	}
	if ret.TxHash == "" {
		ret.TxHash = txHash
	}
	if bn, ok := parseQuantity(r.Get("blockNumber")); ok {
		ret.BlockNumber = bn
	}
	status := r.Get("status")
	switch status.Type {
	case gjson.True:
		ret.Success = true
	case gjson.Number:
		ret.Success = status.Int() == 1
	case gjson.String:
		n, ok := parseQuantity(status)
		ret.Success = ok && n == 1
	default:
		return nil, global.Errorf(global.KindMalformedResponse, MethodGetReceipt, "receipt without status: '%s'", string(raw))
	}
	return ret, nil
}

// parseQuantity parses number, decimal or 0x hex string
func parseQuantity(r gjson.Result) (uint64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Uint(), true
	case gjson.String:
		var n uint64
		s := strings.TrimSpace(r.Str)
		format := "%d"
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			s, format = s[2:], "%x"
		}
		if _, err := fmt.Sscanf(s, format, &n); err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// classify maps transport and JSON-RPC errors into the error taxonomy
func classify(op string, err error) error {
	var ge *global.Error
	if errors.As(err, &ge) {
		return global.AsError(op, err)
	}
	var re *Error
	if !errors.As(err, &re) {
		return global.NewError(global.KindConnectionFailed, op, err)
	}
	switch {
	case re.Code == CodeUserRejected:
		return global.NewError(global.KindTransactionRejected, op, re)
	case re.Code == CodeExecutionReverted, strings.Contains(strings.ToLower(re.Message), "revert"):
		return global.NewError(global.KindTransactionReverted, op, re)
	case re.Code == CodeInvalidParams:
		return global.NewError(global.KindValidation, op, re)
	}
	return global.NewError(global.KindConnectionFailed, op, re)
}

// RequestActiveAddress asks the wallet for the active account. It implements account.Provider
func (c *Client) RequestActiveAddress(ctx context.Context) (string, error) {
	res, err := c.Invoke(ctx, MethodRequestAccounts)
	if err != nil {
		var re *Error
		if errors.As(err, &re) && re.Code == CodeUserRejected {
			return "", account.ErrDeclined
		}
		return "", err
	}
	first := gjson.ParseBytes(res).Get("0")
	if first.Type != gjson.String {
		return "", nil
	}
	return strings.TrimSpace(first.Str), nil
}
