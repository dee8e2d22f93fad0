package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"

	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/ledger"
)

// Handler serves the JSON-RPC methods on top of any ledger.Backend, with the fixed list
// of wallet accounts. It is used to expose in-memory development ledger to the clients
type Handler struct {
	backend  ledger.Backend
	accounts []string
}

type serverRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type serverCallParams struct {
	From   string `json:"from"`
	Method string `json:"method"`
	Args   []any  `json:"args"`
	Value  string `json:"value"`
}

func NewHandler(backend ledger.Backend, accounts ...string) *Handler {
	return &Handler{backend: backend, accounts: accounts}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req serverRequest
	if err = json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid JSON-RPC request", http.StatusBadRequest)
		return
	}
	resp := response{JSONRPC: "2.0", ID: req.ID}
	result, rpcErr := h.dispatch(r, &req)
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) dispatch(r *http.Request, req *serverRequest) (json.RawMessage, *Error) {
	ctx := r.Context()
	switch req.Method {
	case MethodRequestAccounts:
		if len(h.accounts) == 0 {
			return nil, &Error{Code: CodeUserRejected, Message: "no accounts"}
		}
		return marshal(h.accounts)

	case MethodCall, MethodSend:
		p, err := decodeCallParams(req.Params)
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
		lreq := ledger.Request{From: p.From, Method: p.Method, Args: p.Args}
		if p.Value != "" {
			v, ok := new(big.Int).SetString(p.Value, 10)
			if !ok {
				return nil, &Error{Code: CodeInvalidParams, Message: "wrong value"}
			}
			lreq.Value = v
		}
		if req.Method == MethodCall {
			res, err := h.backend.Call(ctx, lreq)
			if err != nil {
				return nil, toRPCError(err)
			}
			return res, nil
		}
		hash, err := h.backend.Send(ctx, lreq)
		if err != nil {
			return nil, toRPCError(err)
		}
		return marshal(hash)

	case MethodGetReceipt:
		var hash string
		if len(req.Params) != 1 || json.Unmarshal(req.Params[0], &hash) != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "expected transaction hash"}
		}
		rcpt, err := h.backend.Receipt(ctx, hash)
		if err != nil {
			return nil, toRPCError(err)
		}
		if rcpt == nil {
			return json.RawMessage("null"), nil
		}
		status := "0x0"
		if rcpt.Success {
			status = "0x1"
		}
		return marshal(map[string]any{
			"transactionHash": rcpt.TxHash,
			"status":          status,
			"blockNumber":     rcpt.BlockNumber,
			"revertReason":    rcpt.Reason,
		})
	}
	return nil, &Error{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
}

func decodeCallParams(params []json.RawMessage) (*serverCallParams, error) {
	if len(params) != 1 {
		return nil, errors.New("expected one parameter object")
	}
	dec := json.NewDecoder(bytes.NewReader(params[0]))
	// numbers keep exact decimal form
	dec.UseNumber()
	var ret serverCallParams
	if err := dec.Decode(&ret); err != nil {
		return nil, err
	}
	if ret.Method == "" {
		return nil, errors.New("method required")
	}
	return &ret, nil
}

func toRPCError(err error) *Error {
	switch global.KindOf(err) {
	case global.KindTransactionRejected:
		return &Error{Code: CodeUserRejected, Message: err.Error()}
	case global.KindTransactionReverted:
		return &Error{Code: CodeExecutionReverted, Message: err.Error()}
	case global.KindValidation:
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	return &Error{Code: CodeServerError, Message: err.Error()}
}

func marshal(v any) (json.RawMessage, *Error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &Error{Code: CodeServerError, Message: err.Error()}
	}
	return data, nil
}
