package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lunfardo314/ledgerchat/account"
	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/ledger"
	"github.com/lunfardo314/ledgerchat/ledger/ledgertest"
	"github.com/stretchr/testify/require"
)

const (
	addrA = "0xaAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa"
	addrB = "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB"
)

func startLedger(t *testing.T, l *ledgertest.Ledger, accounts ...string) *Client {
	srv := httptest.NewServer(NewHandler(l, accounts...))
	t.Cleanup(srv.Close)
	c, err := New(global.NewDefault(), srv.URL, WithTimeout(5*time.Second))
	require.NoError(t, err)
	return c
}

func TestEndToEndOverHTTP(t *testing.T) {
	l := ledgertest.New()
	l.Register(addrB, "bob", "QmB")
	rc := startLedger(t, l, addrA)

	addr, err := rc.RequestActiveAddress(context.Background())
	require.NoError(t, err)
	require.Equal(t, addrA, addr)

	lc := ledger.New(global.NewDefault(), rc, ledger.WithPollPeriod(time.Millisecond))
	lc.SetAccount(addr)
	ctx := context.Background()

	require.NoError(t, lc.CreateAccount(ctx, "alice", "somewhere", "QmA"))
	users, err := lc.AllAppUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	require.NoError(t, lc.SendFriendRequest(ctx, addrB))
	sent, err := lc.SentRequests(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{addrB}, sent)

	err = lc.SendFriendRequest(ctx, addrB)
	require.True(t, errors.Is(err, global.ErrTransactionReverted))

	price, _ := new(big.Int).SetString("2500000000000000000", 10)
	require.NoError(t, lc.AddNFT(ctx, "art", price.String(), "d", "QmO", "QmP"))
	lc.SetAccount(addrB)
	require.NoError(t, lc.BuyNFT(ctx, 1, price))
	mine, err := lc.MyNFTs(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, price.String(), mine[0].PriceWei)
}

func TestRejectionAndDecline(t *testing.T) {
	l := ledgertest.New()
	rc := startLedger(t, l)

	_, err := rc.RequestActiveAddress(context.Background())
	require.True(t, errors.Is(err, account.ErrDeclined))

	l.RejectNext(ledger.OpCreateAccount.Name)
	lc := ledger.New(global.NewDefault(), rc, ledger.WithPollPeriod(time.Millisecond))
	lc.SetAccount(addrA)
	err = lc.CreateAccount(context.Background(), "alice", "x", "QmA")
	require.True(t, errors.Is(err, global.ErrTransactionRejected))
}

func TestTransportFailures(t *testing.T) {
	t.Run("http status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		defer srv.Close()
		rc, err := New(global.NewDefault(), srv.URL)
		require.NoError(t, err)

		_, err = rc.Call(context.Background(), ledger.Request{Method: "getAllAppUser"})
		require.True(t, errors.Is(err, global.ErrConnectionFailed))
	})
	t.Run("garbage", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}))
		defer srv.Close()
		rc, err := New(global.NewDefault(), srv.URL)
		require.NoError(t, err)

		_, err = rc.Call(context.Background(), ledger.Request{Method: "getAllAppUser"})
		require.True(t, errors.Is(err, global.ErrMalformedResponse))
	})
	t.Run("unreachable", func(t *testing.T) {
		rc, err := New(global.NewDefault(), "http://127.0.0.1:1", WithTimeout(time.Second))
		require.NoError(t, err)

		_, err = rc.Send(context.Background(), ledger.Request{Method: "createAccount"})
		require.True(t, errors.Is(err, global.ErrConnectionFailed))
	})
	t.Run("no endpoint", func(t *testing.T) {
		_, err := New(global.NewDefault(), "")
		require.Error(t, err)
	})
}

func TestClassify(t *testing.T) {
	require.Equal(t, global.KindTransactionRejected, global.KindOf(classify("x", &Error{Code: CodeUserRejected})))
	require.Equal(t, global.KindTransactionReverted, global.KindOf(classify("x", &Error{Code: CodeExecutionReverted})))
	require.Equal(t, global.KindTransactionReverted, global.KindOf(classify("x", &Error{Code: CodeServerError, Message: "execution Reverted: no"})))
	require.Equal(t, global.KindValidation, global.KindOf(classify("x", &Error{Code: CodeInvalidParams})))
	require.Equal(t, global.KindConnectionFailed, global.KindOf(classify("x", &Error{Code: CodeServerError, Message: "busy"})))
	require.Equal(t, global.KindConnectionFailed, global.KindOf(classify("x", errors.New("dial"))))
}

func TestParseReceipt(t *testing.T) {
	rcpt, err := parseReceipt("0x1", json.RawMessage(`null`))
	require.NoError(t, err)
	require.Nil(t, rcpt)

	for raw, success := range map[string]bool{
		`{"status":"0x1","blockNumber":"0x10"}`: true,
		`{"status":1,"blockNumber":16}`:         true,
		`{"status":true}`:                       true,
		`{"status":"0x0","revertReason":"no"}`:  false,
		`{"status":0}`:                          false,
	} {
		rcpt, err = parseReceipt("0xabc", json.RawMessage(raw))
		require.NoError(t, err, raw)
		require.Equal(t, success, rcpt.Success, raw)
		require.Equal(t, "0xabc", rcpt.TxHash)
		if rcpt.BlockNumber != 0 {
			require.EqualValues(t, 16, rcpt.BlockNumber)
		}
	}
	_, err = parseReceipt("0x1", json.RawMessage(`{"blockNumber":1}`))
	require.True(t, errors.Is(err, global.ErrMalformedResponse))
	_, err = parseReceipt("0x1", json.RawMessage(`"pending"`))
	require.True(t, errors.Is(err, global.ErrMalformedResponse))
}
