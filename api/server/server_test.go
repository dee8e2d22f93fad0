package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lunfardo314/ledgerchat/account"
	"github.com/lunfardo314/ledgerchat/api"
	"github.com/lunfardo314/ledgerchat/gateway"
	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/ledger"
	"github.com/lunfardo314/ledgerchat/ledger/ledgertest"
	"github.com/lunfardo314/ledgerchat/orchestrator"
	"github.com/lunfardo314/ledgerchat/session"
	"github.com/lunfardo314/ledgerchat/txstore"
	"github.com/lunfardo314/ledgerchat/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addrA = "0xAAaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	addrC = "0xcccccccccccccccccccccccccccccccccccccccc"
)

func newTestAPI(t *testing.T) (*httptest.Server, *ledgertest.Ledger) {
	glb := global.NewDefault()
	t.Cleanup(glb.Stop)

	l := ledgertest.New()
	l.Register(addrA, "alice", "QmA")
	l.Register(addrB, "bob", "QmB")
	l.Register(addrC, "carol", "QmC")
	l.MakeFriends(addrA, addrB)

	journal := txstore.NewInMemory(glb)
	client := ledger.New(glb, l, ledger.WithPollPeriod(time.Millisecond), ledger.WithJournal(journal))
	cache := session.NewCache()
	engine := views.NewEngine(cache)
	orch := orchestrator.New(glb, account.NewGate(glb, account.StaticProvider(addrA)), client, cache)

	ipfs := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(ipfs.Close)
	gw := gateway.New(glb, ipfs.URL, gateway.WithRateLimit(0))

	srv := httptest.NewServer(NewHandler(glb, orch, engine, WithJournal(journal), WithImages(gw)))
	t.Cleanup(srv.Close)
	return srv, l
}

func getJSON(t *testing.T, url string, code int, v any) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, code, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func postAction(t *testing.T, srv *httptest.Server, action string, req *api.ActionRequest) (int, *api.ActionResponse) {
	var body io.Reader = http.NoBody
	if req != nil {
		data, err := json.Marshal(req)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	resp, err := http.Post(srv.URL+api.PrefixAPIV1+"/actions/"+action, "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	var ret api.ActionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ret))
	return resp.StatusCode, &ret
}

func TestSessionFlow(t *testing.T) {
	srv, l := newTestAPI(t)

	code, resp := postAction(t, srv, orchestrator.ActionConnect, nil)
	require.Equal(t, http.StatusOK, code, resp.Error.Error)
	require.NotNil(t, resp.Identity)
	require.Equal(t, "alice", resp.Identity.DisplayName)

	var sess api.Session
	getJSON(t, srv.URL+api.PathGetSession, http.StatusOK, &sess)
	require.Len(t, sess.Directory, 3)
	require.Len(t, sess.Friends, 1)

	var av api.Available
	getJSON(t, srv.URL+api.PathGetAvailable, http.StatusOK, &av)
	require.Len(t, av.Users, 1)
	require.Equal(t, "carol", av.Users[0].Name)

	code, resp = postAction(t, srv, orchestrator.ActionSendFriendRequest, &api.ActionRequest{Peer: addrC})
	require.Equal(t, http.StatusOK, code, resp.Error.Error)
	getJSON(t, srv.URL+api.PathGetAvailable, http.StatusOK, &av)
	require.Empty(t, av.Users)

	code, resp = postAction(t, srv, orchestrator.ActionSendMessage, &api.ActionRequest{Peer: addrB, Text: "hi"})
	require.Equal(t, http.StatusOK, code, resp.Error.Error)
	var slot struct {
		Slot  string                 `json:"slot"`
		Value map[string]interface{} `json:"value"`
	}
	getJSON(t, srv.URL+api.PrefixAPIV1+"/session/messages", http.StatusOK, &slot)
	require.Len(t, slot.Value["messages"], 1)

	var journal api.Journal
	getJSON(t, srv.URL+api.PathGetJournal+"?limit=10", http.StatusOK, &journal)
	require.Len(t, journal.Records, 2)
	require.Equal(t, ledger.OpSendMessage.Name, journal.Records[0].Op)
	require.Equal(t, txstore.StatusConfirmed, journal.Records[0].Status)
	require.Equal(t, 1, l.Calls(ledger.OpSendMessage.Name))
}

func TestActionErrors(t *testing.T) {
	srv, l := newTestAPI(t)

	// not connected yet
	code, resp := postAction(t, srv, orchestrator.ActionSendFriendRequest, &api.ActionRequest{Peer: addrC})
	require.Equal(t, http.StatusBadGateway, code)
	require.Equal(t, "ConnectionFailed", resp.Kind)

	code, _ = postAction(t, srv, orchestrator.ActionConnect, nil)
	require.Equal(t, http.StatusOK, code)

	code, resp = postAction(t, srv, orchestrator.ActionSendMessage, &api.ActionRequest{Peer: addrB})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "ValidationError", resp.Kind)
	require.Equal(t, orchestrator.ActionSendMessage, resp.Action)

	l.RevertNext(ledger.OpSendFriendRequest.Name)
	code, resp = postAction(t, srv, orchestrator.ActionSendFriendRequest, &api.ActionRequest{Peer: addrC})
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "TransactionReverted", resp.Kind)

	var status api.Status
	getJSON(t, srv.URL+api.PathGetStatus, http.StatusOK, &status)
	require.NotNil(t, status.LastError)
	require.Equal(t, "TransactionReverted", status.LastError.Kind)
	require.Empty(t, status.Busy)

	code, resp = postAction(t, srv, "launchRocket", nil)
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, resp.Error.Error, "unknown action")

	resp2, err := http.Post(srv.URL+api.PrefixAPIV1+"/actions/sendMessage", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp2.StatusCode)

	var e api.Error
	getJSON(t, srv.URL+api.PrefixAPIV1+"/session/nonsense", http.StatusNotFound, &e)
	require.Contains(t, e.Error, "nonsense")
}

func TestImageMetricsAndCORS(t *testing.T) {
	srv, _ := newTestAPI(t)

	resp, err := http.Get(srv.URL + api.PrefixAPIV1 + "/image/QmMissing")
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, gateway.Placeholder, data)
	require.Equal(t, "true", resp.Header.Get("X-Placeholder"))
	require.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+api.PathGetStatus, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, err = http.Get(srv.URL + api.PathMetrics)
	require.NoError(t, err)
	data, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(data), "ledgerchat_api_requests_total")
	require.Contains(t, string(data), "ledgerchat_gateway_placeholders_total")
}
