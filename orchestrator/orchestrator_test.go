package orchestrator_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lunfardo314/ledgerchat/account"
	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/ledger"
	"github.com/lunfardo314/ledgerchat/ledger/ledgertest"
	"github.com/lunfardo314/ledgerchat/model"
	"github.com/lunfardo314/ledgerchat/orchestrator"
	"github.com/lunfardo314/ledgerchat/session"
	"github.com/lunfardo314/ledgerchat/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addrA = "0xAAaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	addrC = "0xcccccccccccccccccccccccccccccccccccccccc"
	addrD = "0xdddddddddddddddddddddddddddddddddddddddd"
)

type testEnv struct {
	t     *testing.T
	glb   *global.Global
	l     *ledgertest.Ledger
	o     *orchestrator.Orchestrator
	cache *session.Cache
	views *views.Engine
}

func newTestEnv(t *testing.T, self string) *testEnv {
	glb := global.NewDefault()
	t.Cleanup(glb.Stop)

	l := ledgertest.New()
	l.Register(addrA, "alice", "QmA")
	l.Register(addrB, "bob", "QmB")
	l.Register(addrC, "carol", "QmC")

	cache := session.NewCache()
	ret := &testEnv{
		t:     t,
		glb:   glb,
		l:     l,
		cache: cache,
		views: views.NewEngine(cache),
	}
	gate := account.NewGate(glb, account.StaticProvider(self), account.WithSleep(func(context.Context, time.Duration) error { return nil }))
	client := ledger.New(glb, l, ledger.WithPollPeriod(time.Millisecond))
	ret.o = orchestrator.New(glb, gate, client, cache)
	return ret
}

func (e *testEnv) connect() {
	_, err := e.o.Connect(context.Background())
	require.NoError(e.t, err)
}

// other account acting directly on the ledger
func (e *testEnv) peer(addr string) *ledger.Client {
	ret := ledger.New(e.glb, e.l, ledger.WithPollPeriod(time.Millisecond))
	ret.SetAccount(addr)
	return ret
}

func TestConnect(t *testing.T) {
	e := newTestEnv(t, addrA)
	e.l.MakeFriends(addrA, addrB)

	id, err := e.o.Connect(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.Identity{Address: addrA, DisplayName: "alice", Registered: true}, id)
	require.Len(t, e.cache.Directory(), 3)
	require.Len(t, e.cache.Friends(), 1)
	require.Equal(t, model.RewardBalance("0"), e.cache.Rewards())

	av := e.views.Available()
	require.Len(t, av, 1)
	require.Equal(t, "carol", av[0].Name)

	e.o.Disconnect()
	require.True(t, e.cache.Identity().IsEmpty())
	require.Empty(t, e.cache.Directory())
	require.Empty(t, e.views.Available())
}

func TestConnectUnregistered(t *testing.T) {
	e := newTestEnv(t, addrD)
	e.connect()
	require.False(t, e.cache.Identity().Registered)
	require.Len(t, e.cache.Directory(), 3)
	require.Zero(t, e.l.Calls(ledger.OpGetMyFriendList.Name))

	err := e.o.CreatePost(context.Background(), "hello", "")
	require.True(t, errors.Is(err, global.ErrNotRegistered))
	require.Zero(t, e.l.Calls(ledger.OpCreatePost.Name))
	info, ok := e.cache.Status().LastError()
	require.True(t, ok)
	require.Equal(t, "NotRegistered", info.Kind)
	require.Equal(t, orchestrator.ActionCreatePost, info.Action)

	require.NoError(t, e.o.CreateAccount(context.Background(), "  dave ", "Main st. 1", "QmD"))
	require.Equal(t, model.Identity{Address: addrD, DisplayName: "dave", Registered: true}, e.cache.Identity())
	require.Len(t, e.cache.Directory(), 4)

	err = e.o.CreateAccount(context.Background(), "dave", "Main st. 1", "QmD")
	require.True(t, errors.Is(err, global.ErrValidation))
}

func TestNotConnected(t *testing.T) {
	e := newTestEnv(t, addrA)
	err := e.o.SendFriendRequest(context.Background(), addrB)
	require.True(t, errors.Is(err, global.ErrConnectionFailed))
	require.Zero(t, e.l.Calls(ledger.OpSendFriendRequest.Name))
}

func TestConnectRetriesExhausted(t *testing.T) {
	glb := global.NewDefault()
	t.Cleanup(glb.Stop)
	attempts := 0
	gate := account.NewGate(glb, account.FuncProvider(func(context.Context) (string, error) {
		attempts++
		return "", nil
	}), account.WithSleep(func(context.Context, time.Duration) error { return nil }))
	cache := session.NewCache()
	o := orchestrator.New(glb, gate, ledger.New(glb, ledgertest.New()), cache)

	_, err := o.Connect(context.Background())
	require.True(t, errors.Is(err, global.ErrConnectionFailed))
	require.Equal(t, 3, attempts)
	require.True(t, cache.Identity().IsEmpty())
	info, ok := cache.Status().LastError()
	require.True(t, ok)
	require.Equal(t, orchestrator.ActionConnect, info.Action)
}

func TestAcceptIsOptimisticThenConsistent(t *testing.T) {
	e := newTestEnv(t, addrA)
	require.NoError(t, e.peer(addrB).SendFriendRequest(context.Background(), addrA))
	e.connect()
	require.Equal(t, []string{addrB}, e.cache.Pending())
	require.Empty(t, e.cache.Friends())

	var mutex sync.Mutex
	var friendsOptimistic []bool
	e.cache.OnChange(func(slot session.Slot) {
		if slot == session.SlotFriends {
			mutex.Lock()
			friendsOptimistic = append(friendsOptimistic, e.cache.IsOptimistic(session.SlotFriends))
			mutex.Unlock()
		}
	})

	require.NoError(t, e.o.AcceptFriendRequest(context.Background(), addrB))

	require.Equal(t, []bool{true, false}, friendsOptimistic)
	require.False(t, e.cache.IsOptimistic(session.SlotPending))
	require.Equal(t, []model.FriendEdge{{PeerAddress: addrB, Name: "bob", ImageHash: "QmB"}}, e.cache.Friends())
	require.Empty(t, e.cache.Pending())
	require.True(t, e.l.IsFriend(addrA, addrB))

	av := e.views.Available()
	require.Len(t, av, 1)
	require.Equal(t, addrC, av[0].AccountAddress)
}

func TestSendFriendRequestEmptiesAvailable(t *testing.T) {
	e := newTestEnv(t, addrA)
	e.l.MakeFriends(addrA, addrB)
	e.connect()
	require.Len(t, e.views.Available(), 1)

	require.NoError(t, e.o.SendFriendRequest(context.Background(), "0x"+strings.ToUpper(addrC[2:])))
	require.Len(t, e.cache.Sent(), 1)
	require.Empty(t, e.views.Available())

	err := e.o.SendFriendRequest(context.Background(), addrA)
	require.True(t, errors.Is(err, global.ErrValidation))
}

func TestRejectFriendRequest(t *testing.T) {
	e := newTestEnv(t, addrA)
	require.NoError(t, e.peer(addrC).SendFriendRequest(context.Background(), addrA))
	e.connect()
	require.Len(t, e.views.Available(), 1)

	require.NoError(t, e.o.RejectFriendRequest(context.Background(), addrC))
	require.Empty(t, e.cache.Pending())
	require.Len(t, e.views.Available(), 2)
	require.False(t, e.l.IsFriend(addrA, addrC))
}

func TestSendMessageSortedAndFiltered(t *testing.T) {
	e := newTestEnv(t, addrA)
	e.l.MakeFriends(addrA, addrB)
	e.l.AddRawMessage(addrB, addrA, 300, "third")
	e.l.AddRawMessage(addrB, addrA, 100, "first")
	e.l.AddRawMessage(addrB, addrA, 0, "no timestamp")
	e.l.AddRawMessage(addrB, addrA, 200, "")
	e.connect()

	require.NoError(t, e.o.SendMessage(context.Background(), addrB, "  hi bob "))
	conv := e.cache.Conversation()
	require.True(t, strings.EqualFold(addrB, conv.PeerAddress))
	require.Len(t, conv.Messages, 3)
	require.Equal(t, "first", conv.Messages[0].Body)
	require.Equal(t, "third", conv.Messages[1].Body)
	require.Equal(t, addrA, conv.Messages[2].SenderAddress)
	require.Equal(t, "hi bob", conv.Messages[2].Body)
	for i := 1; i < len(conv.Messages); i++ {
		require.LessOrEqual(t, conv.Messages[i-1].TimestampSeconds, conv.Messages[i].TimestampSeconds)
	}

	// not friends: the contract reverts
	err := e.o.SendMessage(context.Background(), addrC, "hello")
	require.True(t, errors.Is(err, global.ErrTransactionReverted))
}

func TestValidationMakesNoLedgerCalls(t *testing.T) {
	e := newTestEnv(t, addrA)
	e.l.MakeFriends(addrA, addrB)
	e.connect()
	before := e.cache.SnapshotJSON()
	e.l.ResetCalls()

	ctx := context.Background()
	cases := []struct {
		name string
		fun  func() error
	}{
		{"empty message", func() error { return e.o.SendMessage(ctx, addrB, "   ") }},
		{"wrong peer", func() error { return e.o.SendMessage(ctx, "0x123", "hi") }},
		{"wrong friend address", func() error { return e.o.SendFriendRequest(ctx, "bob") }},
		{"empty post", func() error { return e.o.CreatePost(ctx, "", "Qm1") }},
		{"empty comment", func() error { return e.o.CommentOnPost(ctx, addrB, 0, "") }},
		{"wrong price", func() error { return e.o.MintNFT(ctx, "art", "abc", "nice", "Qm1", "Qm2") }},
		{"no title", func() error { return e.o.MintNFT(ctx, "", "1", "nice", "Qm1", "Qm2") }},
		{"wrong token id", func() error { return e.o.BuyNFT(ctx, "x", "100") }},
		{"wrong wei", func() error { return e.o.BuyNFT(ctx, "1", "1.5") }},
		{"not listed", func() error { return e.o.BuyListing(ctx, 7) }},
		{"wrong conversation", func() error { _, err := e.o.OpenConversation(ctx, ""); return err }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.fun()
			require.True(t, errors.Is(err, global.ErrValidation), "%v", err)
			info, ok := e.cache.Status().LastError()
			require.True(t, ok)
			require.Equal(t, "ValidationError", info.Kind)
		})
	}
	for _, op := range []ledger.Operation{ledger.OpSendMessage, ledger.OpReadMessage, ledger.OpSendFriendRequest,
		ledger.OpCreatePost, ledger.OpCommentOnPost, ledger.OpAddNFT, ledger.OpBuyNFT} {
		require.Zero(t, e.l.Calls(op.Name), op.Name)
	}
	require.Equal(t, string(before), string(e.cache.SnapshotJSON()))
}

func TestFailedWriteLeavesCacheUnchanged(t *testing.T) {
	e := newTestEnv(t, addrA)
	e.connect()
	before := e.cache.SnapshotJSON()

	e.l.RevertNext(ledger.OpSendFriendRequest.Name)
	err := e.o.SendFriendRequest(context.Background(), addrB)
	require.True(t, errors.Is(err, global.ErrTransactionReverted))
	require.Equal(t, string(before), string(e.cache.SnapshotJSON()))
	info, ok := e.cache.Status().LastError()
	require.True(t, ok)
	require.Equal(t, "TransactionReverted", info.Kind)
	require.False(t, e.cache.Status().Busy(orchestrator.ActionSendFriendRequest))

	e.l.RejectNext(ledger.OpSendFriendRequest.Name)
	err = e.o.SendFriendRequest(context.Background(), addrB)
	require.True(t, errors.Is(err, global.ErrTransactionRejected))
	require.Equal(t, string(before), string(e.cache.SnapshotJSON()))

	require.NoError(t, e.o.SendFriendRequest(context.Background(), addrB))
	require.Equal(t, []string{addrB}, e.cache.Sent())
}

func TestRefreshFailureKeepsPatch(t *testing.T) {
	e := newTestEnv(t, addrA)
	e.connect()

	// the write confirms, then the re-read of sent requests returns garbage
	e.l.SetRawResult(ledger.OpGetMySentRequests.Name, `{"not":"array"}`)
	err := e.o.SendFriendRequest(context.Background(), addrB)
	require.True(t, errors.Is(err, global.ErrMalformedResponse))
	require.True(t, e.cache.IsOptimistic(session.SlotSent))
	require.Equal(t, []string{addrB}, e.cache.Sent())

	e.l.SetRawResult(ledger.OpGetMySentRequests.Name, "")
	require.NoError(t, e.o.RefreshAll(context.Background()))
	require.False(t, e.cache.IsOptimistic(session.SlotSent))
	require.Equal(t, []string{addrB}, e.cache.Sent())
}

func TestRefreshAllIdempotent(t *testing.T) {
	e := newTestEnv(t, addrA)
	e.l.MakeFriends(addrA, addrB)
	ctx := context.Background()
	peerB := e.peer(addrB)
	require.NoError(t, peerB.CreatePost(ctx, "from bob", "QmP"))
	require.NoError(t, peerB.AddNFT(ctx, "art", "1000", "nice", "QmO", "QmV"))
	e.connect()
	_, err := e.o.OpenConversation(ctx, addrB)
	require.NoError(t, err)

	require.NoError(t, e.o.RefreshAll(ctx))
	first := e.cache.SnapshotJSON()
	require.NoError(t, e.o.RefreshAll(ctx))
	require.Equal(t, string(first), string(e.cache.SnapshotJSON()))
	require.Len(t, e.cache.PeerPosts(), 1)
	require.Len(t, e.cache.NFTListings(), 1)
}

func TestPostsAndRewards(t *testing.T) {
	e := newTestEnv(t, addrA)
	e.l.MakeFriends(addrA, addrB)
	ctx := context.Background()
	require.NoError(t, e.peer(addrB).CreatePost(ctx, "from bob", ""))
	e.connect()

	require.NoError(t, e.o.CreatePost(ctx, "my first post", "QmImg"))
	own := e.cache.OwnPosts()
	require.Len(t, own, 1)
	require.Equal(t, "my first post", own[0].Content)
	require.Equal(t, model.RewardBalance("10"), e.cache.Rewards())

	require.NoError(t, e.o.LikePost(ctx, addrB, 0))
	require.NoError(t, e.o.CommentOnPost(ctx, addrB, 0, "nice"))
	peer := e.cache.PeerPosts()
	require.Len(t, peer, 1)
	require.True(t, peer[0].LikedBy(addrA))
	require.Equal(t, []model.Comment{{CommenterAddress: addrA, Text: "nice"}}, peer[0].Comments)

	// liking twice is reverted by the contract
	err := e.o.LikePost(ctx, addrB, 0)
	require.True(t, errors.Is(err, global.ErrTransactionReverted))
}

func TestMintAndBuyNFT(t *testing.T) {
	e := newTestEnv(t, addrA)
	ctx := context.Background()
	require.NoError(t, e.peer(addrB).AddNFT(ctx, "sunset", "250000000000000000", "painting", "QmO", "QmV"))
	e.connect()
	require.Len(t, e.cache.NFTListings(), 1)
	require.Empty(t, e.cache.OwnNFTs())

	require.NoError(t, e.o.MintNFT(ctx, "mine", "0.5", "my art", "QmO2", "QmV2"))
	require.Len(t, e.cache.NFTListings(), 2)
	own := e.cache.OwnNFTs()
	require.Len(t, own, 1)
	require.Equal(t, "500000000000000000", own[0].PriceWei)

	// wrong payment is reverted
	err := e.o.BuyNFT(ctx, "1", "1")
	require.True(t, errors.Is(err, global.ErrTransactionReverted))

	require.NoError(t, e.o.BuyListing(ctx, 1))
	require.Len(t, e.cache.OwnNFTs(), 2)
	for _, n := range e.cache.NFTListings() {
		if n.TokenID == 1 {
			require.True(t, n.Sold)
			require.Equal(t, addrA, n.OwnerAddress)
		}
	}
}

func TestTransitions(t *testing.T) {
	e := newTestEnv(t, addrA)
	e.connect()

	var trs []orchestrator.Transition
	e.o.OnTransition(func(tr orchestrator.Transition) {
		trs = append(trs, tr)
	})
	require.NoError(t, e.o.SendFriendRequest(context.Background(), addrB))

	states := make([]orchestrator.State, 0, len(trs))
	for _, tr := range trs {
		states = append(states, tr.To)
		assert.Equal(t, trs[0].ActionID, tr.ActionID)
		assert.Equal(t, orchestrator.ActionSendFriendRequest, tr.Action)
	}
	require.Equal(t, []orchestrator.State{
		orchestrator.StateValidating,
		orchestrator.StateSubmitting,
		orchestrator.StateConfirming,
		orchestrator.StateRefreshing,
		orchestrator.StateIdle,
	}, states)

	trs = nil
	_ = e.o.SendFriendRequest(context.Background(), "")
	require.Len(t, trs, 2)
	require.Equal(t, orchestrator.StateFailed, trs[1].To)
	require.Equal(t, orchestrator.StateValidating, trs[1].From)
	require.Error(t, trs[1].Err)
	require.Equal(t, "Confirming", orchestrator.StateConfirming.String())
}

func TestWatchConversation(t *testing.T) {
	e := newTestEnv(t, addrA)
	e.l.MakeFriends(addrA, addrB)
	e.connect()
	_, err := e.o.OpenConversation(context.Background(), addrB)
	require.NoError(t, err)
	require.Empty(t, e.cache.Conversation().Messages)

	changes := 0
	var mutex sync.Mutex
	e.cache.OnChange(func(slot session.Slot) {
		if slot == session.SlotMessages {
			mutex.Lock()
			changes++
			mutex.Unlock()
		}
	})
	e.o.WatchConversation(5 * time.Millisecond)
	e.o.WatchConversation(5 * time.Millisecond)

	require.NoError(t, e.peer(addrB).SendMessage(context.Background(), addrA, "ping"))
	require.Eventually(t, func() bool {
		return len(e.cache.Conversation().Messages) == 1
	}, 5*time.Second, 5*time.Millisecond)

	// unchanged reads do not replace the slot
	time.Sleep(50 * time.Millisecond)
	mutex.Lock()
	require.Equal(t, 1, changes)
	mutex.Unlock()
	require.Equal(t, []string{"conversation_watch"}, e.glb.WorkProcesses())

	e.glb.Stop()
	require.True(t, e.glb.WaitAllWorkProcessesStop(time.Second))
}

func TestBusyWhileSameActionQueued(t *testing.T) {
	e := newTestEnv(t, addrA)
	e.connect()
	e.l.SetConfirmAfter(50)

	var mutex sync.Mutex
	notBusy := 0
	e.o.OnTransition(func(tr orchestrator.Transition) {
		if tr.To == orchestrator.StateIdle || tr.To == orchestrator.StateFailed {
			return
		}
		if !e.cache.Status().Busy(tr.Action) {
			mutex.Lock()
			notBusy++
			mutex.Unlock()
		}
	})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, peer := range []string{addrB, addrC} {
		i, peer := i, peer
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = e.o.SendFriendRequest(context.Background(), peer)
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Zero(t, notBusy)
	require.False(t, e.cache.Status().Busy(orchestrator.ActionSendFriendRequest))
	require.Empty(t, e.cache.Status().BusyActions())
	require.ElementsMatch(t, []string{addrB, addrC}, e.cache.Sent())
}

func TestCancelWhileQueued(t *testing.T) {
	e := newTestEnv(t, addrA)
	e.connect()

	release, err := e.o.Guard().Acquire(context.Background(), session.SlotSent)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = e.o.SendFriendRequest(ctx, addrB)
	require.Error(t, err)
	require.Equal(t, global.KindInternal, global.KindOf(err))
	require.False(t, errors.Is(err, global.ErrConnectionFailed))
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.Zero(t, e.l.Calls(ledger.OpSendFriendRequest.Name))
}
