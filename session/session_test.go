package session

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addrA = "0xAAaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func TestReplaceAndGet(t *testing.T) {
	c := NewCache()
	changes := make([]Slot, 0)
	c.OnChange(func(s Slot) { changes = append(changes, s) })

	c.SetIdentity(model.Identity{Address: addrA, DisplayName: "alice", Registered: true})
	c.SetDirectory([]model.DirectoryUser{{Name: "alice", AccountAddress: addrA}, {Name: "bob", AccountAddress: addrB}})
	c.SetRewards("10")

	require.Equal(t, []Slot{SlotIdentity, SlotDirectory, SlotRewards}, changes)
	require.Equal(t, "alice", c.Identity().DisplayName)
	require.Len(t, c.Directory(), 2)
	require.EqualValues(t, "10", c.Rewards())

	// getters return copies
	dir := c.Directory()
	dir[0].Name = "mallory"
	require.Equal(t, "alice", c.Directory()[0].Name)

	require.Error(t, c.Replace(SlotDirectory, []string{"x"}))
	require.Error(t, c.Replace(Slot("unknown"), nil))
	require.Len(t, changes, 3)
}

func TestOptimisticPatch(t *testing.T) {
	c := NewCache()
	c.SetPending([]string{addrB})

	require.NoError(t, c.PatchAppend(SlotFriends, model.FriendEdge{PeerAddress: addrB, Name: "bob"}))
	require.NoError(t, c.PatchRemove(SlotPending, "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"))
	require.True(t, c.IsOptimistic(SlotFriends))
	require.True(t, c.IsOptimistic(SlotPending))
	require.Len(t, c.Friends(), 1)
	require.Empty(t, c.Pending())

	// duplicates are not added regardless of case
	require.NoError(t, c.PatchAppend(SlotFriends, model.FriendEdge{PeerAddress: "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"}))
	require.Len(t, c.Friends(), 1)

	snap := c.Snapshot()
	require.Equal(t, []Slot{SlotFriends, SlotPending}, snap.Optimistic)

	// replacement discards the patch
	c.SetFriends([]model.FriendEdge{})
	require.False(t, c.IsOptimistic(SlotFriends))
	require.Empty(t, c.Friends())

	require.Error(t, c.PatchAppend(SlotDirectory, model.DirectoryUser{}))
	require.Error(t, c.PatchAppend(SlotSent, 5))
	require.Error(t, c.PatchRemove(SlotOwnPosts, addrA))
}

func TestSnapshotDeterministic(t *testing.T) {
	fill := func(c *Cache) {
		c.SetIdentity(model.Identity{Address: addrA, Registered: true})
		c.SetOwnPosts([]model.Post{{ID: 0, OwnerAddress: addrA, Content: "x", Likes: []string{addrB}}})
		c.SetConversation(addrB, []model.Message{{SenderAddress: addrB, Body: "hi", TimestampSeconds: 5}})
	}
	c1, c2 := NewCache(), NewCache()
	fill(c1)
	fill(c2)
	require.True(t, bytes.Equal(c1.SnapshotJSON(), c2.SnapshotJSON()))

	fill(c1)
	require.True(t, bytes.Equal(c1.SnapshotJSON(), c2.SnapshotJSON()))

	c1.Reset()
	require.True(t, bytes.Equal(NewCache().SnapshotJSON(), c1.SnapshotJSON()))
}

func TestSlotValue(t *testing.T) {
	c := NewCache()
	for _, s := range AllSlots {
		_, ok := c.SlotValue(s)
		require.True(t, ok, s)
		require.True(t, s.Valid())
	}
	_, ok := c.SlotValue(SlotStatus)
	require.True(t, ok)
	require.False(t, SlotStatus.Valid())
}

func TestStatus(t *testing.T) {
	c := NewCache()
	n := 0
	c.OnChange(func(s Slot) {
		if s == SlotStatus {
			n++
		}
	})
	st := c.Status()
	st.SetError("sendMessage", global.Errorf(global.KindValidation, "sendMessage", "empty message"))
	e, ok := st.LastError()
	require.True(t, ok)
	require.Equal(t, "ValidationError", e.Kind)
	require.Equal(t, "sendMessage", e.Action)

	require.False(t, st.SetBusy("createPost", true))
	require.True(t, st.SetBusy("createPost", true))
	require.Equal(t, []string{"createPost"}, st.BusyActions())
	// two calls in progress: the first one finishing leaves the action busy
	require.True(t, st.SetBusy("createPost", false))
	require.True(t, st.Busy("createPost"))
	require.Equal(t, []string{"createPost"}, st.BusyActions())
	require.True(t, st.SetBusy("createPost", false))
	require.False(t, st.Busy("createPost"))
	require.Empty(t, st.BusyActions())
	require.False(t, st.SetBusy("createPost", false))

	st.SetError("x", errors.New("plain"))
	e, _ = st.LastError()
	require.Equal(t, "Internal", e.Kind)

	st.ClearError()
	_, ok = st.LastError()
	require.False(t, ok)
	require.Equal(t, 5, n)
}

func TestGuardFIFO(t *testing.T) {
	g := NewGuard()
	ctx := context.Background()

	release, err := g.Acquire(ctx, SlotFriends, SlotPending)
	require.NoError(t, err)

	var mutex sync.Mutex
	order := make([]int, 0)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rel, err := g.Acquire(ctx, SlotPending)
			if !assert.NoError(t, err) {
				return
			}
			mutex.Lock()
			order = append(order, i)
			mutex.Unlock()
			rel()
		}(i)
		// wait until the goroutine is queued, so the arrival order is known
		require.Eventually(t, func() bool { return g.Queued(SlotPending) == i+1 }, time.Second, time.Millisecond)
	}
	release()
	wg.Wait()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
	require.False(t, g.Held(SlotPending))
	require.False(t, g.Held(SlotFriends))
}

func TestGuardCancel(t *testing.T) {
	g := NewGuard()
	release, err := g.Acquire(context.Background(), SlotSent)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx, SlotRewards, SlotSent)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	// slot taken before the wait is released
	require.False(t, g.Held(SlotRewards))

	release()
	release()
	require.False(t, g.Held(SlotSent))

	rel, err := g.Acquire(context.Background(), SlotSent, SlotSent)
	require.NoError(t, err)
	rel()
}
