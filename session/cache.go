// Package session holds the working set of one user's session: a slot per collection read
// from the ledger, the latest error and the busy flags of actions.
// Slots are replaced as a whole by the results of ledger reads. The only partial updates
// are optimistic patches which are discarded by the next replacement of the slot
package session

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lunfardo314/ledgerchat/model"
	"github.com/lunfardo314/ledgerchat/util"
)

type (
	Slot string

	Cache struct {
		mutex        sync.RWMutex
		identity     model.Identity
		directory    []model.DirectoryUser
		friends      []model.FriendEdge
		pending      []string
		sent         []string
		conversation model.Conversation
		ownPosts     []model.Post
		peerPosts    []model.Post
		nftListings  []model.NFTListing
		ownNFTs      []model.NFTListing
		rewards      model.RewardBalance
		optimistic   map[Slot]bool

		listenersMutex sync.RWMutex
		listeners      []func(slot Slot)

		status *Status
	}

	// Snapshot is deterministic serializable view of all slots
	Snapshot struct {
		Identity     model.Identity        `json:"identity" yaml:"identity"`
		Directory    []model.DirectoryUser `json:"directory" yaml:"directory"`
		Friends      []model.FriendEdge    `json:"friends" yaml:"friends"`
		Pending      []string              `json:"pending" yaml:"pending"`
		Sent         []string              `json:"sent" yaml:"sent"`
		Conversation model.Conversation    `json:"conversation" yaml:"conversation"`
		OwnPosts     []model.Post          `json:"ownPosts" yaml:"ownPosts"`
		PeerPosts    []model.Post          `json:"peerPosts" yaml:"peerPosts"`
		NFTListings  []model.NFTListing    `json:"nftListings" yaml:"nftListings"`
		OwnNFTs      []model.NFTListing    `json:"ownNFTs" yaml:"ownNFTs"`
		Rewards      model.RewardBalance   `json:"rewards" yaml:"rewards"`
		Optimistic   []Slot                `json:"optimistic,omitempty" yaml:"optimistic,omitempty"`
	}
)

const (
	SlotIdentity    = Slot("identity")
	SlotDirectory   = Slot("directory")
	SlotFriends     = Slot("friends")
	SlotPending     = Slot("pending")
	SlotSent        = Slot("sent")
	SlotMessages    = Slot("messages")
	SlotOwnPosts    = Slot("ownPosts")
	SlotPeerPosts   = Slot("peerPosts")
	SlotNFTListings = Slot("nftListings")
	SlotOwnNFTs     = Slot("ownNFTs")
	SlotRewards     = Slot("rewards")

	// SlotStatus is not a data slot. Listeners receive it when error or busy flags change
	SlotStatus = Slot("status")
)

// AllSlots in canonical order. Multi-slot locks are always taken in this order
var AllSlots = []Slot{
	SlotIdentity, SlotDirectory, SlotFriends, SlotPending, SlotSent, SlotMessages,
	SlotOwnPosts, SlotPeerPosts, SlotNFTListings, SlotOwnNFTs, SlotRewards,
}

func (s Slot) index() int {
	for i, sl := range AllSlots {
		if sl == s {
			return i
		}
	}
	return len(AllSlots)
}

func (s Slot) Valid() bool {
	return s.index() < len(AllSlots)
}

func NewCache() *Cache {
	ret := &Cache{}
	ret.clear()
	ret.status = newStatus(func() { ret.notify(SlotStatus) })
	return ret
}

func (c *Cache) clear() {
	c.identity = model.Identity{}
	c.directory = make([]model.DirectoryUser, 0)
	c.friends = make([]model.FriendEdge, 0)
	c.pending = make([]string, 0)
	c.sent = make([]string, 0)
	c.conversation = model.Conversation{Messages: make([]model.Message, 0)}
	c.ownPosts = make([]model.Post, 0)
	c.peerPosts = make([]model.Post, 0)
	c.nftListings = make([]model.NFTListing, 0)
	c.ownNFTs = make([]model.NFTListing, 0)
	c.rewards = "0"
	c.optimistic = make(map[Slot]bool)
}

func (c *Cache) Status() *Status {
	return c.status
}

// OnChange registers listener. Listeners are called synchronously after each mutation, with the slot changed
func (c *Cache) OnChange(fun func(slot Slot)) {
	c.listenersMutex.Lock()
	defer c.listenersMutex.Unlock()
	c.listeners = append(c.listeners, fun)
}

func (c *Cache) notify(slots ...Slot) {
	c.listenersMutex.RLock()
	listeners := c.listeners
	c.listenersMutex.RUnlock()

	for _, s := range slots {
		for _, fun := range listeners {
			fun(s)
		}
	}
}

// Reset empties all slots. Used when the session switches to another account
func (c *Cache) Reset() {
	c.mutex.Lock()
	c.clear()
	c.mutex.Unlock()
	c.notify(AllSlots...)
}

// Replace sets the whole content of the slot. Optimistic patch of the slot, if any, is discarded
func (c *Cache) Replace(slot Slot, v any) error {
	c.mutex.Lock()
	err := c.replace(slot, v)
	if err == nil {
		delete(c.optimistic, slot)
	}
	c.mutex.Unlock()

	if err != nil {
		return err
	}
	c.notify(slot)
	return nil
}

func (c *Cache) replace(slot Slot, v any) error {
	ok := true
	switch slot {
	case SlotIdentity:
		var val model.Identity
		if val, ok = v.(model.Identity); ok {
			c.identity = val
		}
	case SlotDirectory:
		var val []model.DirectoryUser
		if val, ok = v.([]model.DirectoryUser); ok {
			c.directory = cloneSlice(val)
		}
	case SlotFriends:
		var val []model.FriendEdge
		if val, ok = v.([]model.FriendEdge); ok {
			c.friends = cloneSlice(val)
		}
	case SlotPending:
		var val []string
		if val, ok = v.([]string); ok {
			c.pending = cloneSlice(val)
		}
	case SlotSent:
		var val []string
		if val, ok = v.([]string); ok {
			c.sent = cloneSlice(val)
		}
	case SlotMessages:
		var val model.Conversation
		if val, ok = v.(model.Conversation); ok {
			c.conversation = model.Conversation{PeerAddress: val.PeerAddress, Messages: cloneSlice(val.Messages)}
		}
	case SlotOwnPosts:
		var val []model.Post
		if val, ok = v.([]model.Post); ok {
			c.ownPosts = clonePosts(val)
		}
	case SlotPeerPosts:
		var val []model.Post
		if val, ok = v.([]model.Post); ok {
			c.peerPosts = clonePosts(val)
		}
	case SlotNFTListings:
		var val []model.NFTListing
		if val, ok = v.([]model.NFTListing); ok {
			c.nftListings = cloneSlice(val)
		}
	case SlotOwnNFTs:
		var val []model.NFTListing
		if val, ok = v.([]model.NFTListing); ok {
			c.ownNFTs = cloneSlice(val)
		}
	case SlotRewards:
		var val model.RewardBalance
		if val, ok = v.(model.RewardBalance); ok {
			c.rewards = val
		}
	default:
		return fmt.Errorf("session: unknown slot '%s'", slot)
	}
	if !ok {
		return fmt.Errorf("session: wrong type %T for slot '%s'", v, slot)
	}
	return nil
}

// PatchAppend optimistically adds entry to friends, sent or pending. The slot is marked optimistic
// until replaced by the ledger read. Entries already present are not duplicated
func (c *Cache) PatchAppend(slot Slot, v any) error {
	c.mutex.Lock()
	err := c.patchAppend(slot, v)
	if err == nil {
		c.optimistic[slot] = true
	}
	c.mutex.Unlock()

	if err != nil {
		return err
	}
	c.notify(slot)
	return nil
}

func (c *Cache) patchAppend(slot Slot, v any) error {
	switch slot {
	case SlotFriends:
		edge, ok := v.(model.FriendEdge)
		if !ok {
			return fmt.Errorf("session: wrong type %T for patch of '%s'", v, slot)
		}
		for _, f := range c.friends {
			if util.SameAddress(f.PeerAddress, edge.PeerAddress) {
				return nil
			}
		}
		c.friends = append(cloneSlice(c.friends), edge)
	case SlotSent, SlotPending:
		addr, ok := v.(string)
		if !ok {
			return fmt.Errorf("session: wrong type %T for patch of '%s'", v, slot)
		}
		lst := c.addressList(slot)
		if containsAddress(*lst, addr) {
			return nil
		}
		*lst = append(cloneSlice(*lst), addr)
	default:
		return fmt.Errorf("session: slot '%s' can't be patched", slot)
	}
	return nil
}

// PatchRemove optimistically removes address from friends, sent or pending
func (c *Cache) PatchRemove(slot Slot, addr string) error {
	c.mutex.Lock()
	err := c.patchRemove(slot, addr)
	if err == nil {
		c.optimistic[slot] = true
	}
	c.mutex.Unlock()

	if err != nil {
		return err
	}
	c.notify(slot)
	return nil
}

func (c *Cache) patchRemove(slot Slot, addr string) error {
	switch slot {
	case SlotFriends:
		ret := make([]model.FriendEdge, 0, len(c.friends))
		for _, f := range c.friends {
			if !util.SameAddress(f.PeerAddress, addr) {
				ret = append(ret, f)
			}
		}
		c.friends = ret
	case SlotSent, SlotPending:
		lst := c.addressList(slot)
		ret := make([]string, 0, len(*lst))
		for _, a := range *lst {
			if !util.SameAddress(a, addr) {
				ret = append(ret, a)
			}
		}
		*lst = ret
	default:
		return fmt.Errorf("session: slot '%s' can't be patched", slot)
	}
	return nil
}

func (c *Cache) addressList(slot Slot) *[]string {
	if slot == SlotSent {
		return &c.sent
	}
	return &c.pending
}

// IsOptimistic returns true if the slot contains patch not yet confirmed by the ledger read
func (c *Cache) IsOptimistic(slot Slot) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.optimistic[slot]
}

// typed setters

func (c *Cache) SetIdentity(id model.Identity) {
	util.AssertNoError(c.Replace(SlotIdentity, id))
}

func (c *Cache) SetDirectory(v []model.DirectoryUser) {
	util.AssertNoError(c.Replace(SlotDirectory, v))
}

func (c *Cache) SetFriends(v []model.FriendEdge) {
	util.AssertNoError(c.Replace(SlotFriends, v))
}

func (c *Cache) SetPending(v []string) {
	util.AssertNoError(c.Replace(SlotPending, v))
}

func (c *Cache) SetSent(v []string) {
	util.AssertNoError(c.Replace(SlotSent, v))
}

func (c *Cache) SetConversation(peer string, msgs []model.Message) {
	util.AssertNoError(c.Replace(SlotMessages, model.Conversation{PeerAddress: peer, Messages: msgs}))
}

func (c *Cache) SetOwnPosts(v []model.Post) {
	util.AssertNoError(c.Replace(SlotOwnPosts, v))
}

func (c *Cache) SetPeerPosts(v []model.Post) {
	util.AssertNoError(c.Replace(SlotPeerPosts, v))
}

func (c *Cache) SetNFTListings(v []model.NFTListing) {
	util.AssertNoError(c.Replace(SlotNFTListings, v))
}

func (c *Cache) SetOwnNFTs(v []model.NFTListing) {
	util.AssertNoError(c.Replace(SlotOwnNFTs, v))
}

func (c *Cache) SetRewards(v model.RewardBalance) {
	util.AssertNoError(c.Replace(SlotRewards, v))
}

// typed getters return copies

func (c *Cache) Identity() model.Identity {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.identity
}

func (c *Cache) Directory() []model.DirectoryUser {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return cloneSlice(c.directory)
}

func (c *Cache) Friends() []model.FriendEdge {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return cloneSlice(c.friends)
}

func (c *Cache) Pending() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return cloneSlice(c.pending)
}

func (c *Cache) Sent() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return cloneSlice(c.sent)
}

func (c *Cache) Conversation() model.Conversation {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return model.Conversation{PeerAddress: c.conversation.PeerAddress, Messages: cloneSlice(c.conversation.Messages)}
}

func (c *Cache) OwnPosts() []model.Post {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return clonePosts(c.ownPosts)
}

func (c *Cache) PeerPosts() []model.Post {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return clonePosts(c.peerPosts)
}

func (c *Cache) NFTListings() []model.NFTListing {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return cloneSlice(c.nftListings)
}

func (c *Cache) OwnNFTs() []model.NFTListing {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return cloneSlice(c.ownNFTs)
}

func (c *Cache) Rewards() model.RewardBalance {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.rewards
}

// Snapshot returns copy of all slots
func (c *Cache) Snapshot() Snapshot {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	ret := Snapshot{
		Identity:     c.identity,
		Directory:    cloneSlice(c.directory),
		Friends:      cloneSlice(c.friends),
		Pending:      cloneSlice(c.pending),
		Sent:         cloneSlice(c.sent),
		Conversation: model.Conversation{PeerAddress: c.conversation.PeerAddress, Messages: cloneSlice(c.conversation.Messages)},
		OwnPosts:     clonePosts(c.ownPosts),
		PeerPosts:    clonePosts(c.peerPosts),
		NFTListings:  cloneSlice(c.nftListings),
		OwnNFTs:      cloneSlice(c.ownNFTs),
		Rewards:      c.rewards,
	}
	for _, s := range AllSlots {
		if c.optimistic[s] {
			ret.Optimistic = append(ret.Optimistic, s)
		}
	}
	return ret
}

// SnapshotJSON is byte-identical for equal session states
func (c *Cache) SnapshotJSON() []byte {
	data, err := json.Marshal(c.Snapshot())
	util.AssertNoError(err)
	return data
}

// SlotValue returns copy of the slot content
func (c *Cache) SlotValue(slot Slot) (any, bool) {
	switch slot {
	case SlotIdentity:
		return c.Identity(), true
	case SlotDirectory:
		return c.Directory(), true
	case SlotFriends:
		return c.Friends(), true
	case SlotPending:
		return c.Pending(), true
	case SlotSent:
		return c.Sent(), true
	case SlotMessages:
		return c.Conversation(), true
	case SlotOwnPosts:
		return c.OwnPosts(), true
	case SlotPeerPosts:
		return c.PeerPosts(), true
	case SlotNFTListings:
		return c.NFTListings(), true
	case SlotOwnNFTs:
		return c.OwnNFTs(), true
	case SlotRewards:
		return c.Rewards(), true
	case SlotStatus:
		return c.status.Info(), true
	}
	return nil, false
}

func cloneSlice[T any](s []T) []T {
	ret := make([]T, len(s))
	copy(ret, s)
	return ret
}

func clonePosts(s []model.Post) []model.Post {
	ret := make([]model.Post, len(s))
	for i := range s {
		ret[i] = s[i]
		ret[i].Likes = cloneSlice(s[i].Likes)
		ret[i].Comments = cloneSlice(s[i].Comments)
	}
	return ret
}

func containsAddress(lst []string, addr string) bool {
	for _, a := range lst {
		if util.SameAddress(a, addr) {
			return true
		}
	}
	return false
}
