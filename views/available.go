// Package views computes collections derived from the session cache. Derived collections
// are never written back to the cache
package views

import (
	"sync"

	"github.com/lunfardo314/ledgerchat/model"
	"github.com/lunfardo314/ledgerchat/session"
	"github.com/lunfardo314/ledgerchat/util"
)

type (
	// Engine keeps the available-users view up to date with its inputs in the cache.
	// Recomputes are serialized, so the stored view is computed from inputs read after
	// the latest change. Listeners must not mutate the cache
	Engine struct {
		cache       *session.Cache
		mutex       sync.RWMutex
		available   []model.DirectoryUser
		listeners   []func([]model.DirectoryUser)
		notifyMutex sync.Mutex
		// test hook called between compute and store
		afterCompute func()
	}
)

// SlotAvailable is the name of the derived view in change notifications
const SlotAvailable = session.Slot("available")

var availableInputs = map[session.Slot]struct{}{
	session.SlotIdentity:  {},
	session.SlotDirectory: {},
	session.SlotFriends:   {},
	session.SlotPending:   {},
	session.SlotSent:      {},
}

// ComputeAvailable returns directory users which are not self, not friends and not counterparties
// of pending or sent requests. Addresses are compared case-insensitively. Directory order is preserved
func ComputeAvailable(directory []model.DirectoryUser, self string, friends []model.FriendEdge, pending, sent []string) []model.DirectoryUser {
	ret := make([]model.DirectoryUser, 0)
	self = util.NormalizeAddress(self)
	if self == "" || len(directory) == 0 {
		return ret
	}
	excluded := make(map[string]struct{}, 1+len(friends)+len(pending)+len(sent))
	excluded[self] = struct{}{}
	for _, f := range friends {
		excluded[f.Key()] = struct{}{}
	}
	for _, a := range pending {
		excluded[util.NormalizeAddress(a)] = struct{}{}
	}
	for _, a := range sent {
		excluded[util.NormalizeAddress(a)] = struct{}{}
	}
	seen := make(map[string]struct{}, len(directory))
	for _, u := range directory {
		k := u.Key()
		if k == "" {
			continue
		}
		if _, ok := excluded[k]; ok {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		ret = append(ret, u)
	}
	return ret
}

// NewEngine subscribes to the cache and computes the initial view
func NewEngine(cache *session.Cache) *Engine {
	ret := &Engine{cache: cache}
	ret.recompute()
	cache.OnChange(func(slot session.Slot) {
		if _, ok := availableInputs[slot]; ok {
			ret.recompute()
		}
	})
	return ret
}

func (e *Engine) recompute() {
	e.mutex.Lock()
	res := ComputeAvailable(
		e.cache.Directory(),
		e.cache.Identity().Address,
		e.cache.Friends(),
		e.cache.Pending(),
		e.cache.Sent(),
	)
	if e.afterCompute != nil {
		e.afterCompute()
	}
	e.available = res
	e.mutex.Unlock()

	e.notify()
}

// notify delivers the latest view, so concurrent recomputes never leave listeners with an older one
func (e *Engine) notify() {
	e.notifyMutex.Lock()
	defer e.notifyMutex.Unlock()

	e.mutex.RLock()
	listeners := e.listeners
	latest := e.available
	e.mutex.RUnlock()

	for _, fun := range listeners {
		fun(cloneUsers(latest))
	}
}

// Available returns copy of the current view
func (e *Engine) Available() []model.DirectoryUser {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return cloneUsers(e.available)
}

// OnChange registers listener called with the new view after each recompute
func (e *Engine) OnChange(fun func(available []model.DirectoryUser)) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.listeners = append(e.listeners, fun)
}

func cloneUsers(s []model.DirectoryUser) []model.DirectoryUser {
	ret := make([]model.DirectoryUser, len(s))
	copy(ret, s)
	return ret
}
