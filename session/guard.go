package session

import (
	"context"
	"sort"
	"sync"

	"github.com/gammazero/deque"
)

type (
	// Guard serializes actions touching the same slots. Waiters of a slot are served
	// in the order of arrival
	Guard struct {
		mutex sync.Mutex
		slots map[Slot]*slotLock
	}

	slotLock struct {
		held    bool
		waiters *deque.Deque[*waiter]
	}

	waiter struct {
		ch       chan struct{}
		granted  bool
		canceled bool
	}
)

func NewGuard() *Guard {
	return &Guard{slots: make(map[Slot]*slotLock)}
}

func (g *Guard) slotLock(s Slot) *slotLock {
	ret, ok := g.slots[s]
	if !ok {
		ret = &slotLock{waiters: deque.New[*waiter]()}
		g.slots[s] = ret
	}
	return ret
}

// Acquire locks all the slots in canonical order. The returned function releases them.
// On context cancel, slots already taken are released and the context error is returned
func (g *Guard) Acquire(ctx context.Context, slots ...Slot) (func(), error) {
	ordered := canonical(slots)
	taken := make([]Slot, 0, len(ordered))
	for _, s := range ordered {
		if err := g.lock(ctx, s); err != nil {
			g.releaseAll(taken)
			return nil, err
		}
		taken = append(taken, s)
	}
	var once sync.Once
	return func() {
		once.Do(func() { g.releaseAll(taken) })
	}, nil
}

// Queued returns number of waiters of the slot, not including the holder
func (g *Guard) Queued(s Slot) int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	sl := g.slotLock(s)
	n := 0
	for i := 0; i < sl.waiters.Len(); i++ {
		if !sl.waiters.At(i).canceled {
			n++
		}
	}
	return n
}

// Held returns true if the slot is locked
func (g *Guard) Held(s Slot) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.slotLock(s).held
}

func (g *Guard) lock(ctx context.Context, s Slot) error {
	g.mutex.Lock()
	sl := g.slotLock(s)
	if !sl.held {
		sl.held = true
		g.mutex.Unlock()
		return nil
	}
	w := &waiter{ch: make(chan struct{})}
	sl.waiters.PushBack(w)
	g.mutex.Unlock()

	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		g.mutex.Lock()
		granted := w.granted
		w.canceled = true
		g.mutex.Unlock()
		if granted {
			// ownership was handed over concurrently with the cancel
			g.unlock(s)
		}
		return ctx.Err()
	}
}

// unlock hands the slot over to the first waiter which is still waiting
func (g *Guard) unlock(s Slot) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	sl := g.slotLock(s)
	for sl.waiters.Len() > 0 {
		w := sl.waiters.PopFront()
		if w.canceled {
			continue
		}
		w.granted = true
		close(w.ch)
		return
	}
	sl.held = false
}

func (g *Guard) releaseAll(taken []Slot) {
	for i := len(taken) - 1; i >= 0; i-- {
		g.unlock(taken[i])
	}
}

func canonical(slots []Slot) []Slot {
	ret := make([]Slot, 0, len(slots))
	seen := make(map[Slot]struct{})
	for _, s := range slots {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		ret = append(ret, s)
	}
	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i].index() < ret[j].index()
	})
	return ret
}
