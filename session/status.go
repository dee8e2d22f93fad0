package session

import (
	"sort"
	"sync"
	"time"

	"github.com/lunfardo314/ledgerchat/global"
	"go.uber.org/atomic"
)

type (
	// Status keeps the latest error of the session and the number of calls in progress per action
	Status struct {
		mutex    sync.RWMutex
		lastErr  *ErrorInfo
		busy     map[string]*atomic.Int32
		onChange func()
	}

	ErrorInfo struct {
		Action  string    `json:"action"`
		Kind    string    `json:"kind"`
		Message string    `json:"message"`
		At      time.Time `json:"at"`
	}

	StatusInfo struct {
		LastError *ErrorInfo `json:"lastError,omitempty"`
		Busy      []string   `json:"busy"`
	}
)

func newStatus(onChange func()) *Status {
	return &Status{
		busy:     make(map[string]*atomic.Int32),
		onChange: onChange,
	}
}

// SetError records the error of the action. nil error is ignored
func (s *Status) SetError(action string, err error) {
	if err == nil {
		return
	}
	s.mutex.Lock()
	s.lastErr = &ErrorInfo{
		Action:  action,
		Kind:    global.KindOf(err).String(),
		Message: err.Error(),
		At:      time.Now().UTC(),
	}
	s.mutex.Unlock()
	s.onChange()
}

func (s *Status) ClearError() {
	s.mutex.Lock()
	changed := s.lastErr != nil
	s.lastErr = nil
	s.mutex.Unlock()
	if changed {
		s.onChange()
	}
}

func (s *Status) LastError() (ErrorInfo, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.lastErr == nil {
		return ErrorInfo{}, false
	}
	return *s.lastErr, true
}

func (s *Status) counter(action string) *atomic.Int32 {
	s.mutex.RLock()
	f, ok := s.busy[action]
	s.mutex.RUnlock()
	if ok {
		return f
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if f, ok = s.busy[action]; !ok {
		f = atomic.NewInt32(0)
		s.busy[action] = f
	}
	return f
}

// SetBusy counts one more (busy) or one less (not busy) call of the action in progress.
// The action is busy while the count is positive. Returns whether it was busy before
func (s *Status) SetBusy(action string, busy bool) bool {
	var n int32
	if busy {
		n = s.counter(action).Inc()
		if n == 1 {
			s.onChange()
		}
		return n > 1
	}
	c := s.counter(action)
	for {
		prev := c.Load()
		if prev <= 0 {
			return false
		}
		if c.CompareAndSwap(prev, prev-1) {
			n = prev - 1
			break
		}
	}
	if n == 0 {
		s.onChange()
	}
	return true
}

func (s *Status) Busy(action string) bool {
	return s.counter(action).Load() > 0
}

// BusyActions returns sorted names of the actions in progress
func (s *Status) BusyActions() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ret := make([]string, 0)
	for name, f := range s.busy {
		if f.Load() > 0 {
			ret = append(ret, name)
		}
	}
	sort.Strings(ret)
	return ret
}

func (s *Status) Info() StatusInfo {
	ret := StatusInfo{Busy: s.BusyActions()}
	if e, ok := s.LastError(); ok {
		ret.LastError = &e
	}
	return ret
}
