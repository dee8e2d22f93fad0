// Package orchestrator runs user actions against the ledger: it validates the input, submits
// the write, waits for the confirmation and re-reads the slots the write can change.
// Errors are converted into the error taxonomy and recorded in the session status
package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/ledger"
	"github.com/lunfardo314/ledgerchat/model"
	"github.com/lunfardo314/ledgerchat/session"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

type (
	environment interface {
		global.ClientGlobal
	}

	// Ledger is the part of the ledger client used by the actions
	Ledger interface {
		SetAccount(addr string)
		Username(ctx context.Context, addr string) (string, error)
		UserExists(ctx context.Context, addr string) (bool, error)
		AllAppUsers(ctx context.Context) ([]model.DirectoryUser, error)
		FriendList(ctx context.Context) ([]model.FriendEdge, error)
		PendingRequests(ctx context.Context) ([]string, error)
		SentRequests(ctx context.Context) ([]string, error)
		ReadMessages(ctx context.Context, peer string) ([]model.Message, error)
		MyPosts(ctx context.Context) ([]model.Post, error)
		FriendsPosts(ctx context.Context) ([]model.Post, error)
		AllNFTs(ctx context.Context) ([]model.NFTListing, error)
		MyNFTs(ctx context.Context) ([]model.NFTListing, error)
		Rewards(ctx context.Context) (model.RewardBalance, error)

		CreateAccount(ctx context.Context, name, physicalAddress, imageHash string) error
		SendFriendRequest(ctx context.Context, addr string) error
		AcceptFriendRequest(ctx context.Context, addr string) error
		RejectFriendRequest(ctx context.Context, addr string) error
		SendMessage(ctx context.Context, addr, text string) error
		CreatePost(ctx context.Context, content, imageHash string) error
		LikePost(ctx context.Context, owner string, postID uint64) error
		CommentOnPost(ctx context.Context, owner string, postID uint64, text string) error
		AddNFT(ctx context.Context, title, priceWei, description, originalHash, previewHash string) error
		BuyNFT(ctx context.Context, tokenID uint64, price *big.Int) error
	}

	// Gate is the source of the session identity
	Gate interface {
		Acquire(ctx context.Context) (model.Identity, error)
		Reset()
	}

	State byte

	Transition struct {
		ActionID string
		Action   string
		From     State
		To       State
		Err      error
	}

	Orchestrator struct {
		environment
		gate   Gate
		ledger Ledger
		cache  *session.Cache
		guard  *session.Guard

		transitionsMutex sync.RWMutex
		onTransition     []func(tr Transition)

		watching atomic.Bool
		metrics  *actionMetrics
	}

	action struct {
		name string
		// slots locked for the whole run of the action
		slots []session.Slot
		// CreateAccount and refresh do not need registered identity
		unregistered bool
		validate     func() error
		submit       func(ctx context.Context) error
		// optimistic patch applied after the confirmation, before the re-read
		patch   func() error
		refresh func(ctx context.Context) error
	}

	actionMetrics struct {
		actions  *prometheus.CounterVec
		duration *prometheus.HistogramVec
	}
)

const (
	StateIdle = State(iota)
	StateValidating
	StateSubmitting
	StateConfirming
	StateRefreshing
	StateFailed
)

const (
	ActionConnect             = "connect"
	ActionRefresh             = "refresh"
	ActionOpenConversation    = "openConversation"
	ActionCreateAccount       = "createAccount"
	ActionSendFriendRequest   = "sendFriendRequest"
	ActionAcceptFriendRequest = "acceptFriendRequest"
	ActionRejectFriendRequest = "rejectFriendRequest"
	ActionSendMessage         = "sendMessage"
	ActionCreatePost          = "createPost"
	ActionLikePost            = "likePost"
	ActionCommentOnPost       = "commentOnPost"
	ActionMintNFT             = "mintNFT"
	ActionBuyNFT              = "buyNFT"

	TraceTag = "orchestrator"
)

var stateNames = [...]string{"Idle", "Validating", "Submitting", "Confirming", "Refreshing", "Failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(?)"
}

func New(env environment, gate Gate, ledgerClient Ledger, cache *session.Cache) *Orchestrator {
	ret := &Orchestrator{
		environment: env,
		gate:        gate,
		ledger:      ledgerClient,
		cache:       cache,
		guard:       session.NewGuard(),
	}
	if reg := env.MetricsRegistry(); reg != nil {
		ret.metrics = &actionMetrics{
			actions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ledgerchat_actions_total",
				Help: "user actions by name and result",
			}, []string{"action", "result"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "ledgerchat_action_seconds",
				Help:    "duration of user actions",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
			}, []string{"action"}),
		}
		reg.MustRegister(ret.metrics.actions, ret.metrics.duration)
	}
	return ret
}

func (o *Orchestrator) Cache() *session.Cache {
	return o.cache
}

func (o *Orchestrator) Guard() *session.Guard {
	return o.guard
}

// OnTransition registers listener of action state transitions. It is called synchronously
func (o *Orchestrator) OnTransition(fun func(tr Transition)) {
	o.transitionsMutex.Lock()
	defer o.transitionsMutex.Unlock()
	o.onTransition = append(o.onTransition, fun)
}

func (o *Orchestrator) emit(tr Transition) {
	o.transitionsMutex.RLock()
	listeners := o.onTransition
	o.transitionsMutex.RUnlock()

	o.Tracef(TraceTag, "%s[%s]: %s -> %s", tr.Action, tr.ActionID[:8], tr.From, tr.To)
	for _, fun := range listeners {
		fun(tr)
	}
}

// run drives the action through its states. Any failure leaves the action Failed,
// with the error recorded in the session status
func (o *Orchestrator) run(ctx context.Context, a *action) (err error) {
	id := uuid.NewString()
	start := time.Now()
	status := o.cache.Status()
	status.SetBusy(a.name, true)

	state := StateIdle
	move := func(to State, e error) {
		from := state
		state = to
		o.emit(Transition{ActionID: id, Action: a.name, From: from, To: to, Err: e})
	}
	defer func() {
		if r := recover(); r != nil {
			err = global.Errorf(global.KindInternal, a.name, "panic: %v", r)
		}
		if err != nil {
			err = global.AsError(a.name, err)
			status.SetError(a.name, err)
			move(StateFailed, err)
			o.Log().Warnf("[%s] failed: %v", a.name, err)
		} else {
			move(StateIdle, nil)
		}
		status.SetBusy(a.name, false)
		o.observe(a.name, start, err)
	}()

	move(StateValidating, nil)
	if err = o.checkIdentity(a); err != nil {
		return err
	}
	if a.validate != nil {
		if err = a.validate(); err != nil {
			return err
		}
	}

	release, err := o.guard.Acquire(ctx, a.slots...)
	if err != nil {
		// the caller gave up while queued behind another action on the same slots
		return global.NewError(global.KindInternal, a.name, fmt.Errorf("waiting for slots %v: %w", a.slots, err))
	}
	defer release()

	if a.submit != nil {
		move(StateSubmitting, nil)
		submitCtx := ledger.WithSubmittedHook(ctx, func(string) {
			move(StateConfirming, nil)
		})
		if err = a.submit(submitCtx); err != nil {
			return err
		}
		if a.patch != nil {
			if err = a.patch(); err != nil {
				return global.NewError(global.KindInternal, a.name, err)
			}
		}
	}
	if a.refresh != nil {
		move(StateRefreshing, nil)
		if err = a.refresh(ctx); err != nil {
			return err
		}
	}
	o.Infof1("[%s] done in %v", a.name, time.Since(start))
	return nil
}

func (o *Orchestrator) checkIdentity(a *action) error {
	id := o.cache.Identity()
	if id.IsEmpty() {
		if a.name == ActionConnect {
			return nil
		}
		return global.Errorf(global.KindConnectionFailed, a.name, "account is not connected")
	}
	if !a.unregistered && !id.Registered {
		return global.Errorf(global.KindNotRegistered, a.name, "account %s is not registered", id.Address)
	}
	return nil
}

func (o *Orchestrator) observe(name string, start time.Time, err error) {
	if o.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = global.KindOf(err).String()
	}
	o.metrics.actions.WithLabelValues(name, result).Inc()
	o.metrics.duration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

func validationError(action, format string, args ...any) error {
	return global.Errorf(global.KindValidation, action, format, args...)
}
