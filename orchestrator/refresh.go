package orchestrator

import (
	"context"
	"time"

	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/model"
	"github.com/lunfardo314/ledgerchat/session"
	"github.com/lunfardo314/ledgerchat/util"
	"golang.org/x/exp/slices"
)

// slots readable without registration
var publicSlots = []session.Slot{session.SlotIdentity, session.SlotDirectory, session.SlotNFTListings}

// refreshSlot re-reads one slot from the ledger and replaces it in the cache.
// The caller must hold the guard of the slot
func (o *Orchestrator) refreshSlot(ctx context.Context, slot session.Slot) error {
	switch slot {
	case session.SlotIdentity:
		addr := o.cache.Identity().Address
		if addr == "" {
			return nil
		}
		exists, err := o.ledger.UserExists(ctx, addr)
		if err != nil {
			return err
		}
		id := model.Identity{Address: addr, Registered: exists}
		if exists {
			if id.DisplayName, err = o.ledger.Username(ctx, addr); err != nil {
				return err
			}
		}
		o.cache.SetIdentity(id)
	case session.SlotDirectory:
		v, err := o.ledger.AllAppUsers(ctx)
		if err != nil {
			return err
		}
		o.cache.SetDirectory(v)
	case session.SlotFriends:
		v, err := o.ledger.FriendList(ctx)
		if err != nil {
			return err
		}
		o.cache.SetFriends(v)
	case session.SlotPending:
		v, err := o.ledger.PendingRequests(ctx)
		if err != nil {
			return err
		}
		o.cache.SetPending(v)
	case session.SlotSent:
		v, err := o.ledger.SentRequests(ctx)
		if err != nil {
			return err
		}
		o.cache.SetSent(v)
	case session.SlotMessages:
		peer := o.cache.Conversation().PeerAddress
		if peer == "" {
			return nil
		}
		v, err := o.ledger.ReadMessages(ctx, peer)
		if err != nil {
			return err
		}
		o.cache.SetConversation(peer, v)
	case session.SlotOwnPosts:
		v, err := o.ledger.MyPosts(ctx)
		if err != nil {
			return err
		}
		o.cache.SetOwnPosts(v)
	case session.SlotPeerPosts:
		v, err := o.ledger.FriendsPosts(ctx)
		if err != nil {
			return err
		}
		o.cache.SetPeerPosts(v)
	case session.SlotNFTListings:
		v, err := o.ledger.AllNFTs(ctx)
		if err != nil {
			return err
		}
		o.cache.SetNFTListings(v)
	case session.SlotOwnNFTs:
		v, err := o.ledger.MyNFTs(ctx)
		if err != nil {
			return err
		}
		o.cache.SetOwnNFTs(v)
	case session.SlotRewards:
		v, err := o.ledger.Rewards(ctx)
		if err != nil {
			return err
		}
		o.cache.SetRewards(v)
	}
	return nil
}

func (o *Orchestrator) refreshSlots(ctx context.Context, slots ...session.Slot) error {
	for _, s := range slots {
		if err := o.refreshSlot(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// bulkRefresh reads identity first. Slots tied to the account are read only when it is registered
func (o *Orchestrator) bulkRefresh(ctx context.Context) error {
	if err := o.refreshSlots(ctx, publicSlots...); err != nil {
		return err
	}
	if !o.cache.Identity().Registered {
		return nil
	}
	for _, s := range session.AllSlots {
		if slices.Contains(publicSlots, s) {
			continue
		}
		if err := o.refreshSlot(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Connect acquires the identity from the account provider and reads the whole session from the ledger.
// When the account differs from the current one, the session is emptied first
func (o *Orchestrator) Connect(ctx context.Context) (model.Identity, error) {
	var id model.Identity
	err := o.run(ctx, &action{
		name:         ActionConnect,
		slots:        session.AllSlots,
		unregistered: true,
		validate: func() error {
			var err error
			id, err = o.gate.Acquire(ctx)
			return err
		},
		refresh: func(ctx context.Context) error {
			if !util.SameAddress(o.cache.Identity().Address, id.Address) {
				o.cache.Reset()
				o.cache.SetIdentity(id)
			}
			o.ledger.SetAccount(id.Address)
			return o.bulkRefresh(ctx)
		},
	})
	if err != nil {
		return model.Identity{}, err
	}
	return o.cache.Identity(), nil
}

// Disconnect forgets the identity and empties the session
func (o *Orchestrator) Disconnect() {
	o.gate.Reset()
	o.ledger.SetAccount("")
	o.cache.Reset()
	o.Infof0("[session] disconnected")
}

// RefreshAll re-reads all slots. Repeating it with unchanged ledger leaves the session unchanged
func (o *Orchestrator) RefreshAll(ctx context.Context) error {
	return o.run(ctx, &action{
		name:         ActionRefresh,
		slots:        session.AllSlots,
		unregistered: true,
		refresh:      o.bulkRefresh,
	})
}

// OpenConversation makes the peer current and reads the messages exchanged with it
func (o *Orchestrator) OpenConversation(ctx context.Context, peer string) ([]model.Message, error) {
	peer = util.ChecksumAddress(peer)
	err := o.run(ctx, &action{
		name:  ActionOpenConversation,
		slots: []session.Slot{session.SlotMessages},
		validate: func() error {
			if !util.IsAddress(peer) {
				return validationError(ActionOpenConversation, "wrong peer address '%s'", peer)
			}
			return nil
		},
		refresh: func(ctx context.Context) error {
			msgs, err := o.ledger.ReadMessages(ctx, peer)
			if err != nil {
				return err
			}
			o.cache.SetConversation(peer, msgs)
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return o.cache.Conversation().Messages, nil
}

// WatchConversation starts background re-reading of messages with the current peer.
// The slot is replaced only when messages change. Period 0 or less does nothing
func (o *Orchestrator) WatchConversation(period time.Duration) {
	if period <= 0 || !o.watching.CompareAndSwap(false, true) {
		return
	}
	o.RepeatInBackground("conversation_watch", period, func() bool {
		o.pollConversation()
		return !o.IsShuttingDown()
	}, true)
}

func (o *Orchestrator) pollConversation() {
	if !o.cache.Identity().Registered {
		return
	}
	ctx, cancel := context.WithTimeout(o.Ctx(), 30*time.Second)
	defer cancel()

	release, err := o.guard.Acquire(ctx, session.SlotMessages)
	if err != nil {
		return
	}
	defer release()

	conv := o.cache.Conversation()
	if conv.PeerAddress == "" {
		return
	}
	msgs, err := o.ledger.ReadMessages(ctx, conv.PeerAddress)
	if err != nil {
		o.Log().Warnf("[conversation_watch] %v", global.AsError("readMessage", err))
		return
	}
	if !slices.Equal(msgs, conv.Messages) {
		o.cache.SetConversation(conv.PeerAddress, msgs)
		o.Tracef(TraceTag, "conversation with %s: %d messages", conv.PeerAddress, len(msgs))
	}
}
