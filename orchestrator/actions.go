package orchestrator

import (
	"context"
	"strconv"
	"strings"

	"github.com/lunfardo314/ledgerchat/model"
	"github.com/lunfardo314/ledgerchat/session"
	"github.com/lunfardo314/ledgerchat/util"
)

func (o *Orchestrator) checkPeer(action, addr string) error {
	if !util.IsAddress(addr) {
		return validationError(action, "wrong account address '%s'", addr)
	}
	return nil
}

// CreateAccount registers the connected account in the ledger directory
func (o *Orchestrator) CreateAccount(ctx context.Context, name, physicalAddress, imageHash string) error {
	name, physicalAddress, imageHash = util.NormalizeText(name), util.NormalizeText(physicalAddress), strings.TrimSpace(imageHash)
	return o.run(ctx, &action{
		name:         ActionCreateAccount,
		slots:        []session.Slot{session.SlotIdentity, session.SlotDirectory},
		unregistered: true,
		validate: func() error {
			switch {
			case o.cache.Identity().Registered:
				return validationError(ActionCreateAccount, "account is already registered")
			case name == "":
				return validationError(ActionCreateAccount, "name is required")
			case physicalAddress == "":
				return validationError(ActionCreateAccount, "physical address is required")
			case imageHash == "":
				return validationError(ActionCreateAccount, "profile image is required")
			}
			return nil
		},
		submit: func(ctx context.Context) error {
			return o.ledger.CreateAccount(ctx, name, physicalAddress, imageHash)
		},
		refresh: func(ctx context.Context) error {
			return o.refreshSlots(ctx, session.SlotIdentity, session.SlotDirectory)
		},
	})
}

func (o *Orchestrator) SendFriendRequest(ctx context.Context, peer string) error {
	peer = strings.TrimSpace(peer)
	return o.run(ctx, &action{
		name:  ActionSendFriendRequest,
		slots: []session.Slot{session.SlotSent},
		validate: func() error {
			if err := o.checkPeer(ActionSendFriendRequest, peer); err != nil {
				return err
			}
			if util.SameAddress(peer, o.cache.Identity().Address) {
				return validationError(ActionSendFriendRequest, "can't send friend request to yourself")
			}
			return nil
		},
		submit: func(ctx context.Context) error {
			return o.ledger.SendFriendRequest(ctx, peer)
		},
		patch: func() error {
			return o.cache.PatchAppend(session.SlotSent, peer)
		},
		refresh: func(ctx context.Context) error {
			return o.refreshSlot(ctx, session.SlotSent)
		},
	})
}

func (o *Orchestrator) AcceptFriendRequest(ctx context.Context, peer string) error {
	peer = strings.TrimSpace(peer)
	return o.run(ctx, &action{
		name:  ActionAcceptFriendRequest,
		slots: []session.Slot{session.SlotFriends, session.SlotPending},
		validate: func() error {
			return o.checkPeer(ActionAcceptFriendRequest, peer)
		},
		submit: func(ctx context.Context) error {
			return o.ledger.AcceptFriendRequest(ctx, peer)
		},
		patch: func() error {
			if err := o.cache.PatchAppend(session.SlotFriends, model.FriendFromDirectory(o.cache.Directory(), peer)); err != nil {
				return err
			}
			return o.cache.PatchRemove(session.SlotPending, peer)
		},
		refresh: func(ctx context.Context) error {
			return o.refreshSlots(ctx, session.SlotFriends, session.SlotPending)
		},
	})
}

func (o *Orchestrator) RejectFriendRequest(ctx context.Context, peer string) error {
	peer = strings.TrimSpace(peer)
	return o.run(ctx, &action{
		name:  ActionRejectFriendRequest,
		slots: []session.Slot{session.SlotPending},
		validate: func() error {
			return o.checkPeer(ActionRejectFriendRequest, peer)
		},
		submit: func(ctx context.Context) error {
			return o.ledger.RejectFriendRequest(ctx, peer)
		},
		patch: func() error {
			return o.cache.PatchRemove(session.SlotPending, peer)
		},
		refresh: func(ctx context.Context) error {
			return o.refreshSlot(ctx, session.SlotPending)
		},
	})
}

// SendMessage sends the text to the peer and re-reads the whole conversation, which becomes current
func (o *Orchestrator) SendMessage(ctx context.Context, peer, text string) error {
	peer, text = util.ChecksumAddress(peer), util.NormalizeText(text)
	return o.run(ctx, &action{
		name:  ActionSendMessage,
		slots: []session.Slot{session.SlotMessages},
		validate: func() error {
			if err := o.checkPeer(ActionSendMessage, peer); err != nil {
				return err
			}
			if text == "" {
				return validationError(ActionSendMessage, "message is empty")
			}
			return nil
		},
		submit: func(ctx context.Context) error {
			return o.ledger.SendMessage(ctx, peer, text)
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
}

func (o *Orchestrator) CreatePost(ctx context.Context, content, imageHash string) error {
	content, imageHash = util.NormalizeText(content), strings.TrimSpace(imageHash)
	return o.run(ctx, &action{
		name:  ActionCreatePost,
		slots: []session.Slot{session.SlotOwnPosts, session.SlotRewards},
		validate: func() error {
			if content == "" {
				return validationError(ActionCreatePost, "post content is empty")
			}
			return nil
		},
		submit: func(ctx context.Context) error {
			return o.ledger.CreatePost(ctx, content, imageHash)
		},
		refresh: func(ctx context.Context) error {
			return o.refreshSlots(ctx, session.SlotOwnPosts, session.SlotRewards)
		},
	})
}

func (o *Orchestrator) postRefreshSlots(owner string) []session.Slot {
	if util.SameAddress(owner, o.cache.Identity().Address) {
		return []session.Slot{session.SlotOwnPosts, session.SlotPeerPosts}
	}
	return []session.Slot{session.SlotPeerPosts}
}

func (o *Orchestrator) LikePost(ctx context.Context, owner string, postID uint64) error {
	owner = strings.TrimSpace(owner)
	slots := o.postRefreshSlots(owner)
	return o.run(ctx, &action{
		name:  ActionLikePost,
		slots: slots,
		validate: func() error {
			return o.checkPeer(ActionLikePost, owner)
		},
		submit: func(ctx context.Context) error {
			return o.ledger.LikePost(ctx, owner, postID)
		},
		refresh: func(ctx context.Context) error {
			return o.refreshSlots(ctx, slots...)
		},
	})
}

func (o *Orchestrator) CommentOnPost(ctx context.Context, owner string, postID uint64, text string) error {
	owner, text = strings.TrimSpace(owner), util.NormalizeText(text)
	slots := o.postRefreshSlots(owner)
	return o.run(ctx, &action{
		name:  ActionCommentOnPost,
		slots: slots,
		validate: func() error {
			if err := o.checkPeer(ActionCommentOnPost, owner); err != nil {
				return err
			}
			if text == "" {
				return validationError(ActionCommentOnPost, "comment is empty")
			}
			return nil
		},
		submit: func(ctx context.Context) error {
			return o.ledger.CommentOnPost(ctx, owner, postID, text)
		},
		refresh: func(ctx context.Context) error {
			return o.refreshSlots(ctx, slots...)
		},
	})
}

// MintNFT lists new token. Price is decimal amount of the native currency, e.g. "0.25"
func (o *Orchestrator) MintNFT(ctx context.Context, title, price, description, originalHash, previewHash string) error {
	title, description = util.NormalizeText(title), util.NormalizeText(description)
	originalHash, previewHash = strings.TrimSpace(originalHash), strings.TrimSpace(previewHash)
	var priceWei string
	return o.run(ctx, &action{
		name:  ActionMintNFT,
		slots: []session.Slot{session.SlotNFTListings, session.SlotOwnNFTs},
		validate: func() error {
			switch {
			case title == "":
				return validationError(ActionMintNFT, "title is required")
			case description == "":
				return validationError(ActionMintNFT, "description is required")
			}
			wei, err := util.ParseAmountToWei(price)
			if err != nil {
				return validationError(ActionMintNFT, "wrong price: %v", err)
			}
			priceWei = wei.String()
			return nil
		},
		submit: func(ctx context.Context) error {
			return o.ledger.AddNFT(ctx, title, priceWei, description, originalHash, previewHash)
		},
		refresh: func(ctx context.Context) error {
			return o.refreshSlots(ctx, session.SlotNFTListings, session.SlotOwnNFTs)
		},
	})
}

// BuyNFT buys the token paying exactly the price in wei
func (o *Orchestrator) BuyNFT(ctx context.Context, tokenID, priceWei string) error {
	var id uint64
	return o.run(ctx, &action{
		name:  ActionBuyNFT,
		slots: []session.Slot{session.SlotNFTListings, session.SlotOwnNFTs},
		validate: func() error {
			var err error
			if id, err = strconv.ParseUint(strings.TrimSpace(tokenID), 10, 64); err != nil {
				return validationError(ActionBuyNFT, "wrong token id '%s'", tokenID)
			}
			if _, err = util.ParseWei(priceWei); err != nil {
				return validationError(ActionBuyNFT, "wrong price: %v", err)
			}
			return nil
		},
		submit: func(ctx context.Context) error {
			price, _ := util.ParseWei(priceWei)
			return o.ledger.BuyNFT(ctx, id, price)
		},
		refresh: func(ctx context.Context) error {
			return o.refreshSlots(ctx, session.SlotNFTListings, session.SlotOwnNFTs)
		},
	})
}

// BuyListing buys the token from the current listings at its listed price
func (o *Orchestrator) BuyListing(ctx context.Context, tokenID uint64) error {
	for _, n := range o.cache.NFTListings() {
		if n.TokenID == tokenID {
			return o.BuyNFT(ctx, strconv.FormatUint(tokenID, 10), n.PriceWei)
		}
	}
	err := validationError(ActionBuyNFT, "token %d is not listed", tokenID)
	o.cache.Status().SetError(ActionBuyNFT, err)
	return err
}
