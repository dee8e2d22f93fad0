// Package model contains canonical shapes of the entities held in the session.
// All shapes are produced by the ledger client normalization and never by the UI.
package model

import (
	"github.com/lunfardo314/ledgerchat/util"
)

type (
	// Identity of the session account. Address keeps original casing for display
	Identity struct {
		Address     string `json:"address"`
		DisplayName string `json:"displayName"`
		Registered  bool   `json:"registered"`
	}

	DirectoryUser struct {
		Name           string `json:"name"`
		AccountAddress string `json:"accountAddress"`
		ImageHash      string `json:"imageHash"`
	}

	FriendEdge struct {
		PeerAddress string `json:"peerAddress"`
		Name        string `json:"name"`
		ImageHash   string `json:"imageHash"`
	}

	Message struct {
		SenderAddress    string `json:"senderAddress"`
		Body             string `json:"body"`
		TimestampSeconds int64  `json:"timestampSeconds"`
	}

	Comment struct {
		CommenterAddress string `json:"commenterAddress"`
		Text             string `json:"text"`
	}

	Post struct {
		ID               uint64    `json:"id"`
		OwnerAddress     string    `json:"ownerAddress"`
		Content          string    `json:"content"`
		ImageHash        string    `json:"imageHash,omitempty"`
		TimestampSeconds int64     `json:"timestampSeconds"`
		Likes            []string  `json:"likes"`
		Comments         []Comment `json:"comments"`
	}

	NFTListing struct {
		TokenID           uint64 `json:"tokenId"`
		OwnerAddress      string `json:"ownerAddress"`
		Title             string `json:"title"`
		PriceWei          string `json:"priceWei"`
		Description       string `json:"description"`
		OriginalImageHash string `json:"originalImageHash"`
		PreviewImageHash  string `json:"previewImageHash"`
		TimestampSeconds  int64  `json:"timestampSeconds"`
		Sold              bool   `json:"sold"`
	}

	// RewardBalance is integer token amount as decimal string
	RewardBalance string

	// Conversation is the list of messages exchanged with one peer
	Conversation struct {
		PeerAddress string    `json:"peerAddress"`
		Messages    []Message `json:"messages"`
	}
)

func (id Identity) Key() string {
	return util.NormalizeAddress(id.Address)
}

func (id Identity) IsEmpty() bool {
	return id.Address == ""
}

func (u DirectoryUser) Key() string {
	return util.NormalizeAddress(u.AccountAddress)
}

func (f FriendEdge) Key() string {
	return util.NormalizeAddress(f.PeerAddress)
}

func (m Message) Valid() bool {
	return m.SenderAddress != "" && m.Body != "" && m.TimestampSeconds > 0
}

// LikedBy checks if the address is among likes of the post
func (p *Post) LikedBy(addr string) bool {
	for _, a := range p.Likes {
		if util.SameAddress(a, addr) {
			return true
		}
	}
	return false
}

// FriendFromDirectory synthesizes friend edge from the directory entry, if found
func FriendFromDirectory(directory []DirectoryUser, addr string) FriendEdge {
	for _, u := range directory {
		if util.SameAddress(u.AccountAddress, addr) {
			return FriendEdge{PeerAddress: u.AccountAddress, Name: u.Name, ImageHash: u.ImageHash}
		}
	}
	return FriendEdge{PeerAddress: addr}
}
