package api

import (
	"github.com/lunfardo314/ledgerchat/model"
	"github.com/lunfardo314/ledgerchat/session"
	"github.com/lunfardo314/ledgerchat/txstore"
)

const (
	PrefixAPIV1 = "/api/v1"

	PathGetSession   = PrefixAPIV1 + "/session"
	PathGetSlot      = PrefixAPIV1 + "/session/{slot}"
	PathGetAvailable = PrefixAPIV1 + "/available"
	PathGetStatus    = PrefixAPIV1 + "/status"
	PathGetJournal   = PrefixAPIV1 + "/journal"
	// PathPostAction request format: POST '/api/v1/actions/<action name>' with ActionRequest in the body
	PathPostAction = PrefixAPIV1 + "/actions/{action}"
	PathGetImage   = PrefixAPIV1 + "/image/{hash}"

	PathSlotStream = "/ws"
	PathMetrics    = "/metrics"

	// TopicPrefix of MQTT topics with slot values: 'lchat/session/<slot>'
	TopicPrefix = "lchat/session/"
)

type (
	Error struct {
		// empty string when no error
		Error string `json:"error,omitempty"`
		// error kind from the taxonomy, like 'ValidationError'
		Kind string `json:"kind,omitempty"`
	}

	Session struct {
		Error
		session.Snapshot
	}

	Slot struct {
		Error
		Slot  session.Slot `json:"slot"`
		Value any          `json:"value"`
	}

	Available struct {
		Error
		Users []model.DirectoryUser `json:"users"`
	}

	Status struct {
		Error
		session.StatusInfo
	}

	Journal struct {
		Error
		Records []*txstore.Record `json:"records"`
	}

	// ActionRequest carries parameters of all actions. Each action uses its own subset
	ActionRequest struct {
		Peer            string `json:"peer,omitempty"`
		Text            string `json:"text,omitempty"`
		Name            string `json:"name,omitempty"`
		PhysicalAddress string `json:"physicalAddress,omitempty"`
		ImageHash       string `json:"imageHash,omitempty"`
		Owner           string `json:"owner,omitempty"`
		PostID          uint64 `json:"postId,omitempty"`
		Title           string `json:"title,omitempty"`
		// Price is decimal amount in main units for mintNFT
		Price        string `json:"price,omitempty"`
		Description  string `json:"description,omitempty"`
		OriginalHash string `json:"originalHash,omitempty"`
		PreviewHash  string `json:"previewHash,omitempty"`
		TokenID      string `json:"tokenId,omitempty"`
		// PriceWei is used by buyNFT. When empty, the listed price is paid
		PriceWei string `json:"priceWei,omitempty"`
	}

	ActionResponse struct {
		Error
		Action string `json:"action"`
		// Identity is returned by 'connect'
		Identity *model.Identity `json:"identity,omitempty"`
	}

	// SlotEvent is streamed over websocket and published to MQTT after each slot change
	SlotEvent struct {
		Slot  session.Slot `json:"slot"`
		Value any          `json:"value"`
	}
)
