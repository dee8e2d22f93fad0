package ledger

import (
	"math/big"
	"strings"

	"github.com/lunfardo314/ledgerchat/model"
	"github.com/lunfardo314/ledgerchat/util"
	"github.com/tidwall/gjson"
	"golang.org/x/exp/slices"
)

// Entities returned by the ledger service come either as objects with named fields
// or as positional tuples. Field names vary between service versions, so each field
// is looked up by its position in the tuple or by any of the known names

var (
	fieldName        = []string{"name", "username", "userName"}
	fieldAccount     = []string{"accountAddress", "pubkey", "address", "addr", "account"}
	fieldImageHash   = []string{"imageHash", "image", "imageHashIPFS", "profileImageHash"}
	fieldSender      = []string{"sender", "senderAddress", "from", "pubkey"}
	fieldTimestamp   = []string{"timestamp", "timestampSeconds", "time", "ts"}
	fieldBody        = []string{"msg", "body", "message", "text"}
	fieldPostID      = []string{"id", "postId", "postID"}
	fieldOwner       = []string{"owner", "ownerAddress", "author", "pubkey"}
	fieldContent     = []string{"content", "text", "body"}
	fieldLikes       = []string{"likes", "likedBy"}
	fieldComments    = []string{"comments"}
	fieldCommenter   = []string{"commenter", "commenterAddress", "author", "address", "pubkey"}
	fieldCommentText = []string{"text", "comment", "content"}
	fieldTokenID     = []string{"tokenId", "tokenID", "id"}
	fieldTitle       = []string{"title", "name"}
	fieldPrice       = []string{"price", "priceWei"}
	fieldDescription = []string{"description", "desc"}
	fieldOriginal    = []string{"originalImageHash", "originalHash", "original"}
	fieldPreview     = []string{"previewImageHash", "previewHash", "preview"}
	fieldSold        = []string{"sold", "isSold"}
)

func pick(r gjson.Result, idx int, names []string) gjson.Result {
	if r.IsArray() {
		arr := r.Array()
		if idx >= 0 && idx < len(arr) {
			return arr[idx]
		}
		return gjson.Result{}
	}
	if r.IsObject() {
		for _, n := range names {
			if v := r.Get(n); v.Exists() {
				return v
			}
		}
	}
	return gjson.Result{}
}

func pickString(r gjson.Result, idx int, names []string) string {
	v := pick(r, idx, names)
	if v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.Str)
}

// parseBigInt accepts JSON number, decimal string or 0x-prefixed hex string
func parseBigInt(r gjson.Result) (*big.Int, bool) {
	var s string
	switch r.Type {
	case gjson.Number:
		s = r.Raw
	case gjson.String:
		s = strings.TrimSpace(r.Str)
	default:
		return nil, false
	}
	if s == "" {
		return nil, false
	}
	ret := new(big.Int)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if _, ok := ret.SetString(s[2:], 16); !ok {
			return nil, false
		}
		return ret, true
	}
	if _, ok := ret.SetString(s, 10); !ok {
		return nil, false
	}
	return ret, true
}

func parseUint64(r gjson.Result) (uint64, bool) {
	n, ok := parseBigInt(r)
	if !ok || n.Sign() < 0 || !n.IsUint64() {
		return 0, false
	}
	return n.Uint64(), true
}

func parseInt64(r gjson.Result) (int64, bool) {
	n, ok := parseBigInt(r)
	if !ok || !n.IsInt64() {
		return 0, false
	}
	return n.Int64(), true
}

func parseBool(r gjson.Result) bool {
	switch r.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return strings.EqualFold(strings.TrimSpace(r.Str), "true")
	}
	return false
}

func parseStringList(r gjson.Result) []string {
	ret := make([]string, 0)
	r.ForEach(func(_, v gjson.Result) bool {
		if v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			ret = append(ret, strings.TrimSpace(v.Str))
		}
		return true
	})
	return ret
}

// parseAddressList accepts list of plain addresses or of friend-like entries
func parseAddressList(r gjson.Result) []string {
	ret := make([]string, 0)
	r.ForEach(func(_, v gjson.Result) bool {
		var addr string
		switch {
		case v.Type == gjson.String:
			addr = strings.TrimSpace(v.Str)
		case v.IsArray(), v.IsObject():
			addr = pickString(v, 0, fieldAccount)
		}
		if addr != "" {
			ret = append(ret, addr)
		}
		return true
	})
	return ret
}

// directory entry tuple: [name, accountAddress, imageHash]
func parseDirectoryUser(r gjson.Result) (model.DirectoryUser, bool) {
	ret := model.DirectoryUser{
		Name:           pickString(r, 0, fieldName),
		AccountAddress: pickString(r, 1, fieldAccount),
		ImageHash:      pickString(r, 2, fieldImageHash),
	}
	return ret, ret.AccountAddress != ""
}

// friend tuple: [pubkey, name, imageHash]
func parseFriend(r gjson.Result) (model.FriendEdge, bool) {
	if r.Type == gjson.String {
		addr := strings.TrimSpace(r.Str)
		return model.FriendEdge{PeerAddress: addr}, addr != ""
	}
	ret := model.FriendEdge{
		PeerAddress: pickString(r, 0, fieldAccount),
		Name:        pickString(r, 1, fieldName),
		ImageHash:   pickString(r, 2, fieldImageHash),
	}
	return ret, ret.PeerAddress != ""
}

// message tuple: [sender, timestamp, msg]
func parseMessage(r gjson.Result) (model.Message, bool) {
	ts, ok := parseInt64(pick(r, 1, fieldTimestamp))
	if !ok {
		return model.Message{}, false
	}
	ret := model.Message{
		SenderAddress:    pickString(r, 0, fieldSender),
		Body:             pickString(r, 2, fieldBody),
		TimestampSeconds: ts,
	}
	return ret, ret.Valid()
}

// comment tuple: [commenter, text]
func parseComment(r gjson.Result) (model.Comment, bool) {
	ret := model.Comment{
		CommenterAddress: pickString(r, 0, fieldCommenter),
		Text:             pickString(r, 1, fieldCommentText),
	}
	return ret, ret.Text != ""
}

// post tuple: [id, owner, content, imageHash, timestamp, likes, comments]
func parsePost(r gjson.Result) (model.Post, bool, bool) {
	ret := model.Post{
		OwnerAddress: pickString(r, 1, fieldOwner),
		Content:      pickString(r, 2, fieldContent),
		ImageHash:    pickString(r, 3, fieldImageHash),
		Likes:        parseStringList(pick(r, 5, fieldLikes)),
		Comments:     make([]model.Comment, 0),
	}
	ret.TimestampSeconds, _ = parseInt64(pick(r, 4, fieldTimestamp))
	pick(r, 6, fieldComments).ForEach(func(_, v gjson.Result) bool {
		if c, ok := parseComment(v); ok {
			ret.Comments = append(ret.Comments, c)
		}
		return true
	})
	var hasID bool
	ret.ID, hasID = parseUint64(pick(r, 0, fieldPostID))
	return ret, hasID, ret.Content != "" || ret.ImageHash != ""
}

// NFT tuple: [tokenId, owner, title, price, description, originalHash, previewHash, timestamp, sold]
func parseNFT(r gjson.Result) (model.NFTListing, bool) {
	id, ok := parseUint64(pick(r, 0, fieldTokenID))
	if !ok {
		return model.NFTListing{}, false
	}
	ret := model.NFTListing{
		TokenID:           id,
		OwnerAddress:      pickString(r, 1, fieldOwner),
		Title:             pickString(r, 2, fieldTitle),
		PriceWei:          "0",
		Description:       pickString(r, 4, fieldDescription),
		OriginalImageHash: pickString(r, 5, fieldOriginal),
		PreviewImageHash:  pickString(r, 6, fieldPreview),
		Sold:              parseBool(pick(r, 8, fieldSold)),
	}
	if price, ok := parseBigInt(pick(r, 3, fieldPrice)); ok && price.Sign() >= 0 {
		ret.PriceWei = price.String()
	}
	ret.TimestampSeconds, _ = parseInt64(pick(r, 7, fieldTimestamp))
	return ret, true
}

func parseList[T any](r gjson.Result, parse func(gjson.Result) (T, bool)) []T {
	ret := make([]T, 0)
	r.ForEach(func(_, v gjson.Result) bool {
		if e, ok := parse(v); ok {
			ret = append(ret, e)
		}
		return true
	})
	return ret
}

// parseMessages drops invalid entries and orders by timestamp. Order of messages with equal
// timestamps is the order of the response
func parseMessages(r gjson.Result) []model.Message {
	ret := parseList(r, parseMessage)
	slices.SortStableFunc(ret, func(a, b model.Message) int {
		switch {
		case a.TimestampSeconds < b.TimestampSeconds:
			return -1
		case a.TimestampSeconds > b.TimestampSeconds:
			return 1
		}
		return 0
	})
	return ret
}

// parsePosts assigns position in the owner's list as the id of the posts which come without it
func parsePosts(r gjson.Result, defaultOwner string) []model.Post {
	ret := make([]model.Post, 0)
	positions := make(map[string]uint64)
	r.ForEach(func(_, v gjson.Result) bool {
		p, hasID, ok := parsePost(v)
		if p.OwnerAddress == "" {
			p.OwnerAddress = defaultOwner
		}
		key := util.NormalizeAddress(p.OwnerAddress)
		pos := positions[key]
		positions[key] = pos + 1
		if !ok || p.OwnerAddress == "" {
			return true
		}
		if !hasID {
			p.ID = pos
		}
		ret = append(ret, p)
		return true
	})
	return ret
}
