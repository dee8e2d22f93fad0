package ledger

type (
	Kind byte

	// Shape is the expected JSON shape of the operation result
	Shape byte

	Operation struct {
		Name  string
		Kind  Kind
		Shape Shape
	}
)

const (
	Read = Kind(iota)
	Write
)

const (
	ShapeAny = Shape(iota)
	ShapeArray
	ShapeString
	ShapeBool
	ShapeInteger
)

func (k Kind) String() string {
	if k == Write {
		return "write"
	}
	return "read"
}

func (s Shape) String() string {
	switch s {
	case ShapeArray:
		return "array"
	case ShapeString:
		return "string"
	case ShapeBool:
		return "bool"
	case ShapeInteger:
		return "integer"
	}
	return "any"
}

// the ledger service operation contract

var (
	OpGetUsername          = Operation{Name: "getUsername", Kind: Read, Shape: ShapeString}
	OpCheckUserExists      = Operation{Name: "checkUserExists", Kind: Read, Shape: ShapeBool}
	OpGetAllAppUser        = Operation{Name: "getAllAppUser", Kind: Read, Shape: ShapeArray}
	OpGetMyFriendList      = Operation{Name: "getMyFriendList", Kind: Read, Shape: ShapeArray}
	OpGetMyPendingRequests = Operation{Name: "getMyPendingRequests", Kind: Read, Shape: ShapeArray}
	OpGetMySentRequests    = Operation{Name: "getMySentRequests", Kind: Read, Shape: ShapeArray}
	OpReadMessage          = Operation{Name: "readMessage", Kind: Read, Shape: ShapeArray}
	OpGetMyPosts           = Operation{Name: "getMyPosts", Kind: Read, Shape: ShapeArray}
	OpGetFriendsPosts      = Operation{Name: "getFriendsPosts", Kind: Read, Shape: ShapeArray}
	OpGetAllNFTs           = Operation{Name: "getAllNFTs", Kind: Read, Shape: ShapeArray}
	OpGetMyNFTs            = Operation{Name: "getMyNFTs", Kind: Read, Shape: ShapeArray}
	OpGetMyRewards         = Operation{Name: "getMyRewards", Kind: Read, Shape: ShapeInteger}

	OpCreateAccount       = Operation{Name: "createAccount", Kind: Write}
	OpSendFriendRequest   = Operation{Name: "sendFriendRequest", Kind: Write}
	OpAcceptFriendRequest = Operation{Name: "acceptFriendRequest", Kind: Write}
	OpRejectFriendRequest = Operation{Name: "rejectFriendRequest", Kind: Write}
	OpSendMessage         = Operation{Name: "sendMessage", Kind: Write}
	OpCreatePost          = Operation{Name: "createPost", Kind: Write}
	OpLikePost            = Operation{Name: "likePost", Kind: Write}
	OpCommentOnPost       = Operation{Name: "commentOnPost", Kind: Write}
	OpAddNFT              = Operation{Name: "addNFT", Kind: Write}
	OpBuyNFT              = Operation{Name: "buyNFT", Kind: Write}
)

var allOperations = []Operation{
	OpGetUsername, OpCheckUserExists, OpGetAllAppUser, OpGetMyFriendList, OpGetMyPendingRequests,
	OpGetMySentRequests, OpReadMessage, OpGetMyPosts, OpGetFriendsPosts, OpGetAllNFTs, OpGetMyNFTs,
	OpGetMyRewards,
	OpCreateAccount, OpSendFriendRequest, OpAcceptFriendRequest, OpRejectFriendRequest, OpSendMessage,
	OpCreatePost, OpLikePost, OpCommentOnPost, OpAddNFT, OpBuyNFT,
}

// OperationByName looks up the operation contract by method name
func OperationByName(name string) (Operation, bool) {
	for _, op := range allOperations {
		if op.Name == name {
			return op, true
		}
	}
	return Operation{}, false
}
