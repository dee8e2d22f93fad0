package ledger

import (
	"context"
	"math/big"

	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/model"
)

// typed reads

func (c *Client) Username(ctx context.Context, addr string) (string, error) {
	res, err := c.Call(ctx, OpGetUsername, addr)
	if err != nil {
		return "", err
	}
	return res.Str, nil
}

func (c *Client) UserExists(ctx context.Context, addr string) (bool, error) {
	res, err := c.Call(ctx, OpCheckUserExists, addr)
	if err != nil {
		return false, err
	}
	return res.Bool(), nil
}

func (c *Client) AllAppUsers(ctx context.Context) ([]model.DirectoryUser, error) {
	res, err := c.Call(ctx, OpGetAllAppUser)
	if err != nil {
		return nil, err
	}
	return parseList(res, parseDirectoryUser), nil
}

func (c *Client) FriendList(ctx context.Context) ([]model.FriendEdge, error) {
	res, err := c.Call(ctx, OpGetMyFriendList)
	if err != nil {
		return nil, err
	}
	return parseList(res, parseFriend), nil
}

func (c *Client) PendingRequests(ctx context.Context) ([]string, error) {
	res, err := c.Call(ctx, OpGetMyPendingRequests)
	if err != nil {
		return nil, err
	}
	return parseAddressList(res), nil
}

func (c *Client) SentRequests(ctx context.Context) ([]string, error) {
	res, err := c.Call(ctx, OpGetMySentRequests)
	if err != nil {
		return nil, err
	}
	return parseAddressList(res), nil
}

// ReadMessages returns valid messages exchanged with the peer in ascending timestamp order
func (c *Client) ReadMessages(ctx context.Context, peer string) ([]model.Message, error) {
	res, err := c.Call(ctx, OpReadMessage, peer)
	if err != nil {
		return nil, err
	}
	return parseMessages(res), nil
}

func (c *Client) MyPosts(ctx context.Context) ([]model.Post, error) {
	res, err := c.Call(ctx, OpGetMyPosts)
	if err != nil {
		return nil, err
	}
	return parsePosts(res, c.Account()), nil
}

func (c *Client) FriendsPosts(ctx context.Context) ([]model.Post, error) {
	res, err := c.Call(ctx, OpGetFriendsPosts)
	if err != nil {
		return nil, err
	}
	return parsePosts(res, ""), nil
}

func (c *Client) AllNFTs(ctx context.Context) ([]model.NFTListing, error) {
	res, err := c.Call(ctx, OpGetAllNFTs)
	if err != nil {
		return nil, err
	}
	return parseList(res, parseNFT), nil
}

func (c *Client) MyNFTs(ctx context.Context) ([]model.NFTListing, error) {
	res, err := c.Call(ctx, OpGetMyNFTs)
	if err != nil {
		return nil, err
	}
	return parseList(res, parseNFT), nil
}

func (c *Client) Rewards(ctx context.Context) (model.RewardBalance, error) {
	res, err := c.Call(ctx, OpGetMyRewards)
	if err != nil {
		return "", err
	}
	n, _ := parseBigInt(res)
	return model.RewardBalance(n.String()), nil
}

// writes. Each returns only after the transaction is confirmed

func (c *Client) CreateAccount(ctx context.Context, name, physicalAddress, imageHash string) error {
	_, err := c.Call(ctx, OpCreateAccount, name, physicalAddress, imageHash)
	return err
}

func (c *Client) SendFriendRequest(ctx context.Context, addr string) error {
	_, err := c.Call(ctx, OpSendFriendRequest, addr)
	return err
}

func (c *Client) AcceptFriendRequest(ctx context.Context, addr string) error {
	_, err := c.Call(ctx, OpAcceptFriendRequest, addr)
	return err
}

func (c *Client) RejectFriendRequest(ctx context.Context, addr string) error {
	_, err := c.Call(ctx, OpRejectFriendRequest, addr)
	return err
}

func (c *Client) SendMessage(ctx context.Context, addr, text string) error {
	_, err := c.Call(ctx, OpSendMessage, addr, text)
	return err
}

func (c *Client) CreatePost(ctx context.Context, content, imageHash string) error {
	_, err := c.Call(ctx, OpCreatePost, content, imageHash)
	return err
}

func (c *Client) LikePost(ctx context.Context, owner string, postID uint64) error {
	_, err := c.Call(ctx, OpLikePost, owner, postID)
	return err
}

func (c *Client) CommentOnPost(ctx context.Context, owner string, postID uint64, text string) error {
	_, err := c.Call(ctx, OpCommentOnPost, owner, postID, text)
	return err
}

// AddNFT lists new token. Price is decimal amount in wei
func (c *Client) AddNFT(ctx context.Context, title, priceWei, description, originalHash, previewHash string) error {
	_, err := c.Call(ctx, OpAddNFT, title, priceWei, description, originalHash, previewHash)
	return err
}

// BuyNFT pays exactly the price with the transaction
func (c *Client) BuyNFT(ctx context.Context, tokenID uint64, price *big.Int) error {
	if price == nil || price.Sign() < 0 {
		return global.Errorf(global.KindValidation, OpBuyNFT.Name, "price must be non-negative")
	}
	_, err := c.Transact(ctx, OpBuyNFT, price, tokenID, price.String())
	return err
}
