// Package ledgertest implements in-memory ledger service with the contract semantics
// of the social ledger. It implements ledger.Backend and is used in tests of the
// packages above the ledger client
package ledgertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/ledger"
	"github.com/lunfardo314/ledgerchat/util"
	"golang.org/x/crypto/sha3"
)

type (
	Ledger struct {
		mutex sync.Mutex

		accounts map[string]*account
		order    []string
		friends  map[string][]string
		pending  map[string][]string // incoming requests of the key
		sent     map[string][]string
		messages map[string][]message
		posts    map[string][]*post
		nfts     []*nft
		rewards  map[string]*big.Int

		clock     int64
		txCounter int
		receipts  map[string]*txState

		objectForm    bool
		confirmAfter  int
		rejectNext    map[string]int
		revertNext    map[string]int
		callErr       error
		rawResults    map[string]json.RawMessage
		calls         map[string]int
		rewardPerPost int64
	}

	account struct {
		addr      string
		name      string
		physical  string
		imageHash string
	}

	message struct {
		sender string
		ts     int64
		body   string
	}

	post struct {
		id        uint64
		owner     string
		content   string
		imageHash string
		ts        int64
		likes     []string
		comments  [][2]string
	}

	nft struct {
		id          uint64
		owner       string
		title       string
		price       *big.Int
		description string
		original    string
		preview     string
		ts          int64
		sold        bool
	}

	txState struct {
		receipt *ledger.Receipt
		polls   int
	}
)

const (
	StartTimestamp       = int64(1_700_000_000)
	DefaultRewardPerPost = 10
)

// ErrUnavailable is returned by calls when the ledger is set unavailable
var ErrUnavailable = errors.New("ledgertest: service unavailable")

func New() *Ledger {
	return &Ledger{
		accounts:      make(map[string]*account),
		friends:       make(map[string][]string),
		pending:       make(map[string][]string),
		sent:          make(map[string][]string),
		messages:      make(map[string][]message),
		posts:         make(map[string][]*post),
		rewards:       make(map[string]*big.Int),
		clock:         StartTimestamp,
		receipts:      make(map[string]*txState),
		rejectNext:    make(map[string]int),
		revertNext:    make(map[string]int),
		rawResults:    make(map[string]json.RawMessage),
		calls:         make(map[string]int),
		rewardPerPost: DefaultRewardPerPost,
	}
}

func key(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// configuration knobs

// SetObjectForm switches responses from positional tuples to objects with alternate field names
func (l *Ledger) SetObjectForm(on bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.objectForm = on
}

// SetConfirmAfter makes receipts appear only after n polls
func (l *Ledger) SetConfirmAfter(n int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.confirmAfter = n
}

// RejectNext makes the next submission of the method to be rejected by the user
func (l *Ledger) RejectNext(method string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.rejectNext[method]++
}

// RevertNext makes the next transaction of the method to be reverted without effect
func (l *Ledger) RevertNext(method string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.revertNext[method]++
}

// SetUnavailable makes all calls fail with the error. nil restores the service
func (l *Ledger) SetUnavailable(err error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.callErr = err
}

// SetRawResult overrides the result of the read method
func (l *Ledger) SetRawResult(method string, raw string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if raw == "" {
		delete(l.rawResults, method)
		return
	}
	l.rawResults[method] = json.RawMessage(raw)
}

// Calls returns number of calls and submissions of the method
func (l *Ledger) Calls(method string) int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.calls[method]
}

func (l *Ledger) ResetCalls() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.calls = make(map[string]int)
}

// direct state setup

// Register creates account without a transaction
func (l *Ledger) Register(addr, name, imageHash string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.createAccount(addr, name, "", imageHash)
}

// MakeFriends creates friendship without a transaction
func (l *Ledger) MakeFriends(a, b string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.friends[key(a)] = util.AppendUnique(l.friends[key(a)], key(b))
	l.friends[key(b)] = util.AppendUnique(l.friends[key(b)], key(a))
}

// AddRawMessage appends message to the conversation as is, without validation
func (l *Ledger) AddRawMessage(sender, peer string, ts int64, body string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	ck := chatKey(sender, peer)
	l.messages[ck] = append(l.messages[ck], message{sender: sender, ts: ts, body: body})
}

func (l *Ledger) IsFriend(a, b string) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return contains(l.friends[key(a)], key(b))
}

func (l *Ledger) Balance(addr string) *big.Int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if b, ok := l.rewards[key(addr)]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// ledger.Backend

func (l *Ledger) Call(ctx context.Context, req ledger.Request) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.calls[req.Method]++
	if l.callErr != nil {
		return nil, l.callErr
	}
	if raw, ok := l.rawResults[req.Method]; ok {
		return raw, nil
	}
	res, err := l.read(req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

func (l *Ledger) Send(ctx context.Context, req ledger.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.calls[req.Method]++
	if l.callErr != nil {
		return "", l.callErr
	}
	if l.rejectNext[req.Method] > 0 {
		l.rejectNext[req.Method]--
		return "", global.Errorf(global.KindTransactionRejected, req.Method, "user rejected the request")
	}
	l.txCounter++
	hash := txHash(req, l.txCounter)
	rcpt := &ledger.Receipt{TxHash: hash, BlockNumber: uint64(l.txCounter), Success: true}
	if l.revertNext[req.Method] > 0 {
		l.revertNext[req.Method]--
		rcpt.Success, rcpt.Reason = false, "reverted by test"
	} else if err := l.write(req); err != nil {
		rcpt.Success, rcpt.Reason = false, err.Error()
	}
	l.receipts[hash] = &txState{receipt: rcpt}
	return hash, nil
}

func (l *Ledger) Receipt(ctx context.Context, hash string) (*ledger.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.callErr != nil {
		return nil, l.callErr
	}
	st, ok := l.receipts[hash]
	if !ok {
		return nil, fmt.Errorf("ledgertest: unknown transaction %s", hash)
	}
	st.polls++
	if st.polls <= l.confirmAfter {
		return nil, nil
	}
	ret := *st.receipt
	return &ret, nil
}

func txHash(req ledger.Request, n int) string {
	h := sha3.NewLegacyKeccak256()
	_, _ = fmt.Fprintf(h, "%d:%s:%s:%v", n, req.From, req.Method, req.Args)
	return fmt.Sprintf("0x%x", h.Sum(nil))
}

func (l *Ledger) now() int64 {
	l.clock++
	return l.clock
}

func (l *Ledger) read(req ledger.Request) (any, error) {
	me := key(req.From)
	switch req.Method {
	case ledger.OpGetUsername.Name:
		if acc, ok := l.accounts[key(argString(req.Args, 0))]; ok {
			return acc.name, nil
		}
		return "", nil
	case ledger.OpCheckUserExists.Name:
		_, ok := l.accounts[key(argString(req.Args, 0))]
		return ok, nil
	case ledger.OpGetAllAppUser.Name:
		ret := make([]any, 0, len(l.order))
		for _, k := range l.order {
			ret = append(ret, l.encodeUser(l.accounts[k]))
		}
		return ret, nil
	case ledger.OpGetMyFriendList.Name:
		ret := make([]any, 0)
		for _, k := range l.friends[me] {
			ret = append(ret, l.encodeFriend(l.accounts[k], k))
		}
		return ret, nil
	case ledger.OpGetMyPendingRequests.Name:
		return l.encodeRequests(l.pending[me]), nil
	case ledger.OpGetMySentRequests.Name:
		return l.encodeRequests(l.sent[me]), nil
	case ledger.OpReadMessage.Name:
		ret := make([]any, 0)
		for _, m := range l.messages[chatKey(me, argString(req.Args, 0))] {
			ret = append(ret, l.encodeMessage(m))
		}
		return ret, nil
	case ledger.OpGetMyPosts.Name:
		ret := make([]any, 0)
		for _, p := range l.posts[me] {
			ret = append(ret, l.encodePost(p))
		}
		return ret, nil
	case ledger.OpGetFriendsPosts.Name:
		ret := make([]any, 0)
		for _, f := range l.friends[me] {
			for _, p := range l.posts[f] {
				ret = append(ret, l.encodePost(p))
			}
		}
		return ret, nil
	case ledger.OpGetAllNFTs.Name:
		ret := make([]any, 0)
		for _, n := range l.nfts {
			ret = append(ret, l.encodeNFT(n))
		}
		return ret, nil
	case ledger.OpGetMyNFTs.Name:
		ret := make([]any, 0)
		for _, n := range l.nfts {
			if key(n.owner) == me {
				ret = append(ret, l.encodeNFT(n))
			}
		}
		return ret, nil
	case ledger.OpGetMyRewards.Name:
		if b, ok := l.rewards[me]; ok {
			return b.String(), nil
		}
		return "0", nil
	}
	return nil, fmt.Errorf("ledgertest: unknown read method '%s'", req.Method)
}

func (l *Ledger) write(req ledger.Request) error {
	me := key(req.From)
	if req.Method != ledger.OpCreateAccount.Name {
		if _, ok := l.accounts[me]; !ok {
			return fmt.Errorf("user is not registered")
		}
	}
	switch req.Method {
	case ledger.OpCreateAccount.Name:
		if _, ok := l.accounts[me]; ok {
			return fmt.Errorf("user already exists")
		}
		if argString(req.Args, 0) == "" {
			return fmt.Errorf("username cannot be empty")
		}
		l.createAccount(req.From, argString(req.Args, 0), argString(req.Args, 1), argString(req.Args, 2))
	case ledger.OpSendFriendRequest.Name:
		peer := key(argString(req.Args, 0))
		switch {
		case peer == me:
			return fmt.Errorf("cannot add yourself")
		case l.accounts[peer] == nil:
			return fmt.Errorf("user is not registered")
		case contains(l.friends[me], peer):
			return fmt.Errorf("already friends")
		case contains(l.sent[me], peer):
			return fmt.Errorf("request already sent")
		}
		if contains(l.pending[me], peer) {
			// mutual request makes the friendship
			l.befriend(me, peer)
			return nil
		}
		l.sent[me] = append(l.sent[me], peer)
		l.pending[peer] = append(l.pending[peer], me)
	case ledger.OpAcceptFriendRequest.Name:
		peer := key(argString(req.Args, 0))
		if !contains(l.pending[me], peer) {
			return fmt.Errorf("no pending request")
		}
		l.befriend(me, peer)
	case ledger.OpRejectFriendRequest.Name:
		peer := key(argString(req.Args, 0))
		if !contains(l.pending[me], peer) {
			return fmt.Errorf("no pending request")
		}
		l.pending[me] = remove(l.pending[me], peer)
		l.sent[peer] = remove(l.sent[peer], me)
	case ledger.OpSendMessage.Name:
		peer := key(argString(req.Args, 0))
		if !contains(l.friends[me], peer) {
			return fmt.Errorf("not friends")
		}
		body := argString(req.Args, 1)
		if body == "" {
			return fmt.Errorf("empty message")
		}
		ck := chatKey(me, peer)
		l.messages[ck] = append(l.messages[ck], message{sender: l.accounts[me].addr, ts: l.now(), body: body})
	case ledger.OpCreatePost.Name:
		content := argString(req.Args, 0)
		if content == "" {
			return fmt.Errorf("empty post")
		}
		l.posts[me] = append(l.posts[me], &post{
			id:        uint64(len(l.posts[me])),
			owner:     l.accounts[me].addr,
			content:   content,
			imageHash: argString(req.Args, 1),
			ts:        l.now(),
			likes:     make([]string, 0),
		})
		l.credit(me, l.rewardPerPost)
	case ledger.OpLikePost.Name, ledger.OpCommentOnPost.Name:
		p, err := l.findPost(req.Args)
		if err != nil {
			return err
		}
		if req.Method == ledger.OpLikePost.Name {
			if contains(lowerAll(p.likes), me) {
				return fmt.Errorf("already liked")
			}
			p.likes = append(p.likes, l.accounts[me].addr)
			return nil
		}
		text := argString(req.Args, 2)
		if text == "" {
			return fmt.Errorf("empty comment")
		}
		p.comments = append(p.comments, [2]string{l.accounts[me].addr, text})
	case ledger.OpAddNFT.Name:
		price, ok := new(big.Int).SetString(argString(req.Args, 1), 10)
		if !ok || price.Sign() <= 0 {
			return fmt.Errorf("wrong price")
		}
		l.nfts = append(l.nfts, &nft{
			id:          uint64(len(l.nfts) + 1),
			owner:       l.accounts[me].addr,
			title:       argString(req.Args, 0),
			price:       price,
			description: argString(req.Args, 2),
			original:    argString(req.Args, 3),
			preview:     argString(req.Args, 4),
			ts:          l.now(),
		})
	case ledger.OpBuyNFT.Name:
		id, err := strconv.ParseUint(argString(req.Args, 0), 10, 64)
		if err != nil || id == 0 || id > uint64(len(l.nfts)) {
			return fmt.Errorf("no such token")
		}
		n := l.nfts[id-1]
		switch {
		case n.sold:
			return fmt.Errorf("token already sold")
		case key(n.owner) == me:
			return fmt.Errorf("cannot buy own token")
		case req.Value == nil || req.Value.Cmp(n.price) != 0:
			return fmt.Errorf("wrong payment")
		}
		n.owner, n.sold = l.accounts[me].addr, true
	default:
		return fmt.Errorf("unknown write method '%s'", req.Method)
	}
	return nil
}

func (l *Ledger) createAccount(addr, name, physical, imageHash string) {
	k := key(addr)
	if _, ok := l.accounts[k]; !ok {
		l.order = append(l.order, k)
	}
	l.accounts[k] = &account{addr: strings.TrimSpace(addr), name: name, physical: physical, imageHash: imageHash}
}

func (l *Ledger) befriend(me, peer string) {
	l.pending[me] = remove(l.pending[me], peer)
	l.sent[peer] = remove(l.sent[peer], me)
	l.friends[me] = util.AppendUnique(l.friends[me], peer)
	l.friends[peer] = util.AppendUnique(l.friends[peer], me)
}

func (l *Ledger) credit(k string, amount int64) {
	b, ok := l.rewards[k]
	if !ok {
		b = new(big.Int)
		l.rewards[k] = b
	}
	b.Add(b, big.NewInt(amount))
}

func (l *Ledger) findPost(args []any) (*post, error) {
	owner := key(argString(args, 0))
	id, err := strconv.ParseUint(argString(args, 1), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("wrong post id")
	}
	for _, p := range l.posts[owner] {
		if p.id == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no such post")
}

// response encoding. Tuples by default, objects with alternate field names in object form

func (l *Ledger) encodeUser(a *account) any {
	if l.objectForm {
		return map[string]any{"username": a.name, "pubkey": a.addr, "image": a.imageHash}
	}
	return []any{a.name, a.addr, a.imageHash}
}

func (l *Ledger) encodeFriend(a *account, k string) any {
	addr, name, img := k, "", ""
	if a != nil {
		addr, name, img = a.addr, a.name, a.imageHash
	}
	if l.objectForm {
		return map[string]any{"addr": addr, "name": name, "imageHash": img}
	}
	return []any{addr, name, img}
}

func (l *Ledger) encodeRequests(keys []string) []any {
	ret := make([]any, 0, len(keys))
	for _, k := range keys {
		addr := k
		if a := l.accounts[k]; a != nil {
			addr = a.addr
		}
		if l.objectForm {
			ret = append(ret, map[string]any{"pubkey": addr})
		} else {
			ret = append(ret, addr)
		}
	}
	return ret
}

func (l *Ledger) encodeMessage(m message) any {
	if l.objectForm {
		return map[string]any{"from": m.sender, "time": strconv.FormatInt(m.ts, 10), "text": m.body}
	}
	return []any{m.sender, m.ts, m.body}
}

func (l *Ledger) encodePost(p *post) any {
	comments := make([]any, 0, len(p.comments))
	for _, c := range p.comments {
		if l.objectForm {
			comments = append(comments, map[string]any{"commenter": c[0], "comment": c[1]})
		} else {
			comments = append(comments, []any{c[0], c[1]})
		}
	}
	if l.objectForm {
		// object form carries no id, position in the owner's list is the id
		return map[string]any{
			"author":    p.owner,
			"content":   p.content,
			"image":     p.imageHash,
			"timestamp": p.ts,
			"likedBy":   p.likes,
			"comments":  comments,
		}
	}
	return []any{p.id, p.owner, p.content, p.imageHash, p.ts, p.likes, comments}
}

func (l *Ledger) encodeNFT(n *nft) any {
	if l.objectForm {
		return map[string]any{
			"tokenID":      fmt.Sprintf("0x%x", n.id),
			"owner":        n.owner,
			"name":         n.title,
			"priceWei":     n.price.String(),
			"desc":         n.description,
			"originalHash": n.original,
			"previewHash":  n.preview,
			"time":         n.ts,
			"isSold":       n.sold,
		}
	}
	return []any{n.id, n.owner, n.title, n.price.String(), n.description, n.original, n.preview, n.ts, n.sold}
}

func chatKey(a, b string) string {
	a, b = key(a), key(b)
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func argString(args []any, i int) string {
	if i >= len(args) {
		return ""
	}
	switch v := args[i].(type) {
	case string:
		return strings.TrimSpace(v)
	case *big.Int:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func contains(lst []string, k string) bool {
	for _, e := range lst {
		if e == k {
			return true
		}
	}
	return false
}

func remove(lst []string, k string) []string {
	ret := lst[:0]
	for _, e := range lst {
		if e != k {
			ret = append(ret, e)
		}
	}
	return ret
}

func lowerAll(lst []string) []string {
	ret := make([]string, len(lst))
	for i, e := range lst {
		ret[i] = key(e)
	}
	return ret
}
