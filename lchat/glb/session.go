package glb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/lunfardo314/ledgerchat/account"
	"github.com/lunfardo314/ledgerchat/gateway"
	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/ledger"
	"github.com/lunfardo314/ledgerchat/ledger/rpc"
	"github.com/lunfardo314/ledgerchat/orchestrator"
	"github.com/lunfardo314/ledgerchat/session"
	"github.com/lunfardo314/ledgerchat/txstore"
	"github.com/lunfardo314/ledgerchat/views"
	"github.com/spf13/viper"
)

// Session is the fully wired client core, built from the profile
type Session struct {
	*global.Global
	Ledger       *ledger.Client
	Orchestrator *orchestrator.Orchestrator
	Cache        *session.Cache
	Views        *views.Engine
	Journal      *txstore.Journal
	Gateway      *gateway.Client
	closeJournal func()
}

const (
	WalletProviderStatic = "static"
	WalletProviderRPC    = "rpc"
)

func ledgerEndpoint() string {
	ret := viper.GetString("ledger.endpoint")
	Assertf(ret != "", "ledger endpoint not specified. Use 'ledger.endpoint' in the profile or LEDGER_ENDPOINT")
	return ret
}

func rpcOptions(prefix string) []rpc.ConfigOption {
	if sec := viper.GetInt(prefix + ".timeout_sec"); sec > 0 {
		return []rpc.ConfigOption{rpc.WithTimeout(time.Duration(sec) * time.Second)}
	}
	return nil
}

func ledgerOptions(journal *txstore.Journal) []ledger.ConfigOption {
	ret := []ledger.ConfigOption{ledger.WithJournal(journal)}
	if ms := viper.GetInt("ledger.confirm_poll_ms"); ms > 0 {
		ret = append(ret, ledger.WithPollPeriod(time.Duration(ms)*time.Millisecond))
	}
	if sec := viper.GetInt("ledger.confirm_timeout_sec"); sec > 0 {
		ret = append(ret, ledger.WithConfirmTimeout(time.Duration(sec)*time.Second))
	}
	return ret
}

func walletProvider(env *global.Global, backend *rpc.Client) account.Provider {
	switch p := viper.GetString("wallet.provider"); p {
	case "", WalletProviderRPC:
		endpoint := viper.GetString("wallet.endpoint")
		if endpoint == "" {
			return backend
		}
		w, err := rpc.New(env, endpoint, rpcOptions("wallet")...)
		AssertNoError(err)
		return w
	case WalletProviderStatic:
		addr := viper.GetString("wallet.address")
		Assertf(addr != "", "static wallet provider requires 'wallet.address'")
		return account.StaticProvider(addr)
	default:
		Fatalf("unknown wallet provider '%s'", p)
	}
	return nil
}

func openJournal(env *global.Global) (*txstore.Journal, func()) {
	dir := viper.GetString("journal.dir")
	if dir == "" {
		Verbosef("transaction journal: in memory")
		return txstore.NewInMemory(env), func() {}
	}
	ret, closeFun, err := txstore.OpenBadger(env, dir)
	AssertNoError(err)
	Verbosef("transaction journal: %s", dir)
	return ret, closeFun
}

// NewSession wires the client core according to the profile. It does not connect
func NewSession() *Session {
	env := global.NewFromConfig()

	backend, err := rpc.New(env, ledgerEndpoint(), rpcOptions("ledger")...)
	AssertNoError(err)

	journal, closeJournal := openJournal(env)
	gate := account.NewGate(env, walletProvider(env, backend), account.WithRetryPolicy(account.RetryPolicyFromConfig()))
	client := ledger.New(env, backend, ledgerOptions(journal)...)
	cache := session.NewCache()

	return &Session{
		Global:       env,
		Ledger:       client,
		Orchestrator: orchestrator.New(env, gate, client, cache),
		Cache:        cache,
		Views:        views.NewEngine(cache),
		Journal:      journal,
		Gateway:      gateway.NewFromConfig(env),
		closeJournal: closeJournal,
	}
}

// MustConnect establishes the session or exits. With allowUnregistered, account which is not
// registered on the ledger yet is accepted
func MustConnect(allowUnregistered ...bool) *Session {
	ret := NewSession()
	id, err := ret.Orchestrator.Connect(ret.Ctx())
	if err != nil {
		if len(allowUnregistered) > 0 && allowUnregistered[0] && errors.Is(err, global.ErrNotRegistered) {
			Verbosef("account is not registered")
			return ret
		}
		ret.Close()
		AssertNoError(err)
	}
	Verbosef("connected as %s (%s)", id.DisplayName, id.Address)
	return ret
}

// Context with the per-command timeout 'session.command_timeout_sec', if set
func (s *Session) Context() (context.Context, context.CancelFunc) {
	if sec := viper.GetInt("session.command_timeout_sec"); sec > 0 {
		return context.WithTimeout(s.Ctx(), time.Duration(sec)*time.Second)
	}
	return context.WithCancel(s.Ctx())
}

func (s *Session) Close() {
	s.Stop()
	s.WaitAllWorkProcessesStop(5 * time.Second)
	s.closeJournal()
}

// PinImage uploads the image file to the storage gateway and returns its content hash.
// Empty file name means no image
func (s *Session) PinImage(fname string) string {
	if fname == "" {
		return ""
	}
	data, err := os.ReadFile(fname)
	AssertNoError(err)
	ctx, cancel := s.Context()
	defer cancel()
	hash, err := s.Gateway.PinFile(ctx, filepath.Base(fname), data)
	AssertNoError(err)
	Verbosef("pinned '%s': %s", fname, hash)
	return hash
}
