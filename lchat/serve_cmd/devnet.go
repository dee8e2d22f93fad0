package serve_cmd

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/lchat/glb"
	"github.com/lunfardo314/ledgerchat/ledger/ledgertest"
	"github.com/lunfardo314/ledgerchat/ledger/rpc"
	"github.com/lunfardo314/ledgerchat/util"
	"github.com/spf13/cobra"
)

var (
	devnetListen   string
	devnetAccounts []string
	devnetUsers    []string
	devnetConfirm  int
)

func InitDevnetCmd() *cobra.Command {
	devnetCmd := &cobra.Command{
		Use:   "devnet",
		Short: "serves in-memory development ledger over JSON-RPC",
		Long: `serves in-memory development ledger over JSON-RPC.
Wallet accounts are returned by 'eth_requestAccounts', the first one is active.
Users are pre-registered in the form <address>=<name>`,
		Args: cobra.NoArgs,
		Run:  runDevnetCmd,
	}
	devnetCmd.Flags().StringVar(&devnetListen, "listen", "127.0.0.1:8545", "listen address")
	devnetCmd.Flags().StringSliceVar(&devnetAccounts, "accounts", nil, "wallet account addresses")
	devnetCmd.Flags().StringSliceVar(&devnetUsers, "users", nil, "pre-registered users <address>=<name>")
	devnetCmd.Flags().IntVar(&devnetConfirm, "confirm_after", 0, "number of receipt polls before transaction is confirmed")
	devnetCmd.InitDefaultHelpCmd()
	return devnetCmd
}

func runDevnetCmd(_ *cobra.Command, _ []string) {
	env := global.NewFromConfig()
	defer env.Stop()

	l := ledgertest.New()
	l.SetConfirmAfter(devnetConfirm)
	for _, u := range devnetUsers {
		addr, name, found := strings.Cut(u, "=")
		glb.Assertf(found && util.IsAddress(addr) && name != "", "wrong user '%s'. Expected <address>=<name>", u)
		l.Register(addr, name, "")
		env.Infof0("[devnet] registered %s as '%s'", util.ChecksumAddress(addr), name)
	}
	for _, addr := range devnetAccounts {
		glb.Assertf(util.IsAddress(addr), "wrong account address '%s'", addr)
	}

	srv := &http.Server{
		Addr:              devnetListen,
		Handler:           rpc.NewHandler(l, devnetAccounts...),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		env.Infof0("[devnet] serving JSON-RPC on %s", devnetListen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			env.Log().Errorf("[devnet] %v", err)
			env.Stop()
		}
	}()
	glb.WaitInterrupt(env)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
