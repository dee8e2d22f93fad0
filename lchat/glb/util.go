package glb

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/lunfardo314/ledgerchat/global"
)

// WaitInterrupt blocks until SIGINT/SIGTERM or until the environment is stopped
func WaitInterrupt(env global.StartStop) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		Verbosef("received %s, exiting", sig)
	case <-env.Ctx().Done():
	}
}
