package account_cmd

import (
	"github.com/lunfardo314/ledgerchat/lchat/glb"
	"github.com/lunfardo314/ledgerchat/util"
	"github.com/spf13/cobra"
)

func initConnectCmd() *cobra.Command {
	connectCmd := &cobra.Command{
		Use:     "connect",
		Aliases: []string{"whoami"},
		Short:   "connects the wallet account and displays its identity",
		Args:    cobra.NoArgs,
		Run:     runConnectCmd,
	}
	connectCmd.InitDefaultHelpCmd()
	return connectCmd
}

func runConnectCmd(_ *cobra.Command, _ []string) {
	s := glb.MustConnect(true)
	defer s.Close()

	displayIdentity(s.Cache.Identity())
	if !glb.OutputYAML() && s.Cache.Identity().Registered {
		glb.Infof("friends: %d, pending requests: %d, rewards: %s",
			len(s.Cache.Friends()), len(s.Cache.Pending()), util.Th(string(s.Cache.Rewards())))
	}
}

func initSessionCmd() *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "reads the whole session from the ledger and displays it in YAML",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			s := glb.MustConnect()
			defer s.Close()
			glb.PrintYAML(s.Cache.Snapshot())
		},
	}
	sessionCmd.InitDefaultHelpCmd()
	return sessionCmd
}

func initRewardsCmd() *cobra.Command {
	rewardsCmd := &cobra.Command{
		Use:     "rewards",
		Aliases: []string{"bal"},
		Short:   "displays reward token balance of the account",
		Args:    cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			s := glb.MustConnect()
			defer s.Close()
			glb.Infof("rewards: %s", util.Th(string(s.Cache.Rewards())))
		},
	}
	rewardsCmd.InitDefaultHelpCmd()
	return rewardsCmd
}
