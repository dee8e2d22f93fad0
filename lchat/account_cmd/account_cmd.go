package account_cmd

import (
	"github.com/lunfardo314/ledgerchat/lchat/glb"
	"github.com/lunfardo314/ledgerchat/model"
	"github.com/spf13/cobra"
)

func Init() *cobra.Command {
	accountCmd := &cobra.Command{
		Use:     "account [<subcommand>]",
		Aliases: []string{"acc"},
		Short:   "account and session subcommands",
		Args:    cobra.NoArgs,
	}
	accountCmd.InitDefaultHelpCmd()
	accountCmd.AddCommand(
		initConnectCmd(),
		initCreateCmd(),
		initSessionCmd(),
		initRewardsCmd(),
		initJournalCmd(),
	)
	return accountCmd
}

func displayIdentity(id model.Identity) {
	if glb.OutputYAML() {
		glb.PrintYAML(id)
		return
	}
	glb.Infof("account:    %s", id.Address)
	if id.Registered {
		glb.Infof("name:       %s", id.DisplayName)
	} else {
		glb.Infof("not registered. Use 'lchat account create' to register")
	}
}
