package main

import (
	"os"

	"github.com/lunfardo314/ledgerchat/lchat/account_cmd"
	"github.com/lunfardo314/ledgerchat/lchat/glb"
	"github.com/lunfardo314/ledgerchat/lchat/init_cmd"
	"github.com/lunfardo314/ledgerchat/lchat/nft_cmd"
	"github.com/lunfardo314/ledgerchat/lchat/post_cmd"
	"github.com/lunfardo314/ledgerchat/lchat/serve_cmd"
	"github.com/lunfardo314/ledgerchat/lchat/social_cmd"
	"github.com/lunfardo314/ledgerchat/lchat/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lchat [<command>]",
		Short: "a simple CLI client of the ledger-backed social network",
		Long: `lchat is a CLI tool for the ledger-backed messaging and social network.
It connects the wallet account to the ledger service and keeps the session in sync:
friends, messages, posts, NFT marketplace and rewards.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			glb.ReadInConfig()
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose")
	err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	glb.AssertNoError(err)

	rootCmd.PersistentFlags().BoolP("v2", "2", false, "verbose 2")
	err = viper.BindPFlag("v2", rootCmd.PersistentFlags().Lookup("v2"))
	glb.AssertNoError(err)

	rootCmd.PersistentFlags().StringP("config", "c", "", "profile name")
	err = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	glb.AssertNoError(err)

	rootCmd.PersistentFlags().BoolP("force", "f", false, "override yes/no prompt")
	err = viper.BindPFlag("force", rootCmd.PersistentFlags().Lookup("force"))
	glb.AssertNoError(err)

	rootCmd.PersistentFlags().Bool("yaml", false, "output in YAML")
	err = viper.BindPFlag("yaml", rootCmd.PersistentFlags().Lookup("yaml"))
	glb.AssertNoError(err)

	rootCmd.PersistentFlags().String("ledger.endpoint", "", "ledger service JSON-RPC endpoint")
	err = viper.BindPFlag("ledger.endpoint", rootCmd.PersistentFlags().Lookup("ledger.endpoint"))
	glb.AssertNoError(err)

	rootCmd.InitDefaultHelpCmd()
	rootCmd.AddCommand(
		init_cmd.Init(),
		account_cmd.Init(),
		social_cmd.InitFriendsCmd(),
		social_cmd.InitMsgCmd(),
		post_cmd.Init(),
		nft_cmd.Init(),
		serve_cmd.InitServeCmd(),
		serve_cmd.InitDevnetCmd(),
		version.CmdVersion(),
	)
	if err = rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
