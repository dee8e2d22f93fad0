package social_cmd

import (
	"github.com/lunfardo314/ledgerchat/lchat/glb"
	"github.com/lunfardo314/ledgerchat/model"
	"github.com/spf13/cobra"
)

func InitFriendsCmd() *cobra.Command {
	friendsCmd := &cobra.Command{
		Use:     "friends",
		Aliases: []string{"fr"},
		Short:   "displays friends. Subcommands manage friend requests",
		Args:    cobra.NoArgs,
		Run:     runFriendsCmd,
	}
	friendsCmd.InitDefaultHelpCmd()
	friendsCmd.AddCommand(
		initRequestsCmd(),
		initAvailableCmd(),
		initRequestCmd(),
		initAcceptCmd(),
		initRejectCmd(),
	)
	return friendsCmd
}

func runFriendsCmd(_ *cobra.Command, _ []string) {
	s := glb.MustConnect()
	defer s.Close()

	friends := s.Cache.Friends()
	if glb.OutputYAML() {
		glb.PrintYAML(friends)
		return
	}
	glb.Infof("%d friend(s)", len(friends))
	for _, f := range friends {
		glb.Infof("   %s  %s", f.PeerAddress, f.Name)
	}
}

func initRequestsCmd() *cobra.Command {
	requestsCmd := &cobra.Command{
		Use:     "requests",
		Aliases: []string{"req"},
		Short:   "displays incoming and outgoing friend requests",
		Args:    cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			s := glb.MustConnect()
			defer s.Close()

			if glb.OutputYAML() {
				glb.PrintYAML(map[string][]string{
					"pending": s.Cache.Pending(),
					"sent":    s.Cache.Sent(),
				})
				return
			}
			directory := s.Cache.Directory()
			glb.Infof("incoming:")
			for _, addr := range s.Cache.Pending() {
				glb.Infof("   %s  %s", addr, model.FriendFromDirectory(directory, addr).Name)
			}
			glb.Infof("outgoing:")
			for _, addr := range s.Cache.Sent() {
				glb.Infof("   %s  %s", addr, model.FriendFromDirectory(directory, addr).Name)
			}
		},
	}
	requestsCmd.InitDefaultHelpCmd()
	return requestsCmd
}

func initAvailableCmd() *cobra.Command {
	availableCmd := &cobra.Command{
		Use:     "available",
		Aliases: []string{"av"},
		Short:   "displays users who can receive a friend request",
		Args:    cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			s := glb.MustConnect()
			defer s.Close()

			users := s.Views.Available()
			if glb.OutputYAML() {
				glb.PrintYAML(users)
				return
			}
			glb.Infof("%d user(s) available", len(users))
			for _, u := range users {
				glb.Infof("   %s  %s", u.AccountAddress, u.Name)
			}
		},
	}
	availableCmd.InitDefaultHelpCmd()
	return availableCmd
}
