package social_cmd

import (
	"context"

	"github.com/lunfardo314/ledgerchat/lchat/glb"
	"github.com/spf13/cobra"
)

func peerActionCmd(use, short string, action func(s *glb.Session, ctx context.Context, peer string) error) *cobra.Command {
	ret := &cobra.Command{
		Use:   use + " <account address>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			s := glb.MustConnect()
			defer s.Close()

			ctx, cancel := s.Context()
			defer cancel()
			glb.AssertNoError(action(s, ctx, args[0]))
			glb.Infof("success")
		},
	}
	ret.InitDefaultHelpCmd()
	return ret
}

func initRequestCmd() *cobra.Command {
	return peerActionCmd("request", "sends friend request", func(s *glb.Session, ctx context.Context, peer string) error {
		return s.Orchestrator.SendFriendRequest(ctx, peer)
	})
}

func initAcceptCmd() *cobra.Command {
	return peerActionCmd("accept", "accepts incoming friend request", func(s *glb.Session, ctx context.Context, peer string) error {
		return s.Orchestrator.AcceptFriendRequest(ctx, peer)
	})
}

func initRejectCmd() *cobra.Command {
	return peerActionCmd("reject", "rejects incoming friend request", func(s *glb.Session, ctx context.Context, peer string) error {
		return s.Orchestrator.RejectFriendRequest(ctx, peer)
	})
}
