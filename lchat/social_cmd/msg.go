package social_cmd

import (
	"strings"
	"time"

	"github.com/lunfardo314/ledgerchat/lchat/glb"
	"github.com/lunfardo314/ledgerchat/model"
	"github.com/lunfardo314/ledgerchat/session"
	"github.com/lunfardo314/ledgerchat/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func InitMsgCmd() *cobra.Command {
	msgCmd := &cobra.Command{
		Use:   "msg [<subcommand>]",
		Short: "messages exchanged with friends",
		Args:  cobra.NoArgs,
	}
	msgCmd.InitDefaultHelpCmd()
	msgCmd.AddCommand(
		initMsgReadCmd(),
		initMsgSendCmd(),
		initMsgWatchCmd(),
	)
	return msgCmd
}

func initMsgReadCmd() *cobra.Command {
	readCmd := &cobra.Command{
		Use:   "read <peer address>",
		Short: "displays conversation with the peer, oldest first",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			s := glb.MustConnect()
			defer s.Close()

			ctx, cancel := s.Context()
			defer cancel()
			msgs, err := s.Orchestrator.OpenConversation(ctx, args[0])
			glb.AssertNoError(err)
			displayMessages(s, msgs)
		},
	}
	readCmd.InitDefaultHelpCmd()
	return readCmd
}

func initMsgSendCmd() *cobra.Command {
	sendCmd := &cobra.Command{
		Use:   "send <peer address> <text>",
		Short: "sends message to the peer",
		Args:  cobra.MinimumNArgs(2),
		Run: func(_ *cobra.Command, args []string) {
			s := glb.MustConnect()
			defer s.Close()

			ctx, cancel := s.Context()
			defer cancel()
			glb.AssertNoError(s.Orchestrator.SendMessage(ctx, args[0], strings.Join(args[1:], " ")))
			displayMessages(s, s.Cache.Conversation().Messages)
		},
	}
	sendCmd.InitDefaultHelpCmd()
	return sendCmd
}

func initMsgWatchCmd() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch <peer address>",
		Short: "displays conversation with the peer and new messages as they arrive. Ctrl-C to exit",
		Args:  cobra.ExactArgs(1),
		Run:   runMsgWatchCmd,
	}
	watchCmd.InitDefaultHelpCmd()
	return watchCmd
}

func runMsgWatchCmd(_ *cobra.Command, args []string) {
	s := glb.MustConnect()
	defer s.Close()

	msgs, err := s.Orchestrator.OpenConversation(s.Ctx(), args[0])
	glb.AssertNoError(err)
	displayMessages(s, msgs)

	shown := len(msgs)
	s.Cache.OnChange(func(slot session.Slot) {
		if slot != session.SlotMessages {
			return
		}
		conv := s.Cache.Conversation()
		if shown < len(conv.Messages) {
			displayMessages(s, conv.Messages[shown:])
		}
		shown = len(conv.Messages)
	})

	period := time.Duration(viper.GetInt("session.message_poll_sec")) * time.Second
	if period <= 0 {
		period = 5 * time.Second
	}
	s.Orchestrator.WatchConversation(period)
	glb.WaitInterrupt(s)
}

func displayMessages(s *glb.Session, msgs []model.Message) {
	if glb.OutputYAML() {
		glb.PrintYAML(msgs)
		return
	}
	self := s.Cache.Identity().Address
	for _, m := range msgs {
		from := "peer"
		if util.SameAddress(m.SenderAddress, self) {
			from = "me"
		}
		glb.Infof("[%s] %4s: %s", time.Unix(m.TimestampSeconds, 0).Format(time.DateTime), from, m.Body)
	}
}
