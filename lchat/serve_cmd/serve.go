package serve_cmd

import (
	"time"

	"github.com/lunfardo314/ledgerchat/api/broker"
	"github.com/lunfardo314/ledgerchat/api/server"
	"github.com/lunfardo314/ledgerchat/api/streaming"
	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/lchat/glb"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultListenAddr = "127.0.0.1:8080"

func InitServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "runs the session with local HTTP API, websocket slot stream and optional MQTT broker for the UI",
		Args:  cobra.NoArgs,
		Run:   runServeCmd,
	}
	serveCmd.Flags().String("api.listen", defaultListenAddr, "listen address of the local API")
	err := viper.BindPFlag("api.listen", serveCmd.Flags().Lookup("api.listen"))
	glb.AssertNoError(err)

	serveCmd.Flags().Bool("broker.enable", false, "run embedded MQTT broker")
	err = viper.BindPFlag("broker.enable", serveCmd.Flags().Lookup("broker.enable"))
	glb.AssertNoError(err)

	serveCmd.InitDefaultHelpCmd()
	return serveCmd
}

func runServeCmd(_ *cobra.Command, _ []string) {
	s := glb.MustConnect(true)
	defer s.Close()

	s.Infof0(global.BannerString())

	hub := streaming.NewHub(s, s.Cache, s.Views)
	opts := []server.ConfigOption{
		server.WithJournal(s.Journal),
		server.WithImages(s.Gateway),
		server.WithSlotStream(hub),
	}
	if origins := viper.GetStringSlice("api.allowed_origins"); len(origins) > 0 {
		opts = append(opts, server.WithAllowedOrigins(origins...))
	}
	server.Run(viper.GetString("api.listen"), s, server.NewHandler(s, s.Orchestrator, s.Views, opts...))

	if viper.GetBool("broker.enable") {
		var brokerOpts []broker.ConfigOption
		if addr := viper.GetString("broker.tcp"); addr != "" {
			brokerOpts = append(brokerOpts, broker.WithTCP(addr))
		}
		if addr := viper.GetString("broker.websocket"); addr != "" {
			brokerOpts = append(brokerOpts, broker.WithWebsocket(addr))
		}
		b, err := broker.New(s, s.Cache, s.Views, brokerOpts...)
		glb.AssertNoError(err)
		b.Start(s)
	}

	if sec := viper.GetInt("session.message_poll_sec"); sec > 0 {
		s.Orchestrator.WatchConversation(time.Duration(sec) * time.Second)
	}
	glb.WaitInterrupt(s)
}
