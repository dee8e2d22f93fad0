package init_cmd

import (
	"bytes"
	"os"
	"text/template"

	"github.com/lunfardo314/ledgerchat/lchat/glb"
	"github.com/lunfardo314/ledgerchat/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func Init() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init [<subcommand>]",
		Short: "initializes lchat profile",
		Args:  cobra.NoArgs,
	}
	initCmd.InitDefaultHelpCmd()
	initCmd.AddCommand(initProfileCmd())
	return initCmd
}

func initProfileCmd() *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile [<profile name. Default: 'lchat'>]",
		Args:  cobra.MaximumNArgs(1),
		Short: "creates new profile lchat.yaml with defaults",
		Run:   runInitProfileCommand,
	}
	profileCmd.Flags().String("address", "", "account address for the static wallet provider")
	err := viper.BindPFlag("init.address", profileCmd.Flags().Lookup("address"))
	glb.AssertNoError(err)
	return profileCmd
}

func runInitProfileCommand(_ *cobra.Command, args []string) {
	templ := template.New("profile")
	_, err := templ.Parse(profileTemplate)
	glb.AssertNoError(err)

	profileName := glb.DefaultProfileName
	if len(args) > 0 {
		profileName = args[0]
	}
	profileFname := profileName + ".yaml"
	glb.FileMustNotExist(profileFname)

	data := struct {
		Provider string
		Address  string
	}{
		Provider: glb.WalletProviderRPC,
		Address:  "<account address>",
	}
	if addr := viper.GetString("init.address"); addr != "" {
		glb.Assertf(util.IsAddress(addr), "wrong account address '%s'", addr)
		data.Provider = glb.WalletProviderStatic
		data.Address = util.ChecksumAddress(addr)
	}
	var buf bytes.Buffer
	err = templ.Execute(&buf, data)
	glb.AssertNoError(err)

	err = os.WriteFile(profileFname, buf.Bytes(), 0666)
	glb.AssertNoError(err)
	glb.Infof("lchat profile '%s' has been created successfully", profileFname)
}

const profileTemplate = `# lchat profile
# Every value can be overridden by environment variable, e.g. LEDGER_ENDPOINT for ledger.endpoint

ledger:
    # JSON-RPC endpoint of the ledger service
    endpoint: http://127.0.0.1:8545
    timeout_sec: 10
    # period of polling for the transaction receipt
    confirm_poll_ms: 1000
    # 0 means waiting for the confirmation until interrupted
    confirm_timeout_sec: 0

wallet:
    # 'rpc' asks the wallet (by default the ledger endpoint) for the active account
    # 'static' uses the address below
    provider: {{.Provider}}
    address: {{.Address}}
#    endpoint: http://127.0.0.1:8545

account:
    max_attempts: 3
    backoff_ms: 1000

gateway:
    url: https://gateway.pinata.cloud
    pin_endpoint: https://api.pinata.cloud/pinning
    # set GATEWAY_JWT in the environment or in .env
    jwt:
    rate_per_sec: 5

journal:
    # directory of the transaction journal database. In memory if empty
    dir: lchat.journal

session:
    # re-reading of the open conversation by 'lchat serve' and 'lchat msg watch'
    message_poll_sec: 5
    command_timeout_sec: 120

logging:
    level: info
#    trace_tags: [ledger, orchestrator]

metrics:
    disable: false

api:
    listen: 127.0.0.1:8080
    allowed_origins: ["*"]

broker:
    enable: false
    tcp: 127.0.0.1:1883
    websocket: 127.0.0.1:1882
`
