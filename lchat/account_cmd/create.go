package account_cmd

import (
	"github.com/lunfardo314/ledgerchat/lchat/glb"
	"github.com/spf13/cobra"
)

var (
	imageFile string
	imageHash string
)

func initCreateCmd() *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create <display name> <physical address>",
		Short: "registers the wallet account on the ledger",
		Args:  cobra.ExactArgs(2),
		Run:   runCreateCmd,
	}
	createCmd.Flags().StringVarP(&imageFile, "image", "i", "", "profile image file to upload to the storage gateway")
	createCmd.Flags().StringVar(&imageHash, "image_hash", "", "content hash of already uploaded profile image")
	createCmd.InitDefaultHelpCmd()
	return createCmd
}

func runCreateCmd(_ *cobra.Command, args []string) {
	s := glb.MustConnect(true)
	defer s.Close()

	glb.Assertf(!s.Cache.Identity().Registered, "account %s is already registered as '%s'",
		s.Cache.Identity().Address, s.Cache.Identity().DisplayName)
	glb.Assertf(imageFile == "" || imageHash == "", "use either --image or --image_hash")

	hash := imageHash
	if imageFile != "" {
		hash = s.PinImage(imageFile)
	}
	glb.Assertf(hash != "", "profile image is required: use --image or --image_hash")

	if !glb.YesNoPrompt("register account '"+args[0]+"'?", true, glb.BypassYesNoPrompt()) {
		glb.Infof("exit")
		return
	}
	ctx, cancel := s.Context()
	defer cancel()
	glb.AssertNoError(s.Orchestrator.CreateAccount(ctx, args[0], args[1], hash))
	displayIdentity(s.Cache.Identity())
}
