package nft_cmd

import (
	"strconv"
	"strings"

	"github.com/lunfardo314/ledgerchat/lchat/glb"
	"github.com/lunfardo314/ledgerchat/model"
	"github.com/lunfardo314/ledgerchat/util"
	"github.com/spf13/cobra"
)

var (
	description  string
	originalFile string
	previewFile  string
	priceWei     string
)

func Init() *cobra.Command {
	nftCmd := &cobra.Command{
		Use:   "nft [<subcommand>]",
		Short: "NFT marketplace",
		Args:  cobra.NoArgs,
	}
	nftCmd.InitDefaultHelpCmd()
	nftCmd.AddCommand(
		initListCmd(),
		initMineCmd(),
		initMintCmd(),
		initBuyCmd(),
	)
	return nftCmd
}

func initListCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "displays all marketplace listings",
		Args:    cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			s := glb.MustConnect()
			defer s.Close()
			displayListings(s.Cache.NFTListings())
		},
	}
	listCmd.InitDefaultHelpCmd()
	return listCmd
}

func initMineCmd() *cobra.Command {
	mineCmd := &cobra.Command{
		Use:   "mine",
		Short: "displays NFTs owned by the account",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			s := glb.MustConnect()
			defer s.Close()
			displayListings(s.Cache.OwnNFTs())
		},
	}
	mineCmd.InitDefaultHelpCmd()
	return mineCmd
}

func initMintCmd() *cobra.Command {
	mintCmd := &cobra.Command{
		Use:   "mint <title> <price in native units>",
		Short: "mints NFT and lists it on the marketplace",
		Args:  cobra.ExactArgs(2),
		Run: func(_ *cobra.Command, args []string) {
			glb.Assertf(originalFile != "", "original image is required: use --original")
			s := glb.MustConnect()
			defer s.Close()

			original := s.PinImage(originalFile)
			preview := original
			if previewFile != "" {
				preview = s.PinImage(previewFile)
			}
			ctx, cancel := s.Context()
			defer cancel()
			glb.AssertNoError(s.Orchestrator.MintNFT(ctx, args[0], args[1], description, original, preview))
			glb.Infof("success")
		},
	}
	mintCmd.Flags().StringVarP(&description, "description", "d", "", "description of the NFT")
	mintCmd.Flags().StringVarP(&originalFile, "original", "o", "", "original image file")
	mintCmd.Flags().StringVarP(&previewFile, "preview", "p", "", "preview image file. Original is used if not specified")
	mintCmd.InitDefaultHelpCmd()
	return mintCmd
}

func initBuyCmd() *cobra.Command {
	buyCmd := &cobra.Command{
		Use:   "buy <token id>",
		Short: "buys listed NFT at its price",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			s := glb.MustConnect()
			defer s.Close()

			ctx, cancel := s.Context()
			defer cancel()
			if priceWei != "" {
				glb.AssertNoError(s.Orchestrator.BuyNFT(ctx, args[0], priceWei))
			} else {
				tokenID, err := strconv.ParseUint(strings.TrimSpace(args[0]), 10, 64)
				glb.Assertf(err == nil, "wrong token id '%s'", args[0])
				glb.AssertNoError(s.Orchestrator.BuyListing(ctx, tokenID))
			}
			glb.Infof("success")
		},
	}
	buyCmd.Flags().StringVar(&priceWei, "price_wei", "", "explicit price in smallest units instead of the listed one")
	buyCmd.InitDefaultHelpCmd()
	return buyCmd
}

func displayListings(lst []model.NFTListing) {
	if glb.OutputYAML() {
		glb.PrintYAML(lst)
		return
	}
	glb.Infof("%d NFT(s)", len(lst))
	for _, n := range lst {
		sold := ""
		if n.Sold {
			sold = " (sold)"
		}
		glb.Infof("#%d '%s' price: %s wei, owner: %s%s", n.TokenID, n.Title, util.Th(n.PriceWei), n.OwnerAddress, sold)
		if n.Description != "" {
			glb.Infof("    %s", n.Description)
		}
	}
}
