package post_cmd

import (
	"strconv"
	"strings"
	"time"

	"github.com/lunfardo314/ledgerchat/lchat/glb"
	"github.com/lunfardo314/ledgerchat/model"
	"github.com/spf13/cobra"
)

var (
	imageFile string
	imageHash string
	peerPosts bool
)

func Init() *cobra.Command {
	postCmd := &cobra.Command{
		Use:   "post [<subcommand>]",
		Short: "posts of the account and of its friends",
		Args:  cobra.NoArgs,
	}
	postCmd.InitDefaultHelpCmd()
	postCmd.AddCommand(
		initListCmd(),
		initCreateCmd(),
		initLikeCmd(),
		initCommentCmd(),
	)
	return postCmd
}

func initListCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "displays own posts, or posts of friends with --friends",
		Args:    cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			s := glb.MustConnect()
			defer s.Close()

			posts := s.Cache.OwnPosts()
			if peerPosts {
				posts = s.Cache.PeerPosts()
			}
			displayPosts(posts)
		},
	}
	listCmd.Flags().BoolVar(&peerPosts, "friends", false, "posts of friends")
	listCmd.InitDefaultHelpCmd()
	return listCmd
}

func initCreateCmd() *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create <content>",
		Short: "publishes new post",
		Args:  cobra.MinimumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			s := glb.MustConnect()
			defer s.Close()

			glb.Assertf(imageFile == "" || imageHash == "", "use either --image or --image_hash")
			hash := imageHash
			if imageFile != "" {
				hash = s.PinImage(imageFile)
			}
			ctx, cancel := s.Context()
			defer cancel()
			glb.AssertNoError(s.Orchestrator.CreatePost(ctx, strings.Join(args, " "), hash))
			glb.Infof("success. Rewards: %s", s.Cache.Rewards())
		},
	}
	createCmd.Flags().StringVarP(&imageFile, "image", "i", "", "image file to upload to the storage gateway")
	createCmd.Flags().StringVar(&imageHash, "image_hash", "", "content hash of already uploaded image")
	createCmd.InitDefaultHelpCmd()
	return createCmd
}

func parsePostID(s string) uint64 {
	ret, err := strconv.ParseUint(s, 10, 64)
	glb.Assertf(err == nil, "wrong post id '%s'", s)
	return ret
}

func initLikeCmd() *cobra.Command {
	likeCmd := &cobra.Command{
		Use:   "like <owner address> <post id>",
		Short: "likes the post",
		Args:  cobra.ExactArgs(2),
		Run: func(_ *cobra.Command, args []string) {
			s := glb.MustConnect()
			defer s.Close()

			ctx, cancel := s.Context()
			defer cancel()
			glb.AssertNoError(s.Orchestrator.LikePost(ctx, args[0], parsePostID(args[1])))
			glb.Infof("success")
		},
	}
	likeCmd.InitDefaultHelpCmd()
	return likeCmd
}

func initCommentCmd() *cobra.Command {
	commentCmd := &cobra.Command{
		Use:   "comment <owner address> <post id> <text>",
		Short: "comments on the post",
		Args:  cobra.MinimumNArgs(3),
		Run: func(_ *cobra.Command, args []string) {
			s := glb.MustConnect()
			defer s.Close()

			ctx, cancel := s.Context()
			defer cancel()
			glb.AssertNoError(s.Orchestrator.CommentOnPost(ctx, args[0], parsePostID(args[1]), strings.Join(args[2:], " ")))
			glb.Infof("success")
		},
	}
	commentCmd.InitDefaultHelpCmd()
	return commentCmd
}

func displayPosts(posts []model.Post) {
	if glb.OutputYAML() {
		glb.PrintYAML(posts)
		return
	}
	glb.Infof("%d post(s)", len(posts))
	for _, p := range posts {
		glb.Infof("#%d by %s at %s, likes: %d", p.ID, p.OwnerAddress, time.Unix(p.TimestampSeconds, 0).Format(time.DateTime), len(p.Likes))
		glb.Infof("    %s", p.Content)
		if p.ImageHash != "" {
			glb.Infof("    image: %s", p.ImageHash)
		}
		for _, c := range p.Comments {
			glb.Infof("      - %s: %s", c.CommenterAddress, c.Text)
		}
	}
}
