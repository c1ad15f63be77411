package users

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sriramreddyM/coco-annotator/cmd/cmdutil"
	"github.com/sriramreddyM/coco-annotator/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token [username]",
	Short: "Issue a bearer token for an account",
	Long: `Signs a bearer token for the account without checking its password. The
token is valid for token_ttl and is sent as "Authorization: Bearer <token>".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		bundle, err := cmdutil.NewIAMServiceBundle(cfg, cmdutil.IAMServiceOptions{})
		if err != nil {
			return err
		}
		defer bundle.Close()

		ctx := cmd.Context()
		user, err := bundle.Users.GetByUsername(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to find user %q: %w", args[0], err)
		}

		token, err := bundle.Service.IssueToken(ctx, user)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}

		fmt.Println(token)
		return nil
	},
}
