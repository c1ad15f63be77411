package iam

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sriramreddyM/coco-annotator/cmd/cmdutil"
	"github.com/sriramreddyM/coco-annotator/internal/auth"
	"github.com/sriramreddyM/coco-annotator/internal/config"
	"github.com/sriramreddyM/coco-annotator/internal/repository"
	iamsvc "github.com/sriramreddyM/coco-annotator/internal/services/iam"
)

var checkCmd = &cobra.Command{
	Use:   "check [username|anonymous] [dataset-id]",
	Short: "Show what an account may do with a dataset",
	Long: `Resolves the account (or the anonymous principal) and prints the outcome of
every capability check against the dataset.

Example:
  annotatorapi iam check alice 3
  annotatorapi iam check anonymous 3`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		datasetID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid dataset id %q", args[1])
		}

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
		dataset, err := repository.NewBunDatasetRepository(bundle.DB).GetByID(ctx, datasetID)
		if err != nil {
			return fmt.Errorf("failed to load dataset %d: %w", datasetID, err)
		}

		var p *iamsvc.Principal
		if args[0] == iamsvc.AnonymousUsername {
			p = bundle.Service.Anonymous()
		} else {
			user, err := bundle.Users.GetByUsername(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to find user %q: %w", args[0], err)
			}
			p = bundle.Service.PrincipalFor(user, iamsvc.MethodNone, "")
		}

		res := iamsvc.DatasetResource(dataset)
		fmt.Printf("Principal: %s\n", p.Username())
		fmt.Printf("Dataset:   %s (id %d, public %t)\n", dataset.Name, dataset.ID, dataset.IsPublic)
		if !p.IsAnonymous() {
			fmt.Printf("Relations: %v\n", iamsvc.RelationRoles(p, res))
		}
		for _, action := range []string{auth.ActionView, auth.ActionEdit, auth.ActionDownload, auth.ActionDelete} {
			err := bundle.Service.Authorize(ctx, p, action, res)
			switch {
			case err == nil:
				fmt.Printf("  %-9s allowed\n", action)
			case errors.Is(err, iamsvc.ErrPermissionDenied):
				fmt.Printf("  %-9s denied\n", action)
			default:
				return fmt.Errorf("check %s: %w", action, err)
			}
		}
		return nil
	},
}
