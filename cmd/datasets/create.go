package datasets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sriramreddyM/coco-annotator/internal/config"
	"github.com/sriramreddyM/coco-annotator/internal/db/bunx"
	"github.com/sriramreddyM/coco-annotator/internal/db/models"
	"github.com/sriramreddyM/coco-annotator/internal/repository"
)

var (
	ownerFlag      string
	membersFlag    []string
	categoriesFlag []int64
	publicFlag     bool
)

var createCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a dataset and its image directory",
	Long: `Creates the dataset record and the directory <dataset_root>/<name> that
uploaded images are written to.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimSpace(args[0])
		if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			return fmt.Errorf("invalid dataset name %q", args[0])
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		db, err := bunx.NewDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		ctx := cmd.Context()
		if _, err := repository.NewBunUserRepository(db).GetByUsername(ctx, ownerFlag); err != nil {
			if repository.IsNotFound(err) {
				return fmt.Errorf("owner %q does not exist", ownerFlag)
			}
			return err
		}

		dir := filepath.Join(cfg.DatasetRoot, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create dataset directory: %w", err)
		}

		members := models.StringSet{}
		for _, m := range membersFlag {
			members.Add(m)
		}
		dataset := &models.Dataset{
			Name:       name,
			Directory:  dir,
			Owner:      ownerFlag,
			Members:    members,
			Categories: models.Int64List(categoriesFlag),
			IsPublic:   publicFlag,
		}
		if err := repository.NewBunDatasetRepository(db).Create(ctx, dataset); err != nil {
			return fmt.Errorf("failed to create dataset %q: %w", name, err)
		}

		fmt.Println("Dataset created successfully!")
		fmt.Println("----------------------------------------")
		fmt.Printf("Dataset ID: %d\n", dataset.ID)
		fmt.Printf("Name:       %s\n", dataset.Name)
		fmt.Printf("Directory:  %s\n", dataset.Directory)
		fmt.Printf("Owner:      %s\n", dataset.Owner)
		fmt.Printf("Public:     %t\n", dataset.IsPublic)
		fmt.Println("----------------------------------------")
		return nil
	},
}
