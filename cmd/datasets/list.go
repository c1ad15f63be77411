package datasets

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sriramreddyM/coco-annotator/internal/config"
	"github.com/sriramreddyM/coco-annotator/internal/db/bunx"
	"github.com/sriramreddyM/coco-annotator/internal/repository"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		db, err := bunx.NewDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		datasets, err := repository.NewBunDatasetRepository(db).List(cmd.Context())
		if err != nil {
			return err
		}
		if len(datasets) == 0 {
			fmt.Println("No datasets found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tOWNER\tPUBLIC\tMEMBERS\tDIRECTORY")
		for _, d := range datasets {
			fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\t%s\n",
				d.ID, d.Name, d.Owner, d.IsPublic, strings.Join(d.Members, ","), d.Directory)
		}
		return w.Flush()
	},
}
