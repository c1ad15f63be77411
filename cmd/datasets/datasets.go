package datasets

import "github.com/spf13/cobra"

// DatasetsCmd is the parent command for dataset management operations
var DatasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Manage image datasets",
	Long:  `Commands for creating and listing the datasets images are uploaded into.`,
}

func init() {
	createCmd.Flags().StringVar(&ownerFlag, "owner", "", "Username owning the dataset (required)")
	createCmd.Flags().StringSliceVar(&membersFlag, "member", []string{}, "Username allowed to view, edit and download (repeatable)")
	createCmd.Flags().Int64SliceVar(&categoriesFlag, "category", []int64{}, "Category id annotators may use (repeatable)")
	createCmd.Flags().BoolVar(&publicFlag, "public", false, "Let anyone view and upload to the dataset")
	_ = createCmd.MarkFlagRequired("owner")

	DatasetsCmd.AddCommand(createCmd)
	DatasetsCmd.AddCommand(listCmd)
}
