package users

import "github.com/spf13/cobra"

// UsersCmd is the parent command for account management operations
var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage annotator accounts",
	Long:  `Commands for managing annotator accounts directly from the server.`,
}

func init() {
	createCmd.Flags().StringVar(&usernameFlag, "username", "", "Username of the account (required)")
	createCmd.Flags().StringVar(&passwordFlag, "password", "", "Password for the account (use --stdin to avoid shell history)")
	createCmd.Flags().StringVar(&emailFlag, "email", "", "Email address of the account")
	createCmd.Flags().StringVar(&nameFlag, "name", "", "Display name of the account")
	createCmd.Flags().BoolVar(&adminFlag, "admin", false, "Grant administrator rights")
	createCmd.Flags().BoolVar(&stdinFlag, "stdin", false, "Read password from stdin instead of --password flag")

	UsersCmd.AddCommand(createCmd)
	UsersCmd.AddCommand(tokenCmd)
}
