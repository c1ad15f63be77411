package users

import (
	"bufio"
	"errors"
	"fmt"
	"net/mail"
	"os"

	"github.com/spf13/cobra"

	"github.com/sriramreddyM/coco-annotator/cmd/cmdutil"
	"github.com/sriramreddyM/coco-annotator/internal/auth"
	"github.com/sriramreddyM/coco-annotator/internal/config"
	"github.com/sriramreddyM/coco-annotator/internal/db/models"
	"github.com/sriramreddyM/coco-annotator/internal/repository"
)

var (
	usernameFlag string
	passwordFlag string
	emailFlag    string
	nameFlag     string
	adminFlag    bool
	stdinFlag    bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new account",
	Long: `Creates an account with a bcrypt-hashed password. Unlike registration over
the API this works when registration is disabled, and --admin grants
administrator rights to accounts other than the first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Validate required flags
		if usernameFlag == "" {
			return errors.New("--username flag is required")
		}

		password := passwordFlag
		if stdinFlag {
			// Read password from stdin
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("Enter password: ")
			if scanner.Scan() {
				password = scanner.Text()
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
		}

		if password == "" {
			return errors.New("password is required (use --password or --stdin)")
		}

		if emailFlag != "" {
			if _, err := mail.ParseAddress(emailFlag); err != nil {
				return fmt.Errorf("invalid email format: %w", err)
			}
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

		// Usernames are unique ignoring case
		existing, err := bundle.Users.GetByUsername(ctx, usernameFlag)
		if err != nil && !repository.IsNotFound(err) {
			return fmt.Errorf("failed to check username uniqueness: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("user %q already exists", existing.Username)
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		user := &models.User{
			Username:     usernameFlag,
			Email:        emailFlag,
			Name:         nameFlag,
			PasswordHash: hash,
			IsAdmin:      adminFlag,
		}
		if err := bundle.Users.Create(ctx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		fmt.Println("User created successfully!")
		fmt.Println("----------------------------------------")
		fmt.Printf("User ID:  %s\n", user.ID)
		fmt.Printf("Username: %s\n", user.Username)
		if user.Email != "" {
			fmt.Printf("Email:    %s\n", user.Email)
		}
		fmt.Printf("Admin:    %t\n", user.IsAdmin)
		fmt.Println("----------------------------------------")
		fmt.Println("The user ID doubles as the account's api_key.")

		return nil
	},
}
