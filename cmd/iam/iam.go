package iam

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// IamCmd is the parent command for access policy operations
var IamCmd = &cobra.Command{
	Use:   "iam",
	Short: "Inspect and manage the access policy",
	Long: `Commands for the Casbin rules that decide what each relation role
(admin, owner, member, public) may do with datasets and images.`,
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage stored policy rules",
}

func init() {
	policyCmd.AddCommand(policyListCmd)
	policyCmd.AddCommand(policyResetCmd)
	IamCmd.AddCommand(policyCmd)
	IamCmd.AddCommand(checkCmd)
}

func formatRule(rule []string) string {
	return fmt.Sprintf("%-12s %-8s %-9s %s", rule[0], rule[1], rule[2], strings.Join(rule[3:], ","))
}
