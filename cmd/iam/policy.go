package iam

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sriramreddyM/coco-annotator/cmd/cmdutil"
	"github.com/sriramreddyM/coco-annotator/internal/auth"
	"github.com/sriramreddyM/coco-annotator/internal/auth/bunadapter"
	"github.com/sriramreddyM/coco-annotator/internal/config"
)

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored policy rules",
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

		rules, err := bundle.Enforcer.GetPolicy()
		if err != nil {
			return fmt.Errorf("failed to read policy: %w", err)
		}
		if len(rules) == 0 {
			fmt.Println("No policy rules stored. Run 'iam policy reset' to restore the defaults.")
			return nil
		}

		fmt.Printf("%-12s %-8s %-9s %s\n", "ROLE", "OBJECT", "ACTION", "EFFECT")
		for _, rule := range rules {
			if len(rule) < 4 {
				continue
			}
			fmt.Println(formatRule(rule))
		}
		return nil
	},
}

var policyResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Replace stored policy rules with the defaults",
	Long: `Replaces every row of casbin_rules with the default rule set. Operator-added
rules are removed. Restart running servers to pick up the change.`,
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

		defaults, err := auth.NewMemoryEnforcer(auth.DefaultPolicyRules())
		if err != nil {
			return err
		}
		if err := bunadapter.NewAdapter(bundle.DB).SavePolicy(defaults.GetModel()); err != nil {
			return fmt.Errorf("failed to save policy: %w", err)
		}

		fmt.Printf("✓ Restored %d default policy rules\n", len(auth.DefaultPolicyRules()))
		return nil
	},
}
