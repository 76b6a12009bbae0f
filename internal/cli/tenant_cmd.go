package cli

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/soyeahso/triage/internal/config"
	"github.com/soyeahso/triage/internal/tenant"
	"github.com/spf13/cobra"
)

func newTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Inspect configured companies",
	}

	cmd.AddCommand(newTenantListCmd())
	cmd.AddCommand(newTenantInfoCmd())
	return cmd
}

func loadTenants() (*tenant.Registry, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, err
	}
	return cfg.TenantRegistry()
}

func newTenantListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured companies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadTenants()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, id := range reg.IDs() {
				t, _ := reg.Lookup(id)
				fmt.Fprintf(out, "  %-16s %-8s %s\n", t.ID, t.ProjectKey, t.DisplayName)
			}
			return nil
		},
	}
}

func newTenantInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <company-id>",
		Short: "Show how escalations for a company are filed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadTenants()
			if err != nil {
				return err
			}
			t, ok := reg.Resolve(args[0])
			if !ok {
				return fmt.Errorf("company not found: %s", args[0])
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Company: %s (%s)\n", t.ID, t.DisplayName)
			fmt.Fprintf(out, "  Project:   %s\n", t.ProjectKey)
			fmt.Fprintf(out, "  IssueType: %s\n", t.IssueType)
			if t.Component != "" {
				fmt.Fprintf(out, "  Component: %s\n", t.Component)
			}
			if len(t.DefaultLabels) > 0 {
				fmt.Fprintf(out, "  Labels:    %s\n", strings.Join(t.DefaultLabels, ", "))
			}
			for _, tag := range slices.Sorted(maps.Keys(t.LabelMap)) {
				fmt.Fprintf(out, "  %-10s -> %s\n", tag, strings.Join(t.LabelMap[tag], ", "))
			}
			return nil
		},
	}
}
