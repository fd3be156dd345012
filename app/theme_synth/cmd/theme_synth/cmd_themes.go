package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
)

var themesFlags struct {
	tenant string
}

var themesCmd = &cobra.Command{
	Use:   "themes",
	Short: "List persisted themes and alerts for a tenant",
	RunE:  runThemes,
}

func init() {
	themesCmd.Flags().StringVar(&themesFlags.tenant, "tenant", "", "租户 ID (必填)")
	_ = themesCmd.MarkFlagRequired("tenant")
}

func runThemes(cmd *cobra.Command, _ []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ListRecords(cmd.Context(), themesFlags.tenant)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintf(out, "No themes for tenant %s\n", themesFlags.tenant)
		return nil
	}
	for _, rec := range records {
		switch r := rec.(type) {
		case *model.Theme:
			fmt.Fprintf(out, "[theme] %s  %s (%s, %d entities)\n", r.ID, r.Title, r.Strength, len(r.EntityIDs))
		case *model.Alert:
			fmt.Fprintf(out, "[alert] %s  %s (%s, entity %s)\n", r.ID, r.Title, r.Strength, r.EntityID)
		}
	}
	return nil
}
