package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/mortar-ai/mortar/internal/core/domain"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Report retrieval health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if healthService == nil {
			return errors.New("health service is not initialised")
		}

		h := healthService.RetrievalHealth(cmd.Context())
		if h.SnapshotVersion != "" {
			cmd.Printf("%s (snapshot %s)\n", h.Status, h.SnapshotVersion)
		} else {
			cmd.Println(h.Status)
		}
		if h.Status != domain.HealthOK {
			return errors.New("retrieval is degraded")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
