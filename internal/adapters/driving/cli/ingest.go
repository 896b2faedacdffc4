package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/mortar-ai/mortar/internal/corpus"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir>",
	Short: "Ingest corpus documents from a directory",
	Long: `Ingest loads every .txt file in the given directory, splits it into
overlapping chunks, embeds them and commits them to the index. Re-ingesting
a file replaces its earlier chunks. Malformed documents are reported and
skipped without aborting the batch.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestService == nil {
			return errors.New("ingest service is not initialised")
		}

		docs, err := corpus.LoadDir(args[0])
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			cmd.Println("No .txt documents found.")
			return nil
		}

		report, err := ingestService.Ingest(cmd.Context(), docs)
		if err != nil {
			return err
		}

		for _, id := range report.Accepted {
			cmd.Printf("ingested %s\n", id)
		}
		for _, rej := range report.Rejected {
			cmd.Printf("rejected %s: %s\n", rej.DocumentID, rej.Reason)
		}
		cmd.Printf("%d ingested, %d rejected (snapshot %s)\n",
			len(report.Accepted), len(report.Rejected), report.SnapshotVersion)

		if len(report.Rejected) > 0 {
			return errors.New("some documents were rejected")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
