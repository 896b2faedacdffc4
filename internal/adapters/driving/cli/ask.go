package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mortar-ai/mortar/internal/core/domain"
)

var showSources bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a mortgage question",
	Long: `Ask answers a single mortgage question from the ingested corpus.
The answer cites the source excerpts it is grounded in; when the corpus
cannot support a confident answer, a clarifying question or a safe fallback
is returned instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if answerService == nil {
			return errors.New("answer service is not initialised")
		}

		question := strings.Join(args, " ")
		answer, err := answerService.Answer(cmd.Context(), question, nil)
		if err != nil {
			return err
		}

		cmd.Println(answer.Text)

		if showSources && len(answer.Citations) > 0 {
			cmd.Println()
			cmd.Println("Sources:")
			for _, c := range answer.Citations {
				cmd.Printf("  [%s] %s", c.Tag, c.Title)
				if c.Jurisdiction != "" {
					cmd.Printf(" (%s)", c.Jurisdiction)
				}
				if c.URL != "" {
					cmd.Printf(" %s", c.URL)
				}
				cmd.Println()
			}
		}

		if answer.Kind != domain.ResponseGrounded {
			cmd.Printf("\n(response kind: %s, request: %s)\n", answer.Kind, answer.RequestID)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVarP(&showSources, "sources", "s", true, "print the cited sources after the answer")
	rootCmd.AddCommand(askCmd)
}
