package commands

import (
	"baypd-scraper/internal/counties"
	"baypd-scraper/internal/runner"
	"bytes"
	"context"
	"strings"

	"github.com/spf13/cobra"
)

var flags runner.Flags

var rootCmd = &cobra.Command{
	Use:   "scraper-data [county...]",
	Short: "Scrapes county COVID-19 data into a single document keyed by county id.",
	Long: "Scrapes county COVID-19 data into a single document keyed by county id.\n\n" +
		"Known counties: " + strings.Join(counties.IDs(), ", ") + ". All of them are scraped when none are given.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := counties.Resolve(args)
		if err != nil {
			return err
		}
		return flags.Execute(cmd.Context(), "data", cmd.ErrOrStderr(), func(ctx context.Context, s *runner.Session) (runner.Outcome, error) {
			doc, outcome := runner.RunData(ctx, s, ids)

			var buf bytes.Buffer
			if err := runner.EncodeIndented(&buf, doc); err != nil {
				return nil, err
			}
			return outcome, runner.WriteOutput(cmd.OutOrStdout(), flags.Output, "data.json", buf.Bytes())
		})
	},
}

func init() {
	flags.Register(rootCmd)
	rootCmd.Flags().BoolVar(&flags.MarinRendered, "marin-rendered", false, "Read Marin charts through the headless browser.")
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
