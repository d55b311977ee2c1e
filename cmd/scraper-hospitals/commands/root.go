package commands

import (
	"baypd-scraper/internal/counties"
	"baypd-scraper/internal/runner"
	"bytes"
	"context"

	"github.com/spf13/cobra"
)

var flags runner.Flags

var rootCmd = &cobra.Command{
	Use:           "scraper-hospitals [county...]",
	Short:         "Reads the data.ca.gov hospitalization series of counties into a document keyed by county id.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := counties.Resolve(args)
		if err != nil {
			return err
		}
		return flags.Execute(cmd.Context(), "hospitals", cmd.ErrOrStderr(), func(ctx context.Context, s *runner.Session) (runner.Outcome, error) {
			doc, outcome := runner.RunHospitals(ctx, s, ids)

			var buf bytes.Buffer
			if err := runner.EncodeIndented(&buf, doc); err != nil {
				return nil, err
			}
			return outcome, runner.WriteOutput(cmd.OutOrStdout(), flags.Output, "hospitals.json", buf.Bytes())
		})
	},
}

func init() {
	flags.Register(rootCmd)
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
