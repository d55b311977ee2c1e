package commands

import (
	"baypd-scraper/internal/components/chrono"
	"baypd-scraper/internal/counties"
	"baypd-scraper/internal/runner"
	"context"

	"github.com/spf13/cobra"
)

var (
	flags  runner.Flags
	format string
	from   string
	to     string
)

var rootCmd = &cobra.Command{
	Use:           "scraper-news [county...]",
	Short:         "Scrapes county COVID-19 news into json_simple, JSON Feed or RSS feeds.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := counties.Resolve(args)
		if err != nil {
			return err
		}
		outFormat, err := runner.ParseFormat(format)
		if err != nil {
			return err
		}
		if err := runner.CheckNewsOutput(outFormat, flags.Output, ids); err != nil {
			return err
		}
		clock, err := chrono.NewStandardImpl()
		if err != nil {
			return err
		}
		window, err := runner.ParseWindow(from, to, clock.Location())
		if err != nil {
			return err
		}

		return flags.Execute(cmd.Context(), "news", cmd.ErrOrStderr(), func(ctx context.Context, s *runner.Session) (runner.Outcome, error) {
			feeds, outcome := runner.RunNews(ctx, s, ids, window)
			if len(feeds) == 0 && outFormat != runner.FormatJSONSimple {
				return outcome, nil
			}
			return outcome, runner.WriteNews(cmd.OutOrStdout(), flags.Output, outFormat, feeds)
		})
	},
}

func init() {
	flags.Register(rootCmd)
	rootCmd.Flags().StringVarP(&format, "format", "f", string(runner.FormatJSONSimple), "The output format: json_simple, json_feed or rss.")
	rootCmd.Flags().StringVar(&from, "from", "", "Only keep items published on or after this date (YYYY-MM-DD).")
	rootCmd.Flags().StringVar(&to, "to", "", "Only keep items published on or before this date (YYYY-MM-DD), defaults to now.")
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
