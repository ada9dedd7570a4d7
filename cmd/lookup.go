package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mna-tracker/internal/quote"
)

var profileCmd = &cobra.Command{
	Use:   "profile <code>",
	Short: "Look up the industry and main business of a stock code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("lookup"); err != nil {
			return err
		}
		p := buildProfiles(buildFetcher()).Resolve(cmd.Context(), args[0])

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

var quoteCmd = &cobra.Command{
	Use:   "quote <code>",
	Short: "Fetch a live market snapshot for a stock code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("lookup"); err != nil {
			return err
		}
		q, err := quote.New(buildFetcher(), cfg.Quote.BaseURL).Get(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrapf(err, "quote %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(q)
	},
}

func init() {
	rootCmd.AddCommand(profileCmd, quoteCmd)
}
