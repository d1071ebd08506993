package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"docqa/internal/app"
)

const banner = " ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>"

func newAskCmd(opts *rootOptions) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer a single question from the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			assistant, closeFn := app.NewAssistant(cmd.Context(), opts.cfg)
			defer closeFn()

			resp := assistant.Respond(cmd.Context(), question, lang)
			out := cmd.OutOrStdout()

			log.Info().Msg("Query:" + banner)
			fmt.Fprintf(out, "%s\n\n", question)

			log.Info().Msg("Sources:" + banner)
			if len(resp.Sources) == 0 {
				fmt.Fprint(out, "(none)\n\n")
			} else {
				fmt.Fprintf(out, "%s\n\n", strings.Join(resp.Sources, "\n"))
			}

			log.Info().Msg("Assistant:" + banner)
			fmt.Fprintf(out, "%s\n\n", resp.Content)
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "answer language (English, Portuguese, Spanish); defaults to the configured language")
	return cmd
}
