package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"docqa/internal/app"
	"docqa/internal/models"
)

func newIngestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Rebuild the index from the corpus directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, closeFn, err := app.NewPipeline(opts.cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := p.Run(cmd.Context())
			if errors.Is(err, models.ErrEmptyCorpus) {
				log.Warn().Str("corpus", opts.cfg.CorpusPath).Msg("No documents found, index left unchanged")
				return nil
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "files:     %d\n", res.Files)
			fmt.Fprintf(out, "documents: %d\n", res.Documents)
			fmt.Fprintf(out, "chunks:    %d\n", res.Chunks)
			fmt.Fprintf(out, "build id:  %s\n", res.Manifest.BuildID)
			fmt.Fprintf(out, "elapsed:   %s\n", res.Elapsed.Round(time.Millisecond))
			for _, fe := range res.Failed {
				fmt.Fprintf(out, "skipped:   %s\n", fe.Error())
			}
			return nil
		},
	}
}
