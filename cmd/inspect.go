package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"docqa/internal/app"
	"docqa/internal/helper"
)

func newInspectCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the manifest of the persisted index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := app.ReadManifest(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			if asJSON {
				return helper.PrettyPrint(cmd.OutOrStdout(), m)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(m); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the manifest as json")
	return cmd
}
