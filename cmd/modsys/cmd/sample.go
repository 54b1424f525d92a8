package cmd

import (
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modsys"
)

// NewSampleCommand creates the sample command
func NewSampleCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Print the system settings with their defaults",
		Long:  `Sample prints the manifest "system" section with every default filled in.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := modsys.GenerateSampleConfig(&modsys.Config{}, format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml, toml, json")

	return cmd
}
