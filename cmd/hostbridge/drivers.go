package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/hostbridge/registry"
)

var driversCmd = &cobra.Command{
	Use:   "drivers",
	Short: "List registered drivers",
	Long: `List the driver registry: builtin drivers plus any manifest entries.

Use --yaml to print the registry as a manifest that --manifest accepts.`,
	Args: cobra.NoArgs,
	RunE: runDrivers,
}

func init() {
	driversCmd.Flags().Bool("yaml", false, "Print as a YAML manifest")
	rootCmd.AddCommand(driversCmd)
}

func runDrivers(cmd *cobra.Command, args []string) error {
	asYAML, _ := cmd.Flags().GetBool("yaml")

	s, err := loadStack(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	reg := s.Host.Registry()
	if asYAML {
		data, err := registry.MarshalManifest(reg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS")
	for _, e := range reg.Entries() {
		fmt.Fprintf(w, "%s\t%s\n", e.Name, e.Address)
	}
	return w.Flush()
}
