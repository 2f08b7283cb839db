package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"role-chatter/internal/persona"
)

var (
	fileFlag string
	rootCmd  = &cobra.Command{
		Use:           "personactl",
		Short:         "Validate and inspect persona files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&fileFlag, "file", "f", "config/personas.yaml", "Persona file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check a persona file against the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(fileFlag, cmd.OutOrStdout())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List personas in menu order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(fileFlag, cmd.OutOrStdout())
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runValidate(path string, out io.Writer) error {
	reg, err := persona.Load(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: ok (%d personas)\n", path, reg.Len())
	return nil
}

func runList(path string, out io.Writer) error {
	reg, err := persona.Load(path)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVOICE\tSPEED\tNAMEABLE")
	for _, p := range reg.All() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%t\n", p.ID, p.Name, p.Voice, p.Speed, p.CustomName)
	}
	return tw.Flush()
}
