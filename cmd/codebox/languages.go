package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/isdmx/codebox/languages"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List the supported languages and their images",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		registry, err := languages.NewRegistryFromConfig(cfg)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tIMAGE\tCOMPILE")
		for _, lang := range registry.List() {
			compile := "-"
			if lang.HasCompileStep() {
				compile = strings.Join(lang.CompileCmd, " ")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", lang.ID, lang.Image, compile)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(languagesCmd)
}
