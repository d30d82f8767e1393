package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
	"github.com/couchcryptid/quake-catalog-loader/internal/product"
)

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the supported product types",
	RunE: func(cmd *cobra.Command, _ []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		for _, pt := range domain.ProductTypes() {
			assoc := "no"
			if pt.RequiresAssociation() {
				assoc = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s\tassociation: %s\n", pt, pt.Description(), assoc)
		}
		return tw.Flush()
	},
}

var keysCmd = &cobra.Command{
	Use:       "keys {required|optional}",
	Short:     "List the input fields the configured product type reads",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"required", "optional"},
	RunE:      runKeys,
}

func init() {
	rootCmd.AddCommand(typesCmd)
	rootCmd.AddCommand(keysCmd)
}

func runKeys(cmd *cobra.Command, args []string) error {
	var keys []string
	switch args[0] {
	case "required":
		keys = cfg.ProductType.RequiredFields()
	case "optional":
		_, optional := product.TemplateFields(cfg.ProductType)
		for _, k := range optional {
			keys = append(keys, strings.ToLower(k))
		}
	}
	out := cmd.OutOrStdout()
	for _, k := range keys {
		fmt.Fprintln(out, k)
	}
	return nil
}
