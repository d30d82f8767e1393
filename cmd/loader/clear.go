package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-catalog-loader/internal/product"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the rendered documents of the configured output folder",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := product.NewStore(runFolder(cfg, flagFolder))
		if err != nil {
			return err
		}
		n, err := store.Clear()
		if err != nil {
			return fmt.Errorf("clear output folder: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d documents from %s\n", n, store.Dir())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
}
