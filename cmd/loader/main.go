// Command loader associates seismic catalog records with existing catalog
// origins, renders QuakeML products and sends them to the distribution network.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-catalog-loader/internal/config"
	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
)

// version is set by ldflags at build time.
var version = "dev"

// cfg is loaded from the environment before any subcommand runs; flags
// override individual fields.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "loader",
	Short:         "Associate catalog records and assemble QuakeML products",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		return applyFlags(cmd)
	},
}

var (
	flagType   string
	flagOutput string
	flagFolder string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagType, "type", "t", "", "product type (origin|moment-tensor|focal-mechanism); overrides PRODUCT_TYPE")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "", "output root; overrides OUTPUT_DIR")
	rootCmd.PersistentFlags().StringVar(&flagFolder, "folder", "", "run folder under the output root (default <source>_<type>)")
}

// applyFlags copies explicitly set persistent flags onto cfg.
func applyFlags(cmd *cobra.Command) error {
	if cmd.Flags().Changed("type") {
		pt, err := domain.ParseProductType(flagType)
		if err != nil {
			return err
		}
		cfg.ProductType = pt
	}
	if cmd.Flags().Changed("output") {
		cfg.OutputDir = flagOutput
	}
	return cfg.Validate()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
