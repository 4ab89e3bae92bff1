package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var checkOffsetCmd = &cobra.Command{
	Use:   "check-offset LOW HIGH",
	Short: "Report whether a mass shift range can be explained by the catalog",
	Long: `Check whether any combination of catalog modifications, within the configured
modification level limit, has a total mass shift between LOW and HIGH Da.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		low, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid low bound '%s': %w", args[0], err)
		}
		high, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid high bound '%s': %w", args[1], err)
		}
		if low > high {
			return fmt.Errorf("low bound %g exceeds high bound %g", low, high)
		}

		st, err := loadSetup()
		if err != nil {
			return err
		}
		if st.env.CheckOffset(low, high) {
			fmt.Printf("[%g, %g] Da: reachable\n", low, high)
		} else {
			fmt.Printf("[%g, %g] Da: not reachable\n", low, high)
		}
		return nil
	},
}
