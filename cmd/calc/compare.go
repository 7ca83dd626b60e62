package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liamcoop/calcengine/calculations"
)

func newCompareCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <result-file> <result-file>...",
		Short: "Compare 2 to 4 result files side by side",
		Long: `compare reads results written by "calc run --out" (JSON or YAML) and tags
every numeric row with its highest and lowest values.`,
		Args: cobra.RangeArgs(calculations.MinCompareResults, calculations.MaxCompareResults),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]*calculations.Result, 0, len(args))
			for _, path := range args {
				var r calculations.Result
				if err := readDocument(path, &r); err != nil {
					return err
				}
				if r.ID == "" {
					return fmt.Errorf("%s is not a calculation result", path)
				}
				results = append(results, &r)
			}

			table, err := calculations.Compare(results)
			if err != nil {
				return err
			}
			if a.output != "text" {
				return encode(cmd.OutOrStdout(), a.output, table)
			}
			return printComparison(cmd.OutOrStdout(), table)
		},
	}
}
