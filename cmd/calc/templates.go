package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/liamcoop/calcengine/calcservice"
	"github.com/liamcoop/calcengine/calculations"
	"github.com/liamcoop/calcengine/calculations/catalog"
)

func newListCmd(a *app) *cobra.Command {
	var (
		types       []string
		professions []string
		search      string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the active calculation templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := calculations.TemplateFilter{
				TargetProfessions: professions,
				SearchTerm:        search,
			}
			for _, t := range types {
				filter.Types = append(filter.Types, calculations.Category(t))
			}

			templates, err := a.backend.Templates(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if a.output != "text" {
				return encode(cmd.OutOrStdout(), a.output, templates)
			}
			return printTemplates(cmd.OutOrStdout(), templates)
		},
	}

	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "category filter (structural, electrical, architectural, hydraulic)")
	cmd.Flags().StringSliceVar(&professions, "profession", nil, "target profession filter")
	cmd.Flags().StringVarP(&search, "search", "s", "", "case-insensitive text search over name, description and tags")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <templateId>",
		Short: "Show a template and its parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.backend.Template(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.output != "text" {
				return encode(cmd.OutOrStdout(), a.output, t)
			}
			return printTemplate(cmd.OutOrStdout(), t)
		},
	}
}

func newRecommendCmd(a *app) *cobra.Command {
	var req calcservice.RecommendationRequest

	cmd := &cobra.Command{
		Use:   "recommend [templateId]",
		Short: "Suggest templates related to the one in use",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				req.TemplateID = args[0]
			}
			templates, err := a.backend.Recommendations(cmd.Context(), req)
			if err != nil {
				return err
			}
			if a.output != "text" {
				return encode(cmd.OutOrStdout(), a.output, templates)
			}
			return printTemplates(cmd.OutOrStdout(), templates)
		},
	}

	cmd.Flags().StringVar(&req.ProjectID, "project", "", "project whose saved results inform the ranking")
	cmd.Flags().IntVar(&req.Limit, "limit", calcservice.DefaultRecommendationLimit, "maximum number of suggestions")
	return cmd
}

// newCheckCmd validates template definition files without publishing them
func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>...",
		Short: "Validate template definition files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				if err := checkTemplateFile(path); err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d template files are invalid", failed, len(args))
			}
			return nil
		},
	}
}

func checkTemplateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	t, err := catalog.Decode(data)
	if err != nil {
		return err
	}
	// compliance rules only fail at compile time
	engine, err := calculations.NewComplianceEngine()
	if err != nil {
		return err
	}
	return engine.CompileTemplate(t)
}
