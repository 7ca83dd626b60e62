package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liamcoop/calcengine/calcservice"
	"github.com/liamcoop/calcengine/calculations"
)

type runOptions struct {
	sets        []string
	file        string
	defaults    bool
	interactive bool
	projectID   string
	saveAs      string
	notes       string
	out         string
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <templateId>",
		Short: "Validate and execute a calculation template",
		Long: `run executes a template with parameters taken, in increasing precedence, from
the template defaults (--defaults), an input file (--file), --set flags and the
interactive form (--interactive).`,
		Example: `  calc run electrical-residential-demand --defaults --set areaVivienda=220
  calc run rc-beam-design --file viga.yaml --out viga-result.json
  calc run rc-beam-design --interactive`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "parameter value as name=value (repeatable)")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "JSON or YAML file with parameter values")
	cmd.Flags().BoolVar(&opts.defaults, "defaults", false, "start from the template default values")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "prompt for every parameter")
	cmd.Flags().StringVar(&opts.projectID, "project", "", "project the result belongs to")
	cmd.Flags().StringVar(&opts.saveAs, "save", "", "save the result under this name")
	cmd.Flags().StringVar(&opts.notes, "notes", "", "notes stored with a saved result")
	cmd.Flags().StringVar(&opts.out, "out", "", "also write the result to this file (.json, .yaml)")
	return cmd
}

func (a *app) run(cmd *cobra.Command, templateID string, opts *runOptions) error {
	ctx := cmd.Context()

	t, err := a.backend.Template(ctx, templateID)
	if err != nil {
		return err
	}

	params, err := collectParameters(t, opts)
	if err != nil {
		return err
	}

	if opts.interactive {
		if !isInteractive() {
			return errors.New("--interactive needs a terminal on stdin")
		}
		form := newParameterForm(t, params)
		if err := form.Run(); err != nil {
			return fmt.Errorf("prompt cancelled: %w", err)
		}
		params = form.values()
	}

	result, err := a.backend.Execute(ctx, calcservice.ExecuteRequest{
		TemplateID: t.ID,
		Parameters: params,
		ProjectID:  opts.projectID,
	})
	if err != nil {
		var verr *calculations.ValidationError
		if errors.As(err, &verr) {
			printFieldErrors(cmd, t, verr.Fields)
		}
		return err
	}

	if opts.saveAs != "" {
		result, err = a.backend.SaveResult(ctx, calculations.SaveRequest{
			ID:            result.ID,
			Name:          opts.saveAs,
			Notes:         opts.notes,
			UsedInProject: opts.projectID != "",
			ProjectID:     opts.projectID,
		})
		if err != nil {
			return err
		}
	}

	if opts.out != "" {
		if err := writeDocument(opts.out, result); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.out, err)
		}
	}

	if a.output != "text" {
		return encode(cmd.OutOrStdout(), a.output, result)
	}
	return printResult(cmd.OutOrStdout(), result)
}

// collectParameters merges defaults, the input file and --set flags, later
// sources winning
func collectParameters(t *calculations.Template, opts *runOptions) (map[string]any, error) {
	params := map[string]any{}
	if opts.defaults {
		for k, v := range t.DefaultInputs() {
			params[k] = v
		}
	}

	if opts.file != "" {
		var fromFile map[string]any
		if err := readDocument(opts.file, &fromFile); err != nil {
			return nil, err
		}
		// a saved result file carries its parameters under "inputs"
		if inputs, ok := fromFile["inputs"].(map[string]any); ok {
			fromFile = inputs
		}
		for k, v := range fromFile {
			params[k] = v
		}
	}

	for _, set := range opts.sets {
		name, value, ok := strings.Cut(set, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q, expected name=value", set)
		}
		if _, declared := t.Parameter(name); !declared {
			return nil, fmt.Errorf("template %s has no parameter %q", t.ID, name)
		}
		params[name] = strings.TrimSpace(value)
	}
	return params, nil
}

func printFieldErrors(cmd *cobra.Command, t *calculations.Template, fields calculations.FieldErrors) {
	w := cmd.ErrOrStderr()
	for _, p := range t.Parameters {
		if msg, ok := fields[p.Name]; ok {
			fmt.Fprintf(w, "  %s: %s\n", p.Label, msg)
		}
	}
	for name, msg := range fields {
		if _, declared := t.Parameter(name); !declared {
			fmt.Fprintf(w, "  %s: %s\n", name, msg)
		}
	}
}

// isInteractive reports whether stdin is a terminal rather than a pipe or file
func isInteractive() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
