package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/calcengine/calculations"
)

// encode writes v as indented JSON or as YAML. The YAML form keeps the JSON
// field names and order.
func encode(w io.Writer, format string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if format == "json" {
		_, err = fmt.Fprintf(w, "%s\n", raw)
		return err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return err
	}
	blockStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

// blockStyle drops the flow style yaml.v3 keeps from the JSON source
func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// readDocument decodes a JSON or YAML file into v through its JSON field names
func readDocument(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// writeDocument stores v as JSON, or YAML when the extension says so
func writeDocument(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	return encode(f, format, v)
}

func printTemplates(w io.Writer, templates []*calculations.Template) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ID\tVERSION\tCATEGORY\tNAME\tUSES")
	for _, t := range templates {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", t.ID, t.Version, t.Category, t.Name, t.UsageCount)
	}
	return tw.Flush()
}

func printTemplate(w io.Writer, t *calculations.Template) error {
	fmt.Fprintf(w, "%s (%s@%s)\n", t.Name, t.ID, t.Version)
	if t.Description != "" {
		fmt.Fprintf(w, "%s\n", t.Description)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "PARAMETER\tTYPE\tREQUIRED\tRANGE\tDEFAULT")
	for _, p := range t.Parameters {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", p.Name, p.Type, p.Required, describeRange(p), describeDefault(p))
	}
	return tw.Flush()
}

func describeRange(p calculations.Parameter) string {
	if len(p.Options) > 0 {
		return strings.Join(p.Options, "|")
	}
	var lo, hi string
	if p.Min != nil {
		lo = fmt.Sprintf("%g", *p.Min)
	}
	if p.Max != nil {
		hi = fmt.Sprintf("%g", *p.Max)
	}
	if lo == "" && hi == "" {
		return "-"
	}
	return fmt.Sprintf("[%s, %s] %s", lo, hi, p.Unit)
}

func describeDefault(p calculations.Parameter) string {
	if p.DefaultValue == nil || p.DefaultValue.IsZero() {
		return "-"
	}
	return p.DefaultValue.Str()
}

func printResult(w io.Writer, r *calculations.Result) error {
	fmt.Fprintf(w, "%s  [%s]\n\n", r.Name, r.ID)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s %s\n", r.Primary.Label, r.Primary.Value.Str(), r.Primary.Unit)
	for _, m := range r.Secondary {
		fmt.Fprintf(tw, "%s\t%s %s\n", m.Label, m.Value.Str(), m.Unit)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if r.Compliance.IsCompliant {
		fmt.Fprintln(w, "\nCumple")
	} else {
		fmt.Fprintln(w, "\nNo cumple")
	}
	for _, note := range r.Compliance.Notes {
		fmt.Fprintf(w, "  - %s\n", note)
	}
	return nil
}

var tagMarks = map[calculations.Tag]string{
	calculations.TagHighest: " (max)",
	calculations.TagLowest:  " (min)",
	calculations.TagEqual:   " (=)",
}

func printComparison(w io.Writer, table *calculations.ComparisonTable) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)

	header := []string{""}
	for _, c := range table.Columns {
		header = append(header, c.Name)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	section := func(title string, rows []calculations.Row) {
		fmt.Fprintf(tw, "%s\n", title)
		for _, row := range rows {
			cells := []string{"  " + row.Label}
			for _, cell := range row.Cells {
				cells = append(cells, cell.Display+tagMarks[cell.Tag])
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
	}
	section("Parámetros", table.Parameters)
	section("Resultados", table.Metrics)

	return tw.Flush()
}
