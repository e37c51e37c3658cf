package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"

	"github.com/dbsmedya/typeprobe/internal/pipeline"
	"github.com/dbsmedya/typeprobe/internal/synth"
)

// outputWriter is used for printing output, can be overridden in tests
var outputWriter io.Writer = os.Stdout

// setOutputWriter sets the output writer (used for testing)
func setOutputWriter(w io.Writer) {
	outputWriter = w
}

// resetOutputWriter resets output to stdout (used for testing)
func resetOutputWriter() {
	outputWriter = os.Stdout
}

// printHeader prints a formatted header
func printHeader(format string, args ...interface{}) {
	title := fmt.Sprintf(format, args...)
	width := runewidth.StringWidth(title) + 4
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
	fmt.Fprintf(outputWriter, "  %s\n", title)
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
}

// printSection prints a section header
func printSection(title string) {
	fmt.Fprintf(outputWriter, "[%s]\n", title)
	fmt.Fprintln(outputWriter, strings.Repeat("-", runewidth.StringWidth(title)+2))
}

// cell is one table cell; style colors it after padding so escape codes do
// not count toward the column width.
type cell struct {
	text  string
	style color.Color
}

func plain(s string) cell { return cell{text: s} }

const (
	okStyle   = color.FgGreen
	warnStyle = color.FgYellow
	failStyle = color.FgRed
)

// printTable prints rows under headers with columns padded to their widest
// cell.
func printTable(headers []string, rows [][]cell) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, c := range row {
			if w := runewidth.StringWidth(c.text); w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := make([]string, len(headers))
	for i, h := range headers {
		line[i] = runewidth.FillRight(h, widths[i])
	}
	fmt.Fprintf(outputWriter, "  %s\n", strings.TrimRight(strings.Join(line, "  "), " "))
	for i := range line {
		line[i] = strings.Repeat("-", widths[i])
	}
	fmt.Fprintf(outputWriter, "  %s\n", strings.Join(line, "  "))

	for _, row := range rows {
		parts := make([]string, len(row))
		for i, c := range row {
			padded := c.text
			if i < len(row)-1 {
				padded = runewidth.FillRight(c.text, widths[i])
			}
			if c.style != 0 {
				padded = c.style.Sprint(padded)
			}
			parts[i] = padded
		}
		fmt.Fprintf(outputWriter, "  %s\n", strings.Join(parts, "  "))
	}
}

func statusCell(r *pipeline.EntityReport) cell {
	switch r.Status {
	case pipeline.StatusInferred:
		return cell{text: string(r.Status), style: okStyle}
	case pipeline.StatusNoTransform:
		return cell{text: "skipped", style: warnStyle}
	default:
		return cell{text: fmt.Sprintf("%s (%s)", r.Status, r.Phase), style: failStyle}
	}
}

// printRunReport prints the per-entity outcome of a run.
func printRunReport(res *pipeline.Result) {
	fmt.Fprintln(outputWriter)
	title := "Generation Report"
	if res.DryRun {
		title += " (dry run)"
	}
	printHeader("%s", title)
	fmt.Fprintln(outputWriter)

	printSection("Entities")
	rows := make([][]cell, 0, len(res.Entities))
	for _, r := range res.Entities {
		typeName, fields := "-", "-"
		if r.Status == pipeline.StatusInferred {
			typeName = r.TypeName
			fields = fmt.Sprintf("%d", r.Fields)
		}
		seeded := "no"
		if r.Seeded {
			seeded = "yes"
		}
		rows = append(rows, []cell{plain(r.ID), plain(r.Table), plain(seeded), plain(typeName), plain(fields), statusCell(r)})
	}
	printTable([]string{"ENTITY", "TABLE", "SEEDED", "TYPE", "FIELDS", "STATUS"}, rows)
	fmt.Fprintln(outputWriter)

	if skipped := res.Skipped(); len(skipped) > 0 {
		printSection("Skipped")
		for _, r := range skipped {
			fmt.Fprintf(outputWriter, "  %s: %s\n", r.ID, r.Reason)
		}
		fmt.Fprintln(outputWriter)
	}

	if len(res.Ambiguities) > 0 {
		printSection("Ambiguous provenance")
		for _, a := range res.Ambiguities {
			fmt.Fprintf(outputWriter, "  %s.%s: %s\n", a.Entity, a.Field, a.Reason)
		}
		fmt.Fprintln(outputWriter)
	}

	if out := res.Output; out != nil {
		if len(out.Unresolved) > 0 {
			printSection("Unresolved references")
			for _, e := range out.Unresolved {
				fmt.Fprintf(outputWriter, "  %s -> %s (typed as unknown)\n", e.From, e.To)
			}
			fmt.Fprintln(outputWriter)
		}
		if out.Cycles != nil && len(out.Cycles.CyclePath) > 0 {
			printSection("Mutual references")
			fmt.Fprintf(outputWriter, "  %s\n\n", strings.Join(out.Cycles.CyclePath, " -> "))
		}
	}

	printSection("Output")
	verb := "Written"
	if res.DryRun {
		verb = "Would write"
	}
	for _, f := range res.Files {
		fmt.Fprintf(outputWriter, "  %s %s\n", verb, f.Path)
	}
	fmt.Fprintf(outputWriter, "\nCompleted in %s\n", res.Duration.Round(1e6))
}

// printDeclarations prints every rendered file, for dry runs.
func printDeclarations(res *pipeline.Result) {
	for _, f := range res.Files {
		fmt.Fprintln(outputWriter)
		fmt.Fprintln(outputWriter, color.FgCyan.Sprintf("// ---- %s", f.Path))
		fmt.Fprint(outputWriter, f.Content)
	}
}

// declarationNames lists the generated type names in manifest order.
func declarationNames(out *synth.Output) []string {
	if out == nil {
		return nil
	}
	names := make([]string, len(out.Declarations))
	for i, d := range out.Declarations {
		names[i] = d.TypeName
	}
	return names
}
