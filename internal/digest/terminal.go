package digest

import (
	"fmt"
	"io"
	"strings"
)

// TerminalFormatter prints the digest for reading in a terminal.
type TerminalFormatter struct {
	layout Layout
	color  bool
}

// NewTerminal creates a terminal formatter. Set color=true for ANSI colors.
func NewTerminal(layout Layout, color bool) *TerminalFormatter {
	return &TerminalFormatter{layout: layout.withDefaults(), color: color}
}

func (f *TerminalFormatter) Ext() string { return ".txt" }

// Format writes the entries followed by the per-account outcomes.
func (f *TerminalFormatter) Format(w io.Writer, input Input) error {
	date := input.Date.Format(dateLayout)
	fmt.Fprintln(w, f.bold(fmt.Sprintf("%s %s — %d posts from %d accounts",
		date, f.layout.Heading, len(input.Entries), len(input.Accounts))))
	fmt.Fprintln(w)

	if len(input.Entries) == 0 {
		fmt.Fprintln(w, "No posts found.")
		fmt.Fprintln(w)
	}

	for _, e := range input.Entries {
		fmt.Fprintf(w, "  %s %s\n", f.bold(handle(e.Post.Account)), f.dim(postDate(e.Post, input.Date.Location())))
		for _, line := range strings.Split(e.Summary, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				fmt.Fprintf(w, "      %s\n", line)
			}
		}
		if e.Post.Permalink != "" {
			fmt.Fprintf(w, "      %s\n", f.dim(e.Post.Permalink))
		}
		fmt.Fprintln(w)
	}

	if len(input.Accounts) > 0 {
		fmt.Fprintln(w, f.bold("--- Accounts ---"))
		for _, a := range input.Accounts {
			line := fmt.Sprintf("  %-20s %s", handle(a.Account), f.outcome(a.Outcome))
			if a.Fetched > 0 {
				line += fmt.Sprintf(" %d/%d rendered", a.Rendered, a.Fetched)
			}
			if a.Error != "" {
				line += " " + f.dim(a.Error)
			}
			fmt.Fprintln(w, line)
		}
	}
	return nil
}

func (f *TerminalFormatter) outcome(o string) string {
	switch o {
	case "ok":
		return f.green(o)
	case "empty":
		return f.yellow(o)
	default:
		return f.red(o)
	}
}

// ANSI helpers; no-op when color=false.

func (f *TerminalFormatter) paint(code, s string) string {
	if !f.color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func (f *TerminalFormatter) bold(s string) string   { return f.paint("1", s) }
func (f *TerminalFormatter) dim(s string) string    { return f.paint("2", s) }
func (f *TerminalFormatter) red(s string) string    { return f.paint("31", s) }
func (f *TerminalFormatter) green(s string) string  { return f.paint("32", s) }
func (f *TerminalFormatter) yellow(s string) string { return f.paint("33", s) }
