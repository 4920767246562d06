// Package output provides CLI output formatting for the mindbody-mcp commands
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Printer writes human-readable command output
type Printer struct {
	out       io.Writer
	err       io.Writer
	useColors bool
}

// UseColors reports whether colors should be used: off when NO_COLOR is set or TERM is dumb
func UseColors(noColorFlag bool) bool {
	if noColorFlag {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

// NewPrinter creates a printer on stdout and stderr
func NewPrinter(useColors bool) *Printer {
	return NewPrinterWithWriters(os.Stdout, os.Stderr, useColors)
}

// NewPrinterWithWriters creates a printer on custom writers
func NewPrinterWithWriters(out, errOut io.Writer, useColors bool) *Printer {
	return &Printer{out: out, err: errOut, useColors: useColors}
}

// Out returns the main output writer
func (p *Printer) Out() io.Writer {
	return p.out
}

// Info prints an informational message
func (p *Printer) Info(format string, args ...any) {
	p.line(p.out, color.FgCyan, "", format, args...)
}

// Success prints a success message
func (p *Printer) Success(format string, args ...any) {
	if p.useColors {
		p.line(p.out, color.FgGreen, "✓ ", format, args...)
		return
	}
	p.line(p.out, 0, "[OK] ", format, args...)
}

// Warning prints a warning message
func (p *Printer) Warning(format string, args ...any) {
	if p.useColors {
		p.line(p.err, color.FgYellow, "⚠ ", format, args...)
		return
	}
	p.line(p.err, 0, "[WARN] ", format, args...)
}

// Error prints an error message
func (p *Printer) Error(format string, args ...any) {
	if p.useColors {
		p.line(p.err, color.FgRed, "✗ ", format, args...)
		return
	}
	p.line(p.err, 0, "[ERROR] ", format, args...)
}

// Header prints a section header
func (p *Printer) Header(title string) {
	underline := make([]rune, len([]rune(title)))
	for i := range underline {
		underline[i] = '-'
	}
	if p.useColors {
		color.New(color.Bold).Fprintf(p.out, "\n%s\n", title)
		fmt.Fprintf(p.out, "%s\n", string(underline))
		return
	}
	fmt.Fprintf(p.out, "\n%s\n%s\n", title, string(underline))
}

// KeyValue prints an aligned label and value
func (p *Printer) KeyValue(key string, value any) {
	fmt.Fprintf(p.out, "  %-18s %v\n", key+":", value)
}

// StateBadge renders a sync state or log status
func (p *Printer) StateBadge(state string) string {
	if !p.useColors {
		return fmt.Sprintf("[%s]", state)
	}
	switch state {
	case "COMPLETED", "success":
		return color.GreenString(state)
	case "PARTIAL", "warning", "started":
		return color.YellowString(state)
	case "RATE_LIMITED", "error":
		return color.RedString(state)
	default:
		return state
	}
}

// JSON prints v as indented JSON
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *Printer) line(w io.Writer, attr color.Attribute, prefix, format string, args ...any) {
	if p.useColors && attr != 0 {
		color.New(attr).Fprintf(w, prefix+format+"\n", args...)
		return
	}
	fmt.Fprintf(w, prefix+format+"\n", args...)
}
