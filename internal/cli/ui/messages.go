package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Level is the severity of a message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// Message is a multi-line report with optional suggestions and follow-up
// commands
//
//	❌ TYPE NOT FOUND: Pont
//	   Namespace 2 has no type 'Pont'.
//
//	   Did you mean: Point?
//
//	   → List the types: uadiscover discover --namespace 2
type Message struct {
	Level       Level
	Context     string
	Problem     string
	Detail      string
	Suggestions []string
	Commands    []string
	NoColor     bool
}

// String formats the message
func (m Message) String() string {
	var b strings.Builder

	var header, body *color.Color
	var symbol string
	switch m.Level {
	case LevelWarning:
		header, body, symbol = color.New(color.FgYellow, color.Bold), color.New(color.FgYellow), "⚠️"
	case LevelInfo:
		header, body, symbol = color.New(color.FgCyan, color.Bold), color.New(color.FgCyan), "ℹ️"
	default:
		header, body, symbol = color.New(color.FgRed, color.Bold), color.New(color.FgRed), "❌"
	}
	yellow, cyan := color.New(color.FgYellow), color.New(color.FgCyan)
	if m.NoColor {
		for _, c := range []*color.Color{header, body, yellow, cyan} {
			c.DisableColor()
		}
	}

	if m.Context != "" {
		header.Fprintf(&b, "%s %s\n", symbol, strings.ToUpper(m.Context))
		body.Fprintf(&b, "   %s\n", m.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, m.Problem)
	}
	if m.Detail != "" {
		body.Fprintf(&b, "\n   %s\n", m.Detail)
	}
	if len(m.Suggestions) > 0 {
		yellow.Fprintf(&b, "\n   Did you mean: %s?\n", strings.Join(m.Suggestions, ", "))
	}
	if len(m.Commands) > 0 {
		b.WriteString("\n")
		for _, cmd := range m.Commands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}
	return b.String()
}

// Write writes the formatted message to w
func (m Message) Write(w io.Writer) {
	fmt.Fprint(w, m.String())
}

// Success formats a one-line success message
func Success(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// TypeNotFound reports an unknown type name in a namespace
func TypeNotFound(name string, ns uint16, suggestions []string, noColor bool) Message {
	return Message{
		Level:       LevelError,
		Context:     "type not found",
		Problem:     fmt.Sprintf("Namespace %d has no type '%s'.", ns, name),
		Suggestions: suggestions,
		Commands:    []string{fmt.Sprintf("List the types: uadiscover discover --namespace %d", ns)},
		NoColor:     noColor,
	}
}

// ConnectError reports a server that could not be reached
func ConnectError(endpoint string, err error, noColor bool) Message {
	return Message{
		Level:   LevelError,
		Context: "connection failed",
		Problem: fmt.Sprintf("Cannot open a session with %s.", endpoint),
		Detail:  err.Error(),
		Commands: []string{
			"Check the endpoint: uadiscover discover --endpoint opc.tcp://host:4840",
			"Work offline: uadiscover discover --snapshot plant.yaml",
		},
		NoColor: noColor,
	}
}

// ConfigError reports an invalid configuration
func ConfigError(err error, noColor bool) Message {
	return Message{
		Level:    LevelError,
		Context:  "configuration error",
		Problem:  err.Error(),
		Commands: []string{"View config: cat uadiscover.yaml", "Get help: uadiscover --help"},
		NoColor:  noColor,
	}
}

// Warning formats a warning without context header
func Warning(message string, noColor bool) Message {
	return Message{Level: LevelWarning, Problem: message, NoColor: noColor}
}
