package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Sprint color functions for building styled strings.
var (
	Bold        = color.New(color.Bold).SprintFunc()
	Dim         = color.New(color.Faint).SprintFunc()
	Cyan        = color.New(color.FgCyan).SprintFunc()
	Green       = color.New(color.FgGreen).SprintFunc()
	Red         = color.New(color.FgRed).SprintFunc()
	Yellow      = color.New(color.FgYellow).SprintFunc()
	Magenta     = color.New(color.FgMagenta).SprintFunc()
	BoldCyan    = color.New(color.Bold, color.FgCyan).SprintFunc()
	BoldGreen   = color.New(color.Bold, color.FgGreen).SprintFunc()
	BoldRed     = color.New(color.Bold, color.FgRed).SprintFunc()
	BoldYellow  = color.New(color.Bold, color.FgYellow).SprintFunc()
	BoldMagenta = color.New(color.Bold, color.FgMagenta).SprintFunc()
	BoldWhite   = color.New(color.Bold, color.FgWhite).SprintFunc()
)

// PrintLogo renders the colored slackline logo to stderr.
func PrintLogo() {
	w := os.Stderr
	frame := color.New(color.FgCyan)
	anchors := color.New(color.FgYellow)
	line := color.New(color.FgCyan, color.Faint)
	sep := color.New(color.FgCyan)
	brand := color.New(color.Bold, color.FgMagenta)
	tag := color.New(color.Faint)

	fmt.Fprintln(w)
	frame.Fprintln(w, "   +-----------------------------+")
	anchors.Fprintln(w, "   |  #                       #  |")
	line.Fprintln(w, "   |  #~~~~~~~~~~o~~~~~~~~~~~~#  |")
	sep.Fprintln(w, "   |=============================|")
	brand.Fprintln(w, "   |  S  L  A  C  K  L  I  N  E  |")
	sep.Fprintln(w, "   |=============================|")
	line.Fprintln(w, "   |  #~~~~~~~~~~~~o~~~~~~~~~~#  |")
	anchors.Fprintln(w, "   |  #                       #  |")
	frame.Fprintln(w, "   +-----------------------------+")
	tag.Fprintf(w, "   %s Critical-path scheduling\n", Dim("🪢"))
	fmt.Fprintln(w)
}

// taskColors is a palette of distinct bold colors for differentiating tasks.
var taskColors = []func(a ...interface{}) string{
	BoldMagenta,
	BoldCyan,
	BoldYellow,
	BoldGreen,
	color.New(color.Bold, color.FgHiBlue).SprintFunc(),
	color.New(color.Bold, color.FgHiRed).SprintFunc(),
}

// taskColorIndex hashes a task ID to a palette index.
func taskColorIndex(taskID string) int {
	var h uint32
	for _, c := range taskID {
		h = h*31 + uint32(c)
	}
	return int(h % uint32(len(taskColors)))
}

// TaskPrefix returns a colored [task-id] prefix string.
// Each task ID gets a distinct color from the palette.
func TaskPrefix(taskID string) string {
	c := taskColors[taskColorIndex(taskID)]
	return Dim("[") + c(taskID) + Dim("]")
}

// StatusIcon returns a colored status icon for compact table display.
func StatusIcon(status string) string {
	switch status {
	case "done":
		return Green("✓")
	case "in_progress":
		return Cyan("●")
	case "in_review":
		return Magenta("◐")
	case "blocked":
		return Red("✗")
	case "cancelled":
		return Dim("⊘")
	default:
		return Dim("◌")
	}
}

// SeverityBadge returns a colored conflict severity string.
func SeverityBadge(severity string) string {
	switch severity {
	case "blocking":
		return BoldRed("blocking")
	case "warning":
		return Yellow("warning")
	default:
		return Dim(severity)
	}
}

// RiskBadge returns a colored milestone risk string.
func RiskBadge(risk string) string {
	switch risk {
	case "on_track":
		return Green("on track")
	case "at_risk":
		return BoldYellow("at risk")
	case "overdue":
		return BoldRed("overdue")
	default:
		return Dim(risk)
	}
}
