package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/mattn/go-isatty"
)

// commandNotFound is printed for unknown top-level commands.
const commandNotFound = "Command not found... but you can create it!"

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// styled renders s with style when w is a terminal and returns it unchanged
// otherwise.
func styled(w io.Writer, style lipgloss.Style, s string) string {
	f, ok := w.(*os.File)
	if !ok || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return s
	}
	return style.Render(s)
}

// PrintError writes err to w in the error color.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, styled(w, errorStyle, err.Error()))
}

func (a *app) printError(err error) {
	PrintError(a.stderr, err)
}

func (a *app) printWarning(msg string) {
	fmt.Fprintln(a.stdout, styled(a.stdout, warningStyle, msg))
}

func (a *app) printSuccess(msg string) {
	fmt.Fprintln(a.stdout, styled(a.stdout, successStyle, msg))
}
