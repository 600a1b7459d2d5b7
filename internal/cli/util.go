package cli

import (
	"os"

	"github.com/mattn/go-isatty"
)

// isInteractive reports whether both stdin and stdout are terminals.
func isInteractive() bool {
	return (isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())) &&
		(isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()))
}
