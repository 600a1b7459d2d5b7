package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"

	"github.com/Dicklesworthstone/quorum/internal/consensus"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	answerStyle  = lipgloss.NewStyle().PaddingLeft(2)
	dividerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// RenderResult writes a human-readable report of a consensus session.
// Styling is dropped when w is not a terminal or NO_COLOR is set.
func RenderResult(w io.Writer, r *consensus.FinalResult) {
	color := useColor(w)
	width := terminalWidth(w)

	style := func(s lipgloss.Style, text string) string {
		if !color {
			return text
		}
		return s.Render(text)
	}

	fmt.Fprintln(w, style(headerStyle, "Consensus"))
	fmt.Fprintln(w, style(dividerStyle, strings.Repeat("─", min(width, 60))))

	if r.ConsensusReached() {
		fmt.Fprintf(w, "%s %s\n", renderLabel(style, "Status"), style(okStyle, "consensus reached"))
	} else if r.State == consensus.StateBudgetExceeded {
		fmt.Fprintf(w, "%s %s\n", renderLabel(style, "Status"), style(warnStyle, "budget exhausted"))
	} else if r.State == consensus.StateJudgeFailure {
		fmt.Fprintf(w, "%s %s\n", renderLabel(style, "Status"), style(warnStyle, "judge failed"))
	} else {
		fmt.Fprintf(w, "%s %s\n", renderLabel(style, "Status"), style(warnStyle, "no consensus"))
	}
	fmt.Fprintf(w, "%s %s\n", renderLabel(style, "Judge"), r.JudgeModel)
	fmt.Fprintf(w, "%s %s\n", renderLabel(style, "Models"), strings.Join(r.Models, ", "))
	fmt.Fprintf(w, "%s %d of %d\n", renderLabel(style, "Runs"), r.RunsUsed, r.RunLimit)
	if r.Agreement != nil && len(r.Agreement.PairwiseScores) > 0 {
		fmt.Fprintf(w, "%s %.0f%%\n", renderLabel(style, "Agreement"), r.Agreement.OverallScore*100)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, style(headerStyle, "Answer"))
	answer := r.Answer()
	if answer == "" {
		answer = "(no answer)"
	}
	wrapped := wordwrap.String(answer, max(width-4, 20))
	if color {
		fmt.Fprintln(w, answerStyle.Render(wrapped))
	} else {
		fmt.Fprintln(w, indent(wrapped, "  "))
	}

	if reasoning, ok := r.Verdict["reasoning"].(string); ok && reasoning != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, style(headerStyle, "Reasoning"))
		wrapped := wordwrap.String(reasoning, max(width-4, 20))
		if color {
			fmt.Fprintln(w, answerStyle.Render(wrapped))
		} else {
			fmt.Fprintln(w, indent(wrapped, "  "))
		}
	}

	renderExtraFields(w, r, style, width)
}

// renderExtraFields prints verdict fields outside the standard trio, so
// custom schemas stay visible in human output.
func renderExtraFields(w io.Writer, r *consensus.FinalResult, style func(lipgloss.Style, string) string, width int) {
	var extras []string
	for name := range r.Verdict {
		switch name {
		case "consensus_reached", "answer", "reasoning":
		default:
			extras = append(extras, name)
		}
	}
	if len(extras) == 0 {
		return
	}
	sort.Strings(extras)

	fmt.Fprintln(w)
	for _, name := range extras {
		value := fmt.Sprintf("%v", r.Verdict[name])
		line := fmt.Sprintf("%s %s", renderLabel(style, name), value)
		fmt.Fprintln(w, wordwrap.String(line, max(width, 20)))
	}
}

// renderLabel pads labels to a fixed display width so values line up,
// using display cells rather than bytes.
func renderLabel(style func(lipgloss.Style, string) string, label string) string {
	const labelWidth = 10
	padded := label + ":"
	if pad := labelWidth - runewidth.StringWidth(padded); pad > 0 {
		padded += strings.Repeat(" ", pad)
	}
	return style(labelStyle, padded)
}

func useColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd())) && os.Getenv("NO_COLOR") == ""
}

func terminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return 80
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}
