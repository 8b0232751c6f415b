package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// GetTerminalWidth returns the current terminal width, defaulting to 80 if unable to detect
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		// Default to 80 if we can't detect terminal size
		return 80
	}
	return width
}

// BoxWidth clamps a terminal width to the width used for bordered output
func BoxWidth(termWidth int) int {
	borderWidth := termWidth - 2
	if borderWidth < 40 {
		borderWidth = 40 // Minimum width
	}
	if borderWidth > 100 {
		borderWidth = 100 // Maximum width for readability
	}
	return borderWidth
}

// WriteBox writes lines inside a titled border of the given inner width
func WriteBox(w io.Writer, title string, lines []string, width int) {
	headerText := "─ " + title + " "
	headerPadding := width - utf8.RuneCountInString(headerText)
	if headerPadding < 0 {
		headerPadding = 0
	}
	fmt.Fprintf(w, "┌%s%s┐\n", headerText, strings.Repeat("─", headerPadding))
	for _, line := range lines {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintf(w, "└%s┘\n", strings.Repeat("─", width))
}
