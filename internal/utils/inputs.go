package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// PromptYesNo asks a yes/no question on stdin/stdout
func PromptYesNo(question string) bool {
	return AskYesNo(os.Stdin, os.Stdout, question)
}

// AskYesNo asks question on w until r yields y or n.
// End of input counts as no.
func AskYesNo(r io.Reader, w io.Writer, question string) bool {
	reader := bufio.NewReader(r)
	for {
		fmt.Fprintf(w, "%s (y/n): ", question)
		response, err := reader.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(response)) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		if err != nil {
			return false
		}
		fmt.Fprintln(w, "Please enter y or n")
	}
}
