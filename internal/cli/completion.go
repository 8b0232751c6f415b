package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// UsernameCompletion completes the first argument with known usernames.
// names is only called when completion runs; an error yields no suggestions.
func UsernameCompletion(names func() ([]string, error)) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		// Later arguments are free text (message body, ids)
		if len(args) >= 1 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		all, err := names()
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		return MatchPrefix(all, toComplete), cobra.ShellCompDirectiveNoFileComp
	}
}

// MatchPrefix returns the candidates starting with prefix, ignoring case
func MatchPrefix(candidates []string, prefix string) []string {
	var out []string
	for _, c := range candidates {
		if strings.HasPrefix(strings.ToLower(c), strings.ToLower(prefix)) {
			out = append(out, c)
		}
	}
	return out
}
