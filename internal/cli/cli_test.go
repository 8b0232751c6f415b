package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestMatchPrefix(t *testing.T) {
	names := []string{"amina", "Amos", "john"}

	tests := []struct {
		prefix string
		want   int
	}{
		{"", 3},
		{"am", 2},
		{"AM", 2},
		{"jo", 1},
		{"z", 0},
	}
	for _, tt := range tests {
		if got := MatchPrefix(names, tt.prefix); len(got) != tt.want {
			t.Errorf("MatchPrefix(%q) = %v, want %d matches", tt.prefix, got, tt.want)
		}
	}
}

// TestUsernameCompletion tests that only the first argument is completed
func TestUsernameCompletion(t *testing.T) {
	calls := 0
	complete := UsernameCompletion(func() ([]string, error) {
		calls++
		return []string{"amina", "john"}, nil
	})

	got, dir := complete(&cobra.Command{}, nil, "jo")
	if len(got) != 1 || got[0] != "john" || dir != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("first arg completion = %v, %v", got, dir)
	}

	got, _ = complete(&cobra.Command{}, []string{"john"}, "")
	if got != nil {
		t.Errorf("second arg should not complete, got %v", got)
	}
	if calls != 1 {
		t.Errorf("names called %d times, want 1", calls)
	}

	failing := UsernameCompletion(func() ([]string, error) { return nil, errors.New("no db") })
	if _, dir := failing(&cobra.Command{}, nil, ""); dir != cobra.ShellCompDirectiveError {
		t.Errorf("lookup error should yield the error directive, got %v", dir)
	}
}

func TestBoxWidth(t *testing.T) {
	for _, tt := range []struct{ in, want int }{{10, 40}, {80, 78}, {300, 100}} {
		if got := BoxWidth(tt.in); got != tt.want {
			t.Errorf("BoxWidth(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestWriteBox(t *testing.T) {
	var buf bytes.Buffer
	WriteBox(&buf, "Sync Status", []string{"Connection: Online"}, 40)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "┌─ Sync Status ") || !strings.HasSuffix(lines[0], "┐") {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "  Connection: Online" {
		t.Errorf("body = %q", lines[1])
	}
	if lines[2] != "└"+strings.Repeat("─", 40)+"┘" {
		t.Errorf("footer = %q", lines[2])
	}
}
