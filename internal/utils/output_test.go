package utils

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type tableSummary struct {
	Table      string `json:"table" yaml:"table"`
	Uploaded   int    `json:"uploaded" yaml:"uploaded"`
	Downloaded int    `json:"downloaded" yaml:"downloaded"`
}

func TestWriteFormatted_JSON(t *testing.T) {
	var buf bytes.Buffer
	in := []tableSummary{{Table: "patients", Uploaded: 1}, {Table: "reports", Downloaded: 2}}

	if err := WriteFormatted(&buf, FormatJSON, in); err != nil {
		t.Fatalf("WriteFormatted failed: %v", err)
	}
	var got []tableSummary
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if len(got) != 2 || got[1].Downloaded != 2 {
		t.Errorf("round trip = %+v", got)
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Error("JSON output should end with a newline")
	}
}

func TestWriteFormatted_YAML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFormatted(&buf, FormatYAML, tableSummary{Table: "chat", Uploaded: 3}); err != nil {
		t.Fatalf("WriteFormatted failed: %v", err)
	}
	var got tableSummary
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
	if got.Table != "chat" || got.Uploaded != 3 {
		t.Errorf("got %+v", got)
	}
}

func TestWriteFormatted_Errors(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFormatted(&buf, FormatText, 1); err == nil {
		t.Error("text format should be rejected")
	}

	type withFunc struct{ Fn func() }
	err := WriteFormatted(&buf, FormatJSON, withFunc{Fn: func() {}})
	if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
		t.Errorf("expected JSON marshal error, got %v", err)
	}
	if _, err := MarshalYAML(withFunc{Fn: func() {}}); err == nil {
		t.Error("expected YAML marshal error")
	}
}

func TestValidFormat(t *testing.T) {
	for _, f := range []string{"text", "json", "yaml"} {
		if !ValidFormat(f) {
			t.Errorf("ValidFormat(%q) = false", f)
		}
	}
	if ValidFormat("xml") {
		t.Error("ValidFormat(xml) = true")
	}
}
