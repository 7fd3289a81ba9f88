package policy

import (
	"os"
	"path/filepath"
	"testing"
)

const reportingRego = `# Keep deletes off the reporting engines.
# severity: critical
package ddp.guard.reporting

deny contains msg if {
	input.destructive
	input.engine.class == "reporting"
	msg := "reporting engines are read only"
}
`

func writePolicyFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}
	return path
}

func TestLoadRegoFile(t *testing.T) {
	path := writePolicyFile(t, t.TempDir(), "reporting.rego", reportingRego)

	policies, err := NewLoader(nil).Load([]string{path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("got %d policies, want 1", len(policies))
	}

	p := policies[0]
	if p.Name != "reporting" {
		t.Errorf("Name = %q, want reporting", p.Name)
	}
	if p.Severity != SeverityCritical {
		t.Errorf("Severity = %q, want critical", p.Severity)
	}
	if p.Description != "Keep deletes off the reporting engines." {
		t.Errorf("Description = %q", p.Description)
	}
	if p.Source != path {
		t.Errorf("Source = %q, want %q", p.Source, path)
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "b/reporting.rego", reportingRego)
	writePolicyFile(t, dir, "a/named.json", `{
  "name": "json-guard",
  "severity": "warning",
  "rego": "package ddp.guard.json\n\ndeny contains \"json\" if { input.destructive }\n"
}`)
	writePolicyFile(t, dir, "README.md", "not a policy")

	policies, err := NewLoader(nil).Load([]string{dir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("got %d policies, want 2", len(policies))
	}
	if policies[0].Name != "json-guard" || policies[0].Severity != SeverityWarning {
		t.Errorf("first policy = %+v", policies[0])
	}
	if policies[1].Name != "reporting" {
		t.Errorf("second policy = %+v", policies[1])
	}
}

func TestLoadBuiltinAndFile(t *testing.T) {
	path := writePolicyFile(t, t.TempDir(), "reporting.rego", reportingRego)

	policies, err := NewLoader(nil).Load([]string{"builtin:no-fleet-wide-deletes", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(policies) != 2 || policies[0].Source != "builtin:no-fleet-wide-deletes" {
		t.Errorf("policies = %+v", policies)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	emptyJSON := writePolicyFile(t, dir, "empty.json", `{"name": "empty"}`)
	badJSON := writePolicyFile(t, dir, "bad.json", `{`)

	tests := []struct {
		name   string
		source string
	}{
		{name: "missing path", source: filepath.Join(dir, "missing.rego")},
		{name: "unknown builtin", source: "builtin:nope"},
		{name: "json without rego", source: emptyJSON},
		{name: "malformed json", source: badJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLoader(nil).Load([]string{tt.source}); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
