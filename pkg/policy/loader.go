package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ddpfleet/ddpfleet/pkg/telemetry"
)

// BuiltinPrefix selects a builtin policy instead of a path, e.g.
// "builtin:no-fleet-wide-deletes".
const BuiltinPrefix = "builtin:"

// Loader reads guard policies from files, directories and builtins.
type Loader struct {
	logger *telemetry.Logger
}

// NewLoader creates a new policy loader.
func NewLoader(logger *telemetry.Logger) *Loader {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &Loader{logger: logger.NewComponentLogger("policy-loader")}
}

// Load loads policies from a list of builtin names, file or directory paths.
func (l *Loader) Load(sources []string) ([]Policy, error) {
	var all []Policy

	for _, src := range sources {
		if name, ok := strings.CutPrefix(src, BuiltinPrefix); ok {
			p, err := Builtin(name)
			if err != nil {
				return nil, err
			}
			all = append(all, p)
			continue
		}
		policies, err := l.loadFromPath(src)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", src, err)
		}
		all = append(all, policies...)
	}

	l.logger.Debugf("%d policies loaded from %d sources", len(all), len(sources))
	return all, nil
}

// loadFromPath loads policies from a single path (file or directory).
func (l *Loader) loadFromPath(path string) ([]Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	if info.IsDir() {
		return l.loadFromDirectory(path)
	}

	policy, err := l.loadFromFile(path)
	if err != nil {
		return nil, err
	}
	return []Policy{*policy}, nil
}

// loadFromDirectory loads every .rego and .json file of a directory tree
// in lexical order.
func (l *Loader) loadFromDirectory(dirPath string) ([]Policy, error) {
	var files []string
	err := filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".rego") || strings.HasSuffix(path, ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	sort.Strings(files)

	policies := make([]Policy, 0, len(files))
	for _, path := range files {
		policy, err := l.loadFromFile(path)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *policy)
	}
	return policies, nil
}

// loadFromFile loads a policy from a single file.
func (l *Loader) loadFromFile(filePath string) (*Policy, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var policy *Policy
	switch {
	case strings.HasSuffix(filePath, ".rego"):
		policy = parseRegoFile(filePath, data)
	case strings.HasSuffix(filePath, ".json"):
		policy, err = parseJSONFile(filePath, data)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filePath)
	}

	l.logger.WithField("path", filePath).WithField("policy", policy.Name).Debug("policy loaded from file")
	return policy, nil
}

// parseRegoFile parses a .rego file into a Policy. The leading comment block
// is the description; a "# severity: warning" line overrides the default.
func parseRegoFile(filePath string, data []byte) *Policy {
	name := strings.TrimSuffix(filepath.Base(filePath), ".rego")
	description, severity := extractHeader(string(data))

	return &Policy{
		Name:        name,
		Description: description,
		Rego:        string(data),
		Severity:    severity,
		Source:      filePath,
	}
}

// parseJSONFile parses a JSON policy definition.
func parseJSONFile(filePath string, data []byte) (*Policy, error) {
	var policy Policy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse JSON policy %s: %w", filePath, err)
	}
	if policy.Name == "" {
		policy.Name = strings.TrimSuffix(filepath.Base(filePath), ".json")
	}
	if policy.Rego == "" {
		return nil, &ValidationError{Field: "rego", Message: "is empty", Value: policy.Name}
	}
	if policy.Severity == "" {
		policy.Severity = SeverityError
	}
	policy.Source = filePath
	return &policy, nil
}

// extractHeader reads the description and severity from the leading
// comments of a Rego module.
func extractHeader(content string) (string, Severity) {
	var description strings.Builder
	severity := SeverityError

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			if trimmed != "" {
				break
			}
			continue
		}
		comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
		if value, ok := strings.CutPrefix(comment, "severity:"); ok {
			severity = Severity(strings.TrimSpace(value))
			continue
		}
		if comment == "" {
			continue
		}
		if description.Len() > 0 {
			description.WriteString(" ")
		}
		description.WriteString(comment)
	}

	return description.String(), severity
}
