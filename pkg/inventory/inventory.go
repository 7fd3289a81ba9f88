// Package inventory loads the engine inventory: the list of appliances the
// toolkit may talk to, with their encrypted credentials.
//
// The file maps an appliance class to an array of records:
//
//	{
//	  "data": [
//	    {"hostname": "eng1", "ip_address": "10.0.0.5", "username": "admin",
//	     "password": "...", "use_https": true, "default": "true",
//	     "is_encrypted": false}
//	  ]
//	}
//
// Records found with is_encrypted=false are encrypted in place on load and
// the file is rewritten atomically. JSON and YAML files are supported; the
// format is chosen by extension.
package inventory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ddpfleet/ddpfleet/pkg/telemetry"
)

// Format is the encoding of an inventory file.
type Format string

const (
	// FormatJSON is the default encoding.
	FormatJSON Format = "json"

	// FormatYAML is selected by a .yaml or .yml extension.
	FormatYAML Format = "yaml"
)

// FormatFor returns the format implied by path.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ConfigError reports an unusable inventory.
type ConfigError struct {
	// Path is the inventory or key file involved.
	Path string

	// Record is the hostname of the offending record, if any.
	Record string

	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	switch {
	case e.Path != "" && e.Record != "":
		return fmt.Sprintf("inventory %s: engine %s: %v", e.Path, e.Record, e.Err)
	case e.Record != "":
		return fmt.Sprintf("inventory: engine %s: %v", e.Record, e.Err)
	case e.Path != "":
		return fmt.Sprintf("inventory %s: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("inventory: %v", e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Option configures Load.
type Option func(*loader)

// WithCipher sets the cipher used for migration. Defaults to DefaultCipher.
func WithCipher(c *Cipher) Option {
	return func(l *loader) {
		l.cipher = c
	}
}

// WithLogger sets the logger used for migration warnings.
func WithLogger(logger *telemetry.Logger) Option {
	return func(l *loader) {
		l.logger = logger
	}
}

type loader struct {
	cipher *Cipher
	logger *telemetry.Logger
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// document is the decoded file: class -> records, each record a generic map
// so that keys this package does not know about survive a rewrite.
type document map[string][]map[string]any

// Load reads, validates and, when needed, migrates the inventory at path.
func Load(path string, opts ...Option) (*Fleet, error) {
	l := &loader{cipher: DefaultCipher(), logger: telemetry.NewNopLogger()}
	for _, opt := range opts {
		opt(l)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	format := FormatFor(path)
	doc, err := decode(raw, format)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	fleet, migrated, err := l.build(path, doc)
	if err != nil {
		return nil, err
	}
	fleet.format = format

	if migrated > 0 {
		out, err := encode(doc, format)
		if err == nil {
			err = writeFileAtomic(path, out, info.Mode().Perm())
		}
		if err != nil {
			l.logger.Warnf("encrypted %d credential record(s) in memory but could not rewrite %s: %v", migrated, path, err)
		} else {
			l.logger.Infof("encrypted credentials of %d record(s) in %s", migrated, path)
			fleet.migrated = migrated
		}
	}
	return fleet, nil
}

func (l *loader) build(path string, doc document) (*Fleet, int, error) {
	classes := make([]string, 0, len(doc))
	for class := range doc {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	var records []EngineRecord
	seen := make(map[string]bool)
	migrated := 0
	defaults := 0

	for _, class := range classes {
		for i, entry := range doc[class] {
			rec, err := parseRecord(class, entry)
			if err != nil {
				return nil, 0, &ConfigError{Path: path, Err: fmt.Errorf("%s[%d]: %w", class, i, err)}
			}
			if err := validate.Struct(rec); err != nil {
				return nil, 0, &ConfigError{Path: path, Record: rec.Hostname, Err: err}
			}
			if seen[rec.Hostname] {
				return nil, 0, &ConfigError{Path: path, Record: rec.Hostname, Err: errors.New("duplicate hostname")}
			}

			if !rec.IsEncrypted {
				if err := l.encryptRecord(&rec, entry); err != nil {
					return nil, 0, &ConfigError{Path: path, Record: rec.Hostname, Err: err}
				}
				migrated++
			}
			if rec.IsDefault {
				defaults++
			}

			seen[rec.Hostname] = true
			records = append(records, rec)
		}
	}

	if defaults > 1 {
		return nil, 0, &ConfigError{Path: path, Err: fmt.Errorf("%d engines are marked default, at most one is allowed", defaults)}
	}
	fleet := NewFleet(records...)
	fleet.path = path
	return fleet, migrated, nil
}

func (l *loader) encryptRecord(rec *EngineRecord, entry map[string]any) error {
	user, err := l.cipher.EncryptString(rec.Username)
	if err != nil {
		return err
	}
	pass, err := l.cipher.EncryptString(rec.Password)
	if err != nil {
		return err
	}
	rec.Username, rec.Password, rec.IsEncrypted = user, pass, true
	entry["username"] = user
	entry["password"] = pass
	entry["is_encrypted"] = flagValue(entry["is_encrypted"], true)
	return nil
}

func parseRecord(class string, entry map[string]any) (EngineRecord, error) {
	rec := EngineRecord{Class: class}
	var err error
	if rec.Hostname, err = parseString("hostname", entry["hostname"]); err != nil {
		return rec, err
	}
	if rec.Identifier, err = parseString("ddp_identifier", entry["ddp_identifier"]); err != nil {
		return rec, err
	}
	if rec.IPAddress, err = parseString("ip_address", entry["ip_address"]); err != nil {
		return rec, err
	}
	if rec.Username, err = parseString("username", entry["username"]); err != nil {
		return rec, err
	}
	if rec.Password, err = parseString("password", entry["password"]); err != nil {
		return rec, err
	}
	if rec.UseHTTPS, err = parseFlag("use_https", entry["use_https"]); err != nil {
		return rec, err
	}
	if rec.IsDefault, err = parseFlag("default", entry["default"]); err != nil {
		return rec, err
	}
	if rec.IsEncrypted, err = parseFlag("is_encrypted", entry["is_encrypted"]); err != nil {
		return rec, err
	}
	return rec, nil
}

func decode(raw []byte, format Format) (document, error) {
	var top map[string]any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(raw, &top); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&top); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	}
	if len(top) == 0 {
		return nil, errors.New("no appliance classes defined")
	}

	doc := make(document, len(top))
	for class, value := range top {
		list, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected an array of engine records", class)
		}
		entries := make([]map[string]any, 0, len(list))
		for i, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: expected an object", class, i)
			}
			entries = append(entries, entry)
		}
		doc[class] = entries
	}
	return doc, nil
}

func encode(doc document, format Format) ([]byte, error) {
	if format == FormatYAML {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(map[string][]map[string]any(doc)); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	out, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// writeFileAtomic replaces path with data so that readers see either the old
// or the new content, never a partial file.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), perm); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
