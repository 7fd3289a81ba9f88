package inventory

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
)

// EngineRecord is one appliance entry of the inventory. Username and
// Password hold ciphertext tokens once loaded.
type EngineRecord struct {
	// Hostname is the unique key used to select the engine.
	Hostname string `json:"hostname" validate:"required"`

	// Identifier is the ddp_identifier label.
	Identifier string `json:"ddp_identifier,omitempty"`

	// IPAddress is the address the client connects to.
	IPAddress string `json:"ip_address" validate:"required,ip|hostname_rfc1123"`

	// Username is the encrypted login name.
	Username string `json:"username" validate:"required"`

	// Password is the encrypted login secret.
	Password string `json:"password" validate:"required"`

	// UseHTTPS selects https for the REST API.
	UseHTTPS bool `json:"use_https"`

	// IsDefault marks the engine used when no selector is given.
	IsDefault bool `json:"default"`

	// IsEncrypted is true once Username and Password are tokens.
	IsEncrypted bool `json:"is_encrypted"`

	// Class is the top-level key the record was listed under.
	Class string `json:"-"`
}

// String identifies the record without credentials.
func (r EngineRecord) String() string {
	return fmt.Sprintf("%s (%s)", r.Hostname, r.IPAddress)
}

// Credentials decrypts the login name and seals the password into a
// credential. Only the session manager should call this.
func (r EngineRecord) Credentials(c *Cipher) (string, appliance.Credential, error) {
	if !r.IsEncrypted {
		return "", appliance.Credential{}, &ConfigError{Record: r.Hostname, Err: fmt.Errorf("credentials are not encrypted")}
	}
	user, err := c.DecryptString(r.Username)
	if err != nil {
		return "", appliance.Credential{}, &ConfigError{Record: r.Hostname, Err: fmt.Errorf("username: %w", err)}
	}
	secret, err := c.Decrypt(r.Password)
	if err != nil {
		return "", appliance.Credential{}, &ConfigError{Record: r.Hostname, Err: fmt.Errorf("password: %w", err)}
	}
	return user, appliance.NewPasswordCredential(secret), nil
}

// parseFlag accepts a JSON/YAML bool or the strings "true"/"false".
func parseFlag(field string, v any) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, fmt.Errorf("%s: %q is not a boolean", field, t)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%s: unsupported value %v", field, v)
	}
}

// parseString accepts a string or a missing field.
func parseString(field string, v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	default:
		return "", fmt.Errorf("%s: expected a string, got %T", field, v)
	}
}

// flagValue renders b in the same representation as the original value.
func flagValue(original any, b bool) any {
	if _, ok := original.(string); ok {
		return strconv.FormatBool(b)
	}
	return b
}
