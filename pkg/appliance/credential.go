package appliance

import (
	"encoding/json"
	"fmt"

	"github.com/awnumar/memguard"
)

// CredentialKind distinguishes secret-bearing credentials from key based ones.
type CredentialKind string

const (
	// CredentialPassword carries an opaque secret.
	CredentialPassword CredentialKind = "password"

	// CredentialSystemKey authenticates with the appliance's system key and has no secret.
	CredentialSystemKey CredentialKind = "system_key"
)

// Credential is a login or host credential. Password secrets live in a
// memguard enclave and are only unsealed while a request body is encoded.
// Formatting a Credential never prints the secret.
type Credential struct {
	kind   CredentialKind
	secret *memguard.Enclave
}

// NewPasswordCredential seals secret into an enclave. The input slice is wiped.
func NewPasswordCredential(secret []byte) Credential {
	return Credential{kind: CredentialPassword, secret: memguard.NewEnclave(secret)}
}

// SystemKeyCredential returns the key based credential.
func SystemKeyCredential() Credential {
	return Credential{kind: CredentialSystemKey}
}

// Kind returns the credential kind.
func (c Credential) Kind() CredentialKind {
	return c.kind
}

// IsZero reports whether the credential was never set.
func (c Credential) IsZero() bool {
	return c.kind == ""
}

// Reveal calls fn with the plaintext secret. The buffer is destroyed when fn
// returns and must not be retained.
func (c Credential) Reveal(fn func(secret []byte) error) error {
	if c.kind != CredentialPassword {
		return fmt.Errorf("credential of kind %q carries no secret", c.kind)
	}
	if c.secret == nil {
		return fn(nil)
	}
	buf, err := c.secret.Open()
	if err != nil {
		return fmt.Errorf("failed to unseal credential: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// String redacts the secret.
func (c Credential) String() string {
	if c.kind == "" {
		return "Credential(none)"
	}
	return fmt.Sprintf("Credential(%s, redacted)", c.kind)
}

// GoString redacts the secret for %#v.
func (c Credential) GoString() string {
	return c.String()
}

// MarshalJSON encodes the wire shape used in credential-carrying request bodies.
func (c Credential) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case CredentialSystemKey:
		return json.Marshal(map[string]string{"type": "SystemKeyCredential"})
	case CredentialPassword:
		var out []byte
		err := c.Reveal(func(secret []byte) error {
			var encErr error
			out, encErr = json.Marshal(map[string]string{
				"type":     "PasswordCredential",
				"password": string(secret),
			})
			return encErr
		})
		return out, err
	default:
		return []byte("null"), nil
	}
}
