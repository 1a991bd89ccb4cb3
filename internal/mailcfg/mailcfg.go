// Package mailcfg holds the SMTP password used for MailAuth delivery in a
// memguard enclave, so the decrypted secret never sits in a plain Go string
// that the GC (or a core dump) could retain (grounded on the teacher's
// config/secrets.go Secret type).
package mailcfg

import (
	"fmt"

	"github.com/awnumar/memguard"
)

// Secret wraps one secret value in a locked, encrypted memory enclave.
type Secret struct {
	enclave *memguard.Enclave
}

// NewSecret copies password into a fresh enclave. The caller's byte slice
// should be discarded (or wiped) after this call; NewSecret takes no
// ownership of it beyond the copy memguard makes internally.
func NewSecret(password []byte) *Secret {
	return &Secret{enclave: memguard.NewEnclave(password)}
}

// Get decrypts the enclave and returns the password as a string. Callers
// should avoid retaining the result any longer than needed for one SMTP
// handshake.
func (s *Secret) Get() (string, error) {
	if s == nil || s.enclave == nil {
		return "", nil
	}
	buf, err := s.enclave.Open()
	if err != nil {
		return "", fmt.Errorf("opening SMTP password enclave: %w", err)
	}
	defer buf.Destroy()
	return buf.String(), nil
}
