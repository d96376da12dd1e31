package types

import "strings"

// Redacted replaces sensitive literals in anything that leaves the process
const Redacted = "********"

// Redact replaces every occurrence of each non-empty secret in s
func Redact(s string, secrets []string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, Redacted)
	}
	return s
}

// redactedError keeps the wrapped chain for errors.Is/As while hiding secrets
// from Error()
type redactedError struct {
	err     error
	secrets []string
}

func (e *redactedError) Error() string {
	return Redact(e.err.Error(), e.secrets)
}

func (e *redactedError) Unwrap() error {
	return e.err
}

// RedactError wraps err so that its message never contains a secret
func RedactError(err error, secrets []string) error {
	if err == nil || len(secrets) == 0 {
		return err
	}
	return &redactedError{err: err, secrets: secrets}
}
