package telegram

import (
	"crypto/subtle"
	"errors"
)

const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

var (
	ErrMissingSecretToken = errors.New("missing telegram secret token")
	ErrInvalidSecretToken = errors.New("invalid telegram secret token")
)

// VerifySecretToken checks the header Telegram echoes back on every webhook
// call. An empty expected secret disables the check.
func VerifySecretToken(expected, got string) error {
	if expected == "" {
		return nil
	}
	if got == "" {
		return ErrMissingSecretToken
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		return ErrInvalidSecretToken
	}
	return nil
}
