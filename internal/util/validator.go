package util

import (
	"errors"
	"net/mail"
	"strings"
)

// ErrEmailInvalido cobre e-mail ausente ou malformado.
var ErrEmailInvalido = errors.New("e-mail inválido")

// ValidateEmail retorna ErrEmailInvalido para e-mails ausentes ou malformados.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmailInvalido
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrEmailInvalido
	}
	return nil
}
