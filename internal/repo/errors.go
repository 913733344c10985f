package repo

import "errors"

var (
	// ErrNotFound é retornado quando nenhum registro é encontrado.
	ErrNotFound = errors.New("registro não encontrado")
	// ErrDuplicado é retornado em violações de unicidade (e-mail já cadastrado).
	ErrDuplicado = errors.New("registro duplicado")
)
