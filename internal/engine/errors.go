package engine

import (
	"errors"
	"fmt"
)

// ErrNotFound возвращают хранилища, когда сущности нет; движок пробрасывает
// её наружу как есть (HTTP-слой мапит в 404).
var ErrNotFound = errors.New("not found")

// ValidationError — нарушение правила валидации, привязанное к полю.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// OrgMismatchError — связанная сущность принадлежит другой организации.
// Отдельный тип, чтобы HTTP-слой и вызывающие могли отличить конфликт
// мультиарендности от прочих ошибок валидации.
type OrgMismatchError struct {
	Field string
	Msg   string
}

func (e *OrgMismatchError) Error() string { return e.Msg }

// IsValidation — true для любых ошибок валидации, включая организационные.
func IsValidation(err error) bool {
	var ve *ValidationError
	var oe *OrgMismatchError
	return errors.As(err, &ve) || errors.As(err, &oe)
}
