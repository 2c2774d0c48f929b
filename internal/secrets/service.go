// Package secrets — генерация ключей: key конфига (идентификатор для URL
// отчётов) и shared secret организации для регистрации устройств.
package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
)

// GenerateKey возвращает случайный 32-символьный hex-ключ.
func GenerateKey() string {
	var raw [16]byte
	_, _ = rand.Read(raw[:])
	return hex.EncodeToString(raw[:])
}

// допустимы любые непробельные символы кроме '/' и '.'
var keyRe = regexp.MustCompile(`^[^\s/\.]+$`)

// ValidKey проверяет ключ, пришедший извне (до 64 символов).
func ValidKey(s string) bool {
	return s != "" && len(s) <= 64 && keyRe.MatchString(s)
}
