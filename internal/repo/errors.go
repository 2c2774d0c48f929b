package repo

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"strata/internal/engine"
)

// notFound переводит gorm.ErrRecordNotFound в доменную engine.ErrNotFound,
// сохраняя контекст ("template 1b2c…: not found").
func notFound(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", msg, engine.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
