// Package notify разносит события движка шаблонов по подписчикам:
// внутренняя шина для кэшей/подписчиков процесса и внешние sink'и (NATS, лог).
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"strata/internal/models"
)

type Kind string

const (
	// ConfigContentChanged — содержимое конфига изменилось (локально или
	// через зависимый шаблон). Отправляется каждому задетому конфигу.
	ConfigContentChanged Kind = "config.content_changed"

	// ConfigStatusChanged — статус конфига сменился. При каскаде шаблона
	// отправляется только тем конфигам, у которых статус был не modified.
	ConfigStatusChanged Kind = "config.status_changed"
)

type Event struct {
	Kind     Kind                `json:"kind"`
	ConfigID uuid.UUID           `json:"config_id"`
	OrgID    *uuid.UUID          `json:"organization_id,omitempty"`
	Status   models.ConfigStatus `json:"status,omitempty"`

	// TemplateID — шаблон-источник каскада; nil для локальных изменений.
	TemplateID *uuid.UUID `json:"template_id,omitempty"`

	At time.Time `json:"at"`
}

// Sink принимает события синхронно: ошибка sink'а откатывает транзакцию,
// внутри которой событие было отправлено.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Discard — sink-заглушка.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }

// Multi рассылает событие по всем sink'ам по порядку, первая ошибка — наружу.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, ev Event) error {
	for _, s := range m {
		if err := s.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
