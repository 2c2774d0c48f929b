package engine

import (
	"context"

	"github.com/google/uuid"

	"strata/internal/models"
)

// CreateTemplate — валидация (с нормализацией и авто-провижинингом) и запись.
// Каскада при создании нет: у нового шаблона не бывает зависимых конфигов.
func (e *Engine) CreateTemplate(ctx context.Context, t *models.Template, actor string) error {
	if err := e.ValidateTemplate(ctx, t); err != nil {
		return err
	}
	if err := e.templates.Create(ctx, t); err != nil {
		return err
	}
	e.audit.LogAddition(ctx, actor, "template "+t.Name, t.ID)
	return nil
}

// UpdateTemplate сохраняет шаблон и, если изменение затрагивает рендер,
// каскадом инвалидирует зависимые конфиги. Запись и каскад — одна
// транзакция.
func (e *Engine) UpdateTemplate(ctx context.Context, t *models.Template) error {
	if err := e.ValidateTemplate(ctx, t); err != nil {
		return err
	}
	return e.tx.InTx(ctx, func(ctx context.Context) error {
		prev, err := e.templates.Get(ctx, t.ID)
		if err != nil {
			return err
		}
		if err := e.templates.Save(ctx, t); err != nil {
			return err
		}
		if !renderAffecting(t, prev) {
			return nil
		}
		return e.cascadeTemplateChange(ctx, t.ID)
	})
}

// DeleteTemplate отказывает, пока шаблон назначен хотя бы одному конфигу:
// молчаливое исчезновение шаблона меняло бы рендер без каскада.
func (e *Engine) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	deps, err := e.configs.Dependents(ctx, id)
	if err != nil {
		return err
	}
	if len(deps) > 0 {
		return invalid("template", "template is assigned to %d configuration(s) and cannot be deleted", len(deps))
	}
	return e.templates.Delete(ctx, id)
}
