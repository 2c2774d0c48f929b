package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"strata/internal/logs"
	"strata/internal/models"
	"strata/internal/notify"
)

// renderAffecting — изменение шаблона, которое меняет итоговый рендер
// зависимых конфигов. Имя, default_values и флаги сюда не входят.
func renderAffecting(cur, prev *models.Template) bool {
	return cur.Backend != prev.Backend || !jsonEqual(prev.Config, cur.Config)
}

// OnTemplateSave — каскад после сохранения шаблона. prev == nil означает
// первое сохранение: зависимых конфигов ещё нет, каскада нет. Снимок
// статусов, массовый перевод в modified и рассылка событий выполняются
// одной транзакцией; ошибка любого шага откатывает всё.
func (e *Engine) OnTemplateSave(ctx context.Context, cur, prev *models.Template) error {
	if cur == nil || prev == nil {
		return nil
	}
	if !renderAffecting(cur, prev) {
		return nil
	}
	return e.tx.InTx(ctx, func(ctx context.Context) error {
		return e.cascadeTemplateChange(ctx, cur.ID)
	})
}

func (e *Engine) cascadeTemplateChange(ctx context.Context, templateID uuid.UUID) error {
	deps, err := e.configs.Dependents(ctx, templateID)
	if err != nil {
		return err
	}
	if len(deps) == 0 {
		return nil
	}

	// снимок ДО массового апдейта: кому реально сменится статус
	changing := map[uuid.UUID]bool{}
	ids := make([]uuid.UUID, 0, len(deps))
	for _, c := range deps {
		ids = append(ids, c.ID)
		if c.Status != models.StatusModified {
			changing[c.ID] = true
		}
	}

	if err := e.configs.BulkSetStatus(ctx, ids, models.StatusModified); err != nil {
		return err
	}

	now := time.Now().UTC()
	tid := templateID
	for _, c := range deps {
		ev := notify.Event{
			Kind:       notify.ConfigContentChanged,
			ConfigID:   c.ID,
			OrgID:      c.OrgID,
			TemplateID: &tid,
			At:         now,
		}
		if err := e.events.Publish(ctx, ev); err != nil {
			return err
		}
		if !changing[c.ID] {
			continue
		}
		ev.Kind = notify.ConfigStatusChanged
		ev.Status = models.StatusModified
		if err := e.events.Publish(ctx, ev); err != nil {
			return err
		}
	}

	logs.Logger.WithFields(logrus.Fields{
		"template_id": templateID,
		"configs":     len(ids),
		"transitions": len(changing),
	}).Info("template change invalidated dependent configs")
	return nil
}
