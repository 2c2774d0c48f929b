package engine

import (
	"context"

	"github.com/google/uuid"

	"strata/internal/models"
)

// MergeContext собирает контекст переменных конфига: default_values
// шаблонов в порядке их назначения (поздний шаблон перекрывает ранний),
// поверх — локальные переменные самого конфига.
func MergeContext(tpls []models.Template, cfg *models.Config) map[string]any {
	out := map[string]any{}
	for _, t := range tpls {
		for k, v := range t.DefaultValues {
			out[k] = v
		}
	}
	if cfg != nil {
		for k, v := range cfg.Context {
			out[k] = v
		}
	}
	return out
}

// ContextFor — то же самое для сохранённого конфига: шаблоны берутся
// из хранилища в порядке назначения.
func (e *Engine) ContextFor(ctx context.Context, configID uuid.UUID) (map[string]any, error) {
	cfg, err := e.configs.Get(ctx, configID)
	if err != nil {
		return nil, err
	}
	tpls, err := e.configs.TemplatesOf(ctx, configID)
	if err != nil {
		return nil, err
	}
	return MergeContext(tpls, cfg), nil
}
