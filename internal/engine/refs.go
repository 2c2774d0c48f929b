package engine

import (
	"context"

	"github.com/google/uuid"

	"strata/internal/models"
)

// TemplateRefs — входной список шаблонов операции: либо id, либо уже
// загруженные сущности. Порядок элементов — это порядок применения.
type TemplateRefs struct {
	ids      []uuid.UUID
	entities []models.Template
}

func RefsFromIDs(ids ...uuid.UUID) TemplateRefs {
	return TemplateRefs{ids: ids}
}

func RefsFromTemplates(tpls ...models.Template) TemplateRefs {
	return TemplateRefs{entities: tpls}
}

func (r TemplateRefs) Empty() bool {
	return len(r.ids) == 0 && len(r.entities) == 0
}

// resolve приводит ссылки к сущностям, сохраняя порядок.
// Отсутствующий id отдаёт ErrNotFound (из хранилища).
func (r TemplateRefs) resolve(ctx context.Context, store TemplateStore) ([]models.Template, error) {
	if len(r.entities) > 0 {
		return r.entities, nil
	}
	if len(r.ids) == 0 {
		return nil, nil
	}
	return store.ByIDs(ctx, r.ids)
}
