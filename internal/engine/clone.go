package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"strata/internal/models"
)

// CloneName подбирает свободное имя клона: "{name} (Clone)", дальше
// "{name} (Clone 2)", "{name} (Clone 3)" и т.д. Проверка идёт по всему
// корпусу шаблонов. Между проверкой и записью имя никто не резервирует,
// при параллельных клонах выигрывает первый коммит.
func (e *Engine) CloneName(ctx context.Context, base string) (string, error) {
	name := base + " (Clone)"
	for idx := 2; ; idx++ {
		exists, err := e.templates.NameExists(ctx, name)
		if err != nil {
			return "", err
		}
		if !exists {
			return name, nil
		}
		name = fmt.Sprintf("%s (Clone %d)", base, idx)
	}
}

// CloneTemplate — глубокая копия шаблона со свежим id и подобранным
// именем. Default сбрасывается: клон не должен автоматически вешаться
// на новые конфиги. Факт создания попадает в аудит после записи.
func (e *Engine) CloneTemplate(ctx context.Context, id uuid.UUID, actor string) (*models.Template, error) {
	src, err := e.templates.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	name, err := e.CloneName(ctx, src.Name)
	if err != nil {
		return nil, err
	}

	clone := *src
	clone.ID = uuid.Nil // новый id назначит хранилище
	clone.Name = name
	clone.Default = false
	clone.Config = copyJSON(src.Config)
	clone.DefaultValues = copyJSONMap(src.DefaultValues)
	clone.Vpn = nil
	if src.OrgID != nil {
		v := *src.OrgID
		clone.OrgID = &v
	}
	if src.VpnID != nil {
		v := *src.VpnID
		clone.VpnID = &v
	}
	clone.CreatedAt = time.Time{}
	clone.UpdatedAt = time.Time{}

	if err := e.templates.Create(ctx, &clone); err != nil {
		return nil, err
	}
	e.audit.LogAddition(ctx, actor, "template "+clone.Name, clone.ID)
	return &clone, nil
}
