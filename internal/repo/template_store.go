package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"strata/internal/engine"
	"strata/internal/models"
)

type TemplateStore struct{ db *gorm.DB }

func NewTemplateStore(db *gorm.DB) *TemplateStore { return &TemplateStore{db: db} }

func (s *TemplateStore) Get(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	var t models.Template
	if err := conn(ctx, s.db).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, notFound(err, "template %s", id)
	}
	return &t, nil
}

// ByIDs сохраняет порядок переданных id; отсутствующий id — ErrNotFound.
func (s *TemplateStore) ByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Template, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Template
	if err := conn(ctx, s.db).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Template, len(rows))
	for _, t := range rows {
		byID[t.ID] = t
	}
	out := make([]models.Template, 0, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("template %s: %w", id, engine.ErrNotFound)
		}
		out = append(out, t)
	}
	return out, nil
}

// NameExists — по всему корпусу, без учёта организации (так подбираются
// имена клонов).
func (s *TemplateStore) NameExists(ctx context.Context, name string) (bool, error) {
	var n int64
	err := conn(ctx, s.db).Model(&models.Template{}).Where("name = ?", name).Count(&n).Error
	return n > 0, err
}

// DefaultsFor — default-шаблоны, видимые организации (её и общие),
// совместимые по backend'у.
func (s *TemplateStore) DefaultsFor(ctx context.Context, orgID *uuid.UUID, backend string) ([]models.Template, error) {
	q := conn(ctx, s.db).
		Where(&models.Template{Default: true}).
		Where("backend = ?", backend)
	if orgID != nil {
		q = q.Where("org_id IS NULL OR org_id = ?", *orgID)
	} else {
		q = q.Where("org_id IS NULL")
	}
	var tpls []models.Template
	err := q.Order("created_at asc").Find(&tpls).Error
	return tpls, err
}

func (s *TemplateStore) List(ctx context.Context, orgID *uuid.UUID) ([]models.Template, error) {
	q := conn(ctx, s.db)
	if orgID != nil {
		q = q.Where("org_id IS NULL OR org_id = ?", *orgID)
	}
	var tpls []models.Template
	err := q.Order("name asc").Find(&tpls).Error
	return tpls, err
}

func (s *TemplateStore) Create(ctx context.Context, t *models.Template) error {
	return conn(ctx, s.db).Create(t).Error
}

func (s *TemplateStore) Save(ctx context.Context, t *models.Template) error {
	return conn(ctx, s.db).Save(t).Error
}

func (s *TemplateStore) Delete(ctx context.Context, id uuid.UUID) error {
	res := conn(ctx, s.db).Where("id = ?", id).Delete(&models.Template{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("template %s: %w", id, engine.ErrNotFound)
	}
	return nil
}
