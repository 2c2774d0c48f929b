package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"strata/internal/models"
)

type ConfigStore struct{ db *gorm.DB }

func NewConfigStore(db *gorm.DB) *ConfigStore { return &ConfigStore{db: db} }

func (s *ConfigStore) Get(ctx context.Context, id uuid.UUID) (*models.Config, error) {
	var c models.Config
	if err := conn(ctx, s.db).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err, "config %s", id)
	}
	return &c, nil
}

// ByKey — для отчётов о статусе, которые адресуют конфиг ключом.
func (s *ConfigStore) ByKey(ctx context.Context, key string) (*models.Config, error) {
	var c models.Config
	if err := conn(ctx, s.db).Where(&models.Config{Key: key}).First(&c).Error; err != nil {
		return nil, notFound(err, "config with key %s", key)
	}
	return &c, nil
}

func (s *ConfigStore) List(ctx context.Context, orgID *uuid.UUID) ([]models.Config, error) {
	q := conn(ctx, s.db)
	if orgID != nil {
		q = q.Where("org_id = ?", *orgID)
	}
	var cfgs []models.Config
	err := q.Order("name asc").Find(&cfgs).Error
	return cfgs, err
}

func (s *ConfigStore) Create(ctx context.Context, c *models.Config) error {
	return conn(ctx, s.db).Create(c).Error
}

func (s *ConfigStore) Save(ctx context.Context, c *models.Config) error {
	return conn(ctx, s.db).Save(c).Error
}

// Dependents — конфиги, на которые назначен шаблон.
func (s *ConfigStore) Dependents(ctx context.Context, templateID uuid.UUID) ([]models.Config, error) {
	var cfgs []models.Config
	err := conn(ctx, s.db).
		Joins("JOIN template_assignments ta ON ta.config_id = configs.id").
		Where("ta.template_id = ?", templateID).
		Order("configs.created_at asc").
		Find(&cfgs).Error
	return cfgs, err
}

func (s *ConfigStore) BulkSetStatus(ctx context.Context, ids []uuid.UUID, st models.ConfigStatus) error {
	if len(ids) == 0 {
		return nil
	}
	return conn(ctx, s.db).Model(&models.Config{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"status": st, "updated_at": time.Now().UTC()}).Error
}

// TemplatesOf — шаблоны конфига в порядке назначения.
func (s *ConfigStore) TemplatesOf(ctx context.Context, configID uuid.UUID) ([]models.Template, error) {
	var tpls []models.Template
	err := conn(ctx, s.db).
		Joins("JOIN template_assignments ta ON ta.template_id = templates.id").
		Where("ta.config_id = ?", configID).
		Order("ta.sort_order asc, ta.created_at asc").
		Find(&tpls).Error
	return tpls, err
}

// SetTemplates заменяет список назначений; sort_order — позиция в списке.
// Вызывается внутри InTx, так что замена атомарна.
func (s *ConfigStore) SetTemplates(ctx context.Context, configID uuid.UUID, templateIDs []uuid.UUID) error {
	db := conn(ctx, s.db)
	if err := db.Where("config_id = ?", configID).Delete(&models.TemplateAssignment{}).Error; err != nil {
		return err
	}
	if len(templateIDs) == 0 {
		return nil
	}
	rows := make([]models.TemplateAssignment, len(templateIDs))
	for i, tid := range templateIDs {
		rows[i] = models.TemplateAssignment{
			ConfigID:   configID,
			TemplateID: tid,
			SortOrder:  i,
		}
	}
	return db.Create(&rows).Error
}

// SaveRendered сохраняет артефакт последнего рендера.
func (s *ConfigStore) SaveRendered(ctx context.Context, id uuid.UUID, artifact []byte, checksum string) error {
	now := time.Now().UTC()
	return conn(ctx, s.db).Model(&models.Config{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"rendered_config":   artifact,
			"rendered_checksum": checksum,
			"rendered_at":       now,
		}).Error
}
