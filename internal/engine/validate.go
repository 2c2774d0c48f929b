package engine

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"strata/internal/models"
	"strata/internal/render"
)

// CheckOrgRelation проверяет мультиарендную связь: связанная сущность
// должна быть общей (org == nil) или принадлежать организации владельца.
// Общий владелец (entityOrg == nil) не может ссылаться на организационную
// сущность — она стала бы видна чужим организациям.
func CheckOrgRelation(field string, entityOrg, relatedOrg *uuid.UUID) error {
	if relatedOrg == nil {
		return nil
	}
	if entityOrg != nil && *entityOrg == *relatedOrg {
		return nil
	}
	return &OrgMismatchError{
		Field: field,
		Msg:   "please select another " + field + ": it belongs to a different organization",
	}
}

// ValidateDefaultValues нормализует default_values: null превращается в
// пустой объект, всё, что не JSON-объект, отклоняется.
func ValidateDefaultValues(v any) (map[string]any, error) {
	switch m := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		if m == nil {
			return map[string]any{}, nil
		}
		return m, nil
	case json.RawMessage:
		return defaultValuesFromJSON(m)
	case []byte:
		return defaultValuesFromJSON(m)
	default:
		return nil, invalid("default_values", "the supplied value is not a JSON object")
	}
}

func defaultValuesFromJSON(raw []byte) (map[string]any, error) {
	if emptyBody(raw) {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, invalid("default_values", "the supplied value is not a JSON object")
	}
	return m, nil
}

// ValidateTemplateSet резолвит входной список шаблонов и проверяет его
// против конфига: организации, совпадение backend'а, дубликаты.
// Возвращает шаблоны в порядке применения.
func (e *Engine) ValidateTemplateSet(ctx context.Context, cfg *models.Config, refs TemplateRefs) ([]models.Template, error) {
	tpls, err := refs.resolve(ctx, e.templates)
	if err != nil {
		return nil, err
	}

	seen := map[uuid.UUID]bool{}
	var foreign []string
	for i := range tpls {
		t := &tpls[i]
		if seen[t.ID] {
			return nil, invalid("templates", "template %q is listed more than once", t.Name)
		}
		seen[t.ID] = true

		if err := CheckOrgRelation("template", cfg.OrgID, t.OrgID); err != nil {
			foreign = append(foreign, t.Name)
			continue
		}
		if t.Backend != cfg.Backend {
			return nil, invalid("templates",
				"template %q requires backend %s, configuration uses %s", t.Name, t.Backend, cfg.Backend)
		}
	}
	if len(foreign) > 0 {
		return nil, &OrgMismatchError{
			Field: "templates",
			Msg: "the following templates are owned by organizations which do not match" +
				" the organization of this configuration: " + strings.Join(foreign, ", "),
		}
	}
	return tpls, nil
}

// ValidateTemplate — полная проверка шаблона перед записью. Нормализует
// поля по ходу: default_values null→{}, у не-vpn шаблонов сбрасываются
// vpn/auto_cert, пустой vpn-шаблон получает авто-клиентский фрагмент.
func (e *Engine) ValidateTemplate(ctx context.Context, t *models.Template) error {
	if strings.TrimSpace(t.Name) == "" {
		return invalid("name", "cannot be blank")
	}
	if !render.Supported(t.Backend) {
		return invalid("backend", "unknown backend %q, supported: %s",
			t.Backend, strings.Join(render.Backends(), ", "))
	}

	dv, err := ValidateDefaultValues(map[string]any(t.DefaultValues))
	if err != nil {
		return err
	}
	t.DefaultValues = dv

	switch t.Type {
	case models.TemplateVPN:
		if t.VpnID == nil {
			return invalid("vpn", `a VPN must be selected when template type is "vpn"`)
		}
		vpn, err := e.vpns.Get(ctx, *t.VpnID)
		if err != nil {
			return err
		}
		if err := CheckOrgRelation("vpn", t.OrgID, vpn.OrgID); err != nil {
			return err
		}
		if emptyBody(t.Config) {
			if err := e.autoProvision(ctx, t, vpn); err != nil {
				return err
			}
		}
	case models.TemplateGeneric, "":
		t.Type = models.TemplateGeneric
		// нормализация: поля vpn не имеют смысла вне vpn-шаблона
		t.VpnID = nil
		t.AutoCert = false
		if emptyBody(t.Config) {
			return invalid("config", "cannot be empty")
		}
	default:
		return invalid("type", "unknown template type %q", t.Type)
	}

	if !emptyBody(t.Config) {
		var body map[string]any
		if err := json.Unmarshal(t.Config, &body); err != nil {
			return invalid("config", "the supplied value is not a JSON object")
		}
	}
	return nil
}

// ValidateConfig — проверка конфига перед записью (без списка шаблонов,
// он проверяется отдельно в ValidateTemplateSet).
func (e *Engine) ValidateConfig(ctx context.Context, c *models.Config) error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("name", "cannot be blank")
	}
	if !render.Supported(c.Backend) {
		return invalid("backend", "unknown backend %q, supported: %s",
			c.Backend, strings.Join(render.Backends(), ", "))
	}
	if !emptyBody(c.Config) {
		var body map[string]any
		if err := json.Unmarshal(c.Config, &body); err != nil {
			return invalid("config", "the supplied value is not a JSON object")
		}
	}
	switch c.Status {
	case "", models.StatusModified, models.StatusApplied, models.StatusError:
	default:
		return invalid("status", "unknown status %q", c.Status)
	}
	return nil
}
