package engine

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"

	"strata/internal/models"
	"strata/internal/notify"
	"strata/internal/secrets"
	"strata/internal/vpn/wireguard"
)

// CreateConfig генерирует ключ, пишет конфиг и вешает шаблоны: явно
// переданные через refs либо default-шаблоны организации, если refs пуст.
func (e *Engine) CreateConfig(ctx context.Context, c *models.Config, refs TemplateRefs, actor string) error {
	if err := e.ValidateConfig(ctx, c); err != nil {
		return err
	}
	if c.Key == "" {
		c.Key = secrets.GenerateKey()
	}
	if c.Status == "" {
		c.Status = models.StatusModified
	}
	return e.tx.InTx(ctx, func(ctx context.Context) error {
		// список резолвится до записи: невалидный набор шаблонов
		// не должен оставить конфиг без них
		var tpls []models.Template
		var err error
		if refs.Empty() {
			tpls, err = e.templates.DefaultsFor(ctx, c.OrgID, c.Backend)
		} else {
			tpls, err = e.ValidateTemplateSet(ctx, c, refs)
		}
		if err != nil {
			return err
		}
		if err := e.configs.Create(ctx, c); err != nil {
			return err
		}
		if len(tpls) > 0 {
			if err := e.applyTemplateSet(ctx, c, tpls); err != nil {
				return err
			}
		}
		e.audit.LogAddition(ctx, actor, "config "+c.Name, c.ID)
		return nil
	})
}

// SaveConfig сохраняет конфиг; поля, влияющие на рендер (backend, тело,
// контекст), переводят статус в modified и рассылают события.
func (e *Engine) SaveConfig(ctx context.Context, c *models.Config) error {
	if err := e.ValidateConfig(ctx, c); err != nil {
		return err
	}
	return e.tx.InTx(ctx, func(ctx context.Context) error {
		prev, err := e.configs.Get(ctx, c.ID)
		if err != nil {
			return err
		}
		changed := prev.Backend != c.Backend ||
			!jsonEqual(prev.Config, c.Config) ||
			!mapsEqual(prev.Context, c.Context)
		if changed {
			c.Status = models.StatusModified
		} else {
			c.Status = prev.Status
		}
		c.Key = prev.Key // ключ отчётов не меняется через save
		if err := e.configs.Save(ctx, c); err != nil {
			return err
		}
		if !changed {
			return nil
		}
		now := time.Now().UTC()
		ev := notify.Event{
			Kind:     notify.ConfigContentChanged,
			ConfigID: c.ID,
			OrgID:    c.OrgID,
			At:       now,
		}
		if err := e.events.Publish(ctx, ev); err != nil {
			return err
		}
		if prev.Status == models.StatusModified {
			return nil
		}
		ev.Kind = notify.ConfigStatusChanged
		ev.Status = models.StatusModified
		return e.events.Publish(ctx, ev)
	})
}

// SetConfigTemplates заменяет список шаблонов конфига. Назначение меняет
// итоговый рендер, поэтому конфиг переводится в modified с рассылкой
// событий; членства в VPN синхронизируются под новый список.
func (e *Engine) SetConfigTemplates(ctx context.Context, configID uuid.UUID, refs TemplateRefs) error {
	return e.tx.InTx(ctx, func(ctx context.Context) error {
		cfg, err := e.configs.Get(ctx, configID)
		if err != nil {
			return err
		}
		tpls, err := e.ValidateTemplateSet(ctx, cfg, refs)
		if err != nil {
			return err
		}
		if err := e.applyTemplateSet(ctx, cfg, tpls); err != nil {
			return err
		}

		prev := cfg.Status
		if prev != models.StatusModified {
			cfg.Status = models.StatusModified
			if err := e.configs.Save(ctx, cfg); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		ev := notify.Event{
			Kind:     notify.ConfigContentChanged,
			ConfigID: cfg.ID,
			OrgID:    cfg.OrgID,
			At:       now,
		}
		if err := e.events.Publish(ctx, ev); err != nil {
			return err
		}
		if prev == models.StatusModified {
			return nil
		}
		ev.Kind = notify.ConfigStatusChanged
		ev.Status = models.StatusModified
		return e.events.Publish(ctx, ev)
	})
}

// ReportStatus фиксирует исход применения конфига, о котором сообщает
// внешняя система. Движок сам пишет только modified; applied и error
// приходят только этим путём. Повторный отчёт тем же статусом — no-op.
func (e *Engine) ReportStatus(ctx context.Context, configID uuid.UUID, st models.ConfigStatus) (*models.Config, error) {
	if st != models.StatusApplied && st != models.StatusError {
		return nil, invalid("status", `status must be "applied" or "error"`)
	}
	var out *models.Config
	err := e.tx.InTx(ctx, func(ctx context.Context) error {
		cfg, err := e.configs.Get(ctx, configID)
		if err != nil {
			return err
		}
		out = cfg
		if cfg.Status == st {
			return nil
		}
		cfg.Status = st
		if err := e.configs.Save(ctx, cfg); err != nil {
			return err
		}
		return e.events.Publish(ctx, notify.Event{
			Kind:     notify.ConfigStatusChanged,
			ConfigID: cfg.ID,
			OrgID:    cfg.OrgID,
			Status:   st,
			At:       time.Now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// applyTemplateSet пишет связки и синхронизирует членства в VPN.
func (e *Engine) applyTemplateSet(ctx context.Context, cfg *models.Config, tpls []models.Template) error {
	ids := make([]uuid.UUID, len(tpls))
	for i := range tpls {
		ids[i] = tpls[i].ID
	}
	if err := e.configs.SetTemplates(ctx, cfg.ID, ids); err != nil {
		return err
	}
	return e.syncVpnClients(ctx, cfg, tpls)
}

// syncVpnClients: на каждый назначенный vpn-шаблон — запись VpnClient
// (пара ключей для wireguard, сертификат при auto_cert); членства VPN,
// которых больше нет в списке, снимаются.
func (e *Engine) syncVpnClients(ctx context.Context, cfg *models.Config, tpls []models.Template) error {
	if e.clients == nil {
		return nil
	}
	want := map[uuid.UUID]models.Template{}
	for _, t := range tpls {
		if t.Type == models.TemplateVPN && t.VpnID != nil {
			want[*t.VpnID] = t
		}
	}

	existing, err := e.clients.ForConfig(ctx, cfg.ID)
	if err != nil {
		return err
	}
	have := map[uuid.UUID]bool{}
	for _, cl := range existing {
		if _, ok := want[cl.VpnID]; !ok {
			if err := e.clients.Delete(ctx, cl.VpnID, cfg.ID); err != nil {
				return err
			}
			continue
		}
		have[cl.VpnID] = true
	}

	for vpnID, t := range want {
		if have[vpnID] {
			continue
		}
		v, err := e.vpns.Get(ctx, vpnID)
		if err != nil {
			return err
		}
		client := models.VpnClient{VpnID: vpnID, ConfigID: cfg.ID}
		if v.Backend == models.VpnWireGuard {
			kp, err := wireguard.NewKeyPair()
			if err != nil {
				return err
			}
			client.PrivateKey = kp.PrivateKey
			client.PublicKey = kp.PublicKey
		}
		if t.AutoCert && e.certs != nil {
			cert, err := e.certs.IssueClientCert(ctx, v, cfg.Key)
			if err != nil {
				return err
			}
			client.CertID = &cert.ID
		}
		if err := e.clients.Create(ctx, &client); err != nil {
			return err
		}
	}
	return nil
}

func mapsEqual(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
