package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"strata/internal/models"
)

// ValidateVpn — проверка VPN-сервера перед записью. CA обязателен; CA и
// сертификат должны быть общими либо принадлежать организации VPN.
func (e *Engine) ValidateVpn(ctx context.Context, v *models.Vpn) error {
	if strings.TrimSpace(v.Name) == "" {
		return invalid("name", "cannot be blank")
	}
	switch v.Backend {
	case models.VpnOpenVPN, models.VpnWireGuard:
	default:
		return invalid("backend", "unknown vpn backend %q", v.Backend)
	}
	if strings.TrimSpace(v.Host) == "" {
		return invalid("host", "cannot be blank")
	}
	if v.CaID == uuid.Nil {
		return invalid("ca", "a certificate authority is required")
	}
	if e.pki != nil {
		ca, err := e.pki.GetCA(ctx, v.CaID)
		if err != nil {
			return err
		}
		if err := CheckOrgRelation("ca", v.OrgID, ca.OrgID); err != nil {
			return err
		}
		if v.CertID != nil {
			cert, err := e.pki.GetCert(ctx, *v.CertID)
			if err != nil {
				return err
			}
			if err := CheckOrgRelation("cert", v.OrgID, cert.OrgID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) CreateVpn(ctx context.Context, v *models.Vpn, actor string) error {
	if err := e.ValidateVpn(ctx, v); err != nil {
		return err
	}
	if err := e.vpns.Create(ctx, v); err != nil {
		return err
	}
	e.audit.LogAddition(ctx, actor, "vpn "+v.Name, v.ID)
	return nil
}

// SaveVpn сохраняет VPN-сервер. Смена серверных параметров не трогает
// тела уже провиженных vpn-шаблонов: их фрагмент фиксируется при
// провижининге (см. autoProvision).
func (e *Engine) SaveVpn(ctx context.Context, v *models.Vpn) error {
	if err := e.ValidateVpn(ctx, v); err != nil {
		return err
	}
	return e.vpns.Save(ctx, v)
}
