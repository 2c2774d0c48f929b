package engine

import (
	"context"
	"encoding/json"

	"strata/internal/models"
	"strata/internal/vpn"
)

// autoProvision заполняет пустое тело vpn-шаблона клиентским фрагментом
// его VPN. Вызывается только из ValidateTemplate: непустое тело никогда
// не перезаписывается.
func (e *Engine) autoProvision(ctx context.Context, t *models.Template, v *models.Vpn) error {
	fragment, err := vpn.AutoClient(v, t.AutoCert)
	if err != nil {
		return invalid("vpn", "%s", err)
	}
	body, err := json.Marshal(fragment)
	if err != nil {
		return err
	}
	t.Config = body
	return nil
}
