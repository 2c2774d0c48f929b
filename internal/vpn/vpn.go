// Package vpn строит клиентские NetJSON-фрагменты для vpn-шаблонов.
// Фрагмент общий для всех конфигов шаблона: значения, зависящие от
// конкретного конфига (ключи WireGuard, адрес), остаются переменными
// {{...}} и подставляются при рендере.
package vpn

import (
	"encoding/json"
	"fmt"

	"strata/internal/models"
)

// AutoClient возвращает фрагмент, которым заполняется пустое тело
// vpn-шаблона.
func AutoClient(v *models.Vpn, autoCert bool) (map[string]any, error) {
	switch v.Backend {
	case models.VpnOpenVPN:
		return openvpnClient(v, autoCert), nil
	case models.VpnWireGuard:
		return wireguardClient(v), nil
	default:
		return nil, fmt.Errorf("no auto client for vpn backend %q", v.Backend)
	}
}

func openvpnClient(v *models.Vpn, autoCert bool) map[string]any {
	srv := serverConfig(v)
	client := map[string]any{
		"name":   v.Name,
		"remote": v.Host,
		"port":   portOrDefault(v, 1194),
		"proto":  str(srv, "proto", "udp"),
		"cipher": str(srv, "cipher", "AES-256-GCM"),
		"auth":   str(srv, "auth", "SHA256"),
	}
	if autoCert {
		// файлы кладёт рендер-пайплайн из сертификата VpnClient
		dir := "/etc/openvpn/" + v.Name + "/"
		client["ca"] = dir + "ca.crt"
		client["cert"] = dir + "client.crt"
		client["key"] = dir + "client.key"
	}
	return map[string]any{
		"openvpn": map[string]any{
			"clients": []any{client},
		},
	}
}

func wireguardClient(v *models.Vpn) map[string]any {
	srv := serverConfig(v)
	peer := map[string]any{
		"public_key":  str(srv, "public_key", ""),
		"endpoint":    fmt.Sprintf("%s:%d", v.Host, portOrDefault(v, 51820)),
		"allowed_ips": srv["allowed_ips"],
	}
	if peer["allowed_ips"] == nil {
		peer["allowed_ips"] = []any{"0.0.0.0/0"}
	}
	if ka, ok := srv["keepalive"]; ok {
		peer["keepalive"] = ka
	}
	return map[string]any{
		"wireguard": map[string]any{
			"interface":   str(srv, "interface", "wg0"),
			"address":     "{{wg_address}}",
			"private_key": "{{wg_private_key}}",
			"peers":       []any{peer},
		},
	}
}

// serverConfig — серверная часть настроек VPN (Vpn.Config), из неё
// клиентский фрагмент наследует протокол/шифры/ключ сервера.
func serverConfig(v *models.Vpn) map[string]any {
	if len(v.Config) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(v.Config, &m); err != nil {
		return map[string]any{}
	}
	return m
}

func portOrDefault(v *models.Vpn, def int) int {
	if v.Port > 0 {
		return v.Port
	}
	return def
}

func str(m map[string]any, k, def string) string {
	if s, ok := m[k].(string); ok && s != "" {
		return s
	}
	return def
}
