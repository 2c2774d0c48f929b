package wireguard

import "golang.zx2c4.com/wireguard/wgctrl/wgtypes"

type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// NewKeyPair генерирует клиентскую пару ключей (Curve25519, base64).
func NewKeyPair() (KeyPair, error) {
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{
		PrivateKey: priv.String(),
		PublicKey:  priv.PublicKey().String(),
	}, nil
}
