// Package pki — выпуск корневых CA и клиентских сертификатов для VPN.
package pki

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"time"

	"github.com/google/uuid"

	"strata/internal/models"
)

type Store interface {
	GetCA(ctx context.Context, id uuid.UUID) (*models.Ca, error)
	GetOrCreateCA(ctx context.Context, name string, create func() (*models.Ca, error)) (*models.Ca, error)
	SaveCert(ctx context.Context, c *models.Cert) error
}

type Service struct {
	Store   Store
	Now     func() time.Time
	CertTTL time.Duration
}

func New(store Store) *Service {
	return &Service{Store: store, Now: time.Now, CertTTL: 8760 * time.Hour}
}

// EnsureCA отдаёт CA по имени, создавая самоподписанный при первом
// обращении.
func (s *Service) EnsureCA(ctx context.Context, name string, orgID *uuid.UUID, ttl time.Duration) (*models.Ca, error) {
	return s.Store.GetOrCreateCA(ctx, name, func() (*models.Ca, error) {
		nb, na := s.Now().Add(-time.Hour), s.Now().Add(ttl)
		sk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, err
		}
		serial, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
		tpl := &x509.Certificate{
			SerialNumber: serial,
			Subject:      pkix.Name{CommonName: name},
			NotBefore:    nb, NotAfter: na,
			KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
			BasicConstraintsValid: true, IsCA: true, MaxPathLenZero: true,
		}
		der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &sk.PublicKey, sk)
		if err != nil {
			return nil, err
		}
		certPEM, keyPEM, err := encodePEM(der, sk)
		if err != nil {
			return nil, err
		}
		return &models.Ca{Name: name, OrgID: orgID, CertPEM: certPEM, KeyPEM: keyPEM, NotBefore: nb, NotAfter: na}, nil
	})
}

// IssueClientCert выпускает клиентский сертификат через CA данного VPN.
// Сертификат наследует организацию VPN.
func (s *Service) IssueClientCert(ctx context.Context, vpn *models.Vpn, cn string) (*models.Cert, error) {
	ca, err := s.Store.GetCA(ctx, vpn.CaID)
	if err != nil {
		return nil, err
	}

	nb, na := s.Now().Add(-time.Hour), s.Now().Add(s.CertTTL)
	sk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	pb, _ := pem.Decode(ca.CertPEM)
	parent, err := x509.ParseCertificate(pb.Bytes)
	if err != nil {
		return nil, err
	}
	kb, _ := pem.Decode(ca.KeyPEM)
	cakey, err := x509.ParseECPrivateKey(kb.Bytes)
	if err != nil {
		return nil, err
	}
	serial, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	tpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    nb, NotAfter: na,
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, parent, &sk.PublicKey, cakey)
	if err != nil {
		return nil, err
	}
	certPEM, keyPEM, err := encodePEM(der, sk)
	if err != nil {
		return nil, err
	}

	c := &models.Cert{
		CaID:      ca.ID,
		OrgID:     vpn.OrgID,
		CN:        cn,
		CertPEM:   certPEM,
		KeyPEM:    keyPEM,
		NotBefore: nb,
		NotAfter:  na,
	}
	return c, s.Store.SaveCert(ctx, c)
}

func encodePEM(der []byte, sk *ecdsa.PrivateKey) (certPEM, keyPEM []byte, err error) {
	var cert, key bytes.Buffer
	if err = pem.Encode(&cert, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
		return nil, nil, err
	}
	derKey, err := x509.MarshalECPrivateKey(sk)
	if err != nil {
		return nil, nil, err
	}
	if err = pem.Encode(&key, &pem.Block{Type: "EC PRIVATE KEY", Bytes: derKey}); err != nil {
		return nil, nil, err
	}
	return cert.Bytes(), key.Bytes(), nil
}
