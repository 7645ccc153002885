package services

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge/http01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"
	"github.com/google/uuid"

	"github.com/irgordon/vela/api/internal/core/domain"
)

// acmeUser satisfies lego's registration.User.
type acmeUser struct {
	email        string
	registration *registration.Resource
	key          crypto.PrivateKey
}

func (u *acmeUser) GetEmail() string                        { return u.email }
func (u *acmeUser) GetRegistration() *registration.Resource { return u.registration }
func (u *acmeUser) GetPrivateKey() crypto.PrivateKey        { return u.key }

// webrootProvider answers HTTP-01 challenges by dropping the key
// authorization under the webroot nginx already serves for
// /.well-known/acme-challenge/.
type webrootProvider struct {
	webroot string
}

func (p *webrootProvider) Present(domainName, token, keyAuth string) error {
	fullPath := filepath.Join(p.webroot, http01.ChallengePath(token))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(fullPath, []byte(keyAuth), 0o644)
}

func (p *webrootProvider) CleanUp(domainName, token, keyAuth string) error {
	fullPath := filepath.Join(p.webroot, http01.ChallengePath(token))
	err := os.Remove(fullPath)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// AcmeService provisions certificates from an ACME CA and hands the PEM
// material to the certificate service, which owns storage and metadata.
type AcmeService struct {
	certs    *CertificateService
	email    string
	caDirURL string
	webroot  string
	logger   *slog.Logger
}

func NewAcmeService(certs *CertificateService, email, caDirURL, webroot string, logger *slog.Logger) *AcmeService {
	if caDirURL == "" {
		caDirURL = lego.LEDirectoryProduction
	}
	return &AcmeService{
		certs:    certs,
		email:    email,
		caDirURL: caDirURL,
		webroot:  webroot,
		logger:   logger,
	}
}

// Provision runs the full ACME flow for one domain and stores the result as
// a regular certificate row. The account key is ephemeral: Let's Encrypt
// allows fresh registrations, and we have no renewal state to keep.
func (s *AcmeService) Provision(ctx context.Context, actorID uuid.UUID, domainName string) (*domain.Certificate, error) {
	s.logger.Info("starting ACME certificate provision", slog.String("domain", domainName))

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate account key: %w", err)
	}
	user := &acmeUser{email: s.email, key: privateKey}

	cfg := lego.NewConfig(user)
	cfg.CADirURL = s.caDirURL
	client, err := lego.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create lego client: %w", err)
	}

	if err := client.Challenge.SetHTTP01Provider(&webrootProvider{webroot: s.webroot}); err != nil {
		return nil, fmt.Errorf("failed to set http01 provider: %w", err)
	}

	reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return nil, fmt.Errorf("failed to register ACME account: %w", err)
	}
	user.registration = reg

	request := certificate.ObtainRequest{
		Domains: []string{domainName},
		Bundle:  true,
	}
	certs, err := client.Certificate.Obtain(request)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain certificate for %s: %w", domainName, err)
	}

	stored, err := s.certs.Upload(ctx, actorID,
		"acme-"+domainName, domainName,
		string(certs.Certificate), string(certs.PrivateKey),
		false)
	if err != nil {
		return nil, fmt.Errorf("failed to store provisioned certificate: %w", err)
	}

	s.logger.Info("ACME certificate provisioned", slog.String("domain", domainName))
	return stored, nil
}
