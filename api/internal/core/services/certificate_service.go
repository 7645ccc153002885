package services

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/irgordon/vela/api/internal/core/domain"
)

// CertificateService owns the PEM material on disk and the metadata rows
// the resolver works from. The database stores only paths; the key itself
// never leaves the certs directory.
type CertificateService struct {
	repo     domain.CertificateRepository
	certsDir string
	logger   *slog.Logger
}

func NewCertificateService(repo domain.CertificateRepository, certsDir string, logger *slog.Logger) *CertificateService {
	return &CertificateService{
		repo:     repo,
		certsDir: certsDir,
		logger:   logger,
	}
}

// Upload validates and stores a certificate/key pair. When makeDefault is
// set, every other default flag is cleared in the same call so at most one
// certificate ever carries it.
func (s *CertificateService) Upload(
	ctx context.Context,
	actorID uuid.UUID,
	name, domainPattern, certPEM, keyPEM string,
	makeDefault bool,
) (*domain.Certificate, error) {
	if _, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM)); err != nil {
		return nil, fmt.Errorf("%w: certificate and key do not form a valid pair: %v", domain.ErrInvalidInput, err)
	}

	expiry, err := ParseCertificateExpiry(certPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	// The row ID is assigned here, before the repository sees it, because
	// the on-disk file names embed it. Two certificates for the same
	// pattern must never share material: replacing or deleting one would
	// otherwise pull the files out from under the survivor.
	id := uuid.New()

	certPath, keyPath, err := s.writeMaterial(id, domainPattern, certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	if makeDefault {
		if err := s.repo.ClearDefault(ctx); err != nil {
			os.Remove(certPath)
			os.Remove(keyPath)
			return nil, err
		}
	}

	cert := &domain.Certificate{
		ID:            id,
		Name:          name,
		DomainPattern: strings.ToLower(domainPattern),
		CertPath:      certPath,
		KeyPath:       keyPath,
		IsDefault:     makeDefault,
		ExpiresAt:     &expiry,
		UploadedBy:    actorID,
	}
	if err := s.repo.Create(ctx, cert); err != nil {
		os.Remove(certPath)
		os.Remove(keyPath)
		return nil, err
	}

	s.logger.Info("certificate stored",
		slog.String("name", name),
		slog.String("pattern", cert.DomainPattern),
		slog.Time("expires_at", expiry))
	return cert, nil
}

// SetDefault moves the default flag to the given certificate.
func (s *CertificateService) SetDefault(ctx context.Context, id uuid.UUID) (*domain.Certificate, error) {
	cert, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ClearDefault(ctx); err != nil {
		return nil, err
	}
	cert.IsDefault = true
	if err := s.repo.Update(ctx, cert); err != nil {
		return nil, err
	}
	return cert, nil
}

// Delete removes the row and then the on-disk material. File removal errors
// are logged, not returned: the row is already gone and generation no
// longer references the paths.
func (s *CertificateService) Delete(ctx context.Context, id uuid.UUID) error {
	cert, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	for _, path := range []string{cert.CertPath, cert.KeyPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove certificate file",
				slog.String("path", path), slog.Any("error", err))
		}
	}
	return nil
}

func (s *CertificateService) List(ctx context.Context) ([]domain.Certificate, error) {
	return s.repo.List(ctx)
}

func (s *CertificateService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Certificate, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *CertificateService) ListExpiring(ctx context.Context, within time.Duration) ([]domain.Certificate, error) {
	return s.repo.ListExpiring(ctx, within)
}

// writeMaterial persists the PEM pair under the certs directory. The key
// gets 0600: only the proxy (running as the same user) may read it.
func (s *CertificateService) writeMaterial(id uuid.UUID, domainPattern, certPEM, keyPEM string) (string, string, error) {
	if err := os.MkdirAll(s.certsDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create certs directory: %w", err)
	}

	base := fileBaseName(domainPattern) + "-" + id.String()
	certPath := filepath.Join(s.certsDir, base+".crt")
	keyPath := filepath.Join(s.certsDir, base+".key")

	if err := os.WriteFile(certPath, []byte(certPEM), 0o644); err != nil {
		return "", "", fmt.Errorf("write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(keyPEM), 0o600); err != nil {
		os.Remove(certPath)
		return "", "", fmt.Errorf("write private key: %w", err)
	}
	return certPath, keyPath, nil
}

// fileBaseName turns a domain pattern into a safe filename:
// "*.example.com" becomes "wildcard.example.com".
func fileBaseName(domainPattern string) string {
	return strings.ReplaceAll(strings.ToLower(domainPattern), "*", "wildcard")
}

// ParseCertificateExpiry extracts NotAfter from a PEM-encoded certificate.
func ParseCertificateExpiry(certPEM string) (time.Time, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return time.Time{}, fmt.Errorf("no PEM block found in certificate")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse certificate: %w", err)
	}
	return cert.NotAfter, nil
}
