package services_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/vela/api/internal/core/domain"
	"github.com/irgordon/vela/api/internal/core/services"
)

// memCertRepo is an in-memory CertificateRepository for service tests.
type memCertRepo struct {
	certs map[uuid.UUID]*domain.Certificate
}

func newMemCertRepo() *memCertRepo {
	return &memCertRepo{certs: make(map[uuid.UUID]*domain.Certificate)}
}

func (r *memCertRepo) Create(_ context.Context, c *domain.Certificate) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	cp := *c
	r.certs[c.ID] = &cp
	return nil
}

func (r *memCertRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Certificate, error) {
	c, ok := r.certs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memCertRepo) List(_ context.Context) ([]domain.Certificate, error) {
	var out []domain.Certificate
	for _, c := range r.certs {
		out = append(out, *c)
	}
	return out, nil
}

func (r *memCertRepo) Update(_ context.Context, c *domain.Certificate) error {
	if _, ok := r.certs[c.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *c
	r.certs[c.ID] = &cp
	return nil
}

func (r *memCertRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.certs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.certs, id)
	return nil
}

func (r *memCertRepo) ClearDefault(_ context.Context) error {
	for _, c := range r.certs {
		c.IsDefault = false
	}
	return nil
}

func (r *memCertRepo) ListExpiring(_ context.Context, within time.Duration) ([]domain.Certificate, error) {
	cutoff := time.Now().Add(within)
	var out []domain.Certificate
	for _, c := range r.certs {
		if c.ExpiresAt != nil && c.ExpiresAt.Before(cutoff) {
			out = append(out, *c)
		}
	}
	return out, nil
}

// selfSignedPair generates a throwaway certificate/key pair for commonName.
func selfSignedPair(t *testing.T, commonName string, notAfter time.Time) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		DNSNames:              []string{commonName},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	return string(certPEM), string(keyPEM)
}

func newCertService(t *testing.T) (*services.CertificateService, *memCertRepo, string) {
	t.Helper()
	dir := t.TempDir()
	repo := newMemCertRepo()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return services.NewCertificateService(repo, dir, logger), repo, dir
}

func TestCertificateService_Upload(t *testing.T) {
	svc, _, dir := newCertService(t)
	expiry := time.Now().Add(90 * 24 * time.Hour)
	certPEM, keyPEM := selfSignedPair(t, "app.example.com", expiry)

	cert, err := svc.Upload(context.Background(), uuid.New(), "app", "App.Example.COM", certPEM, keyPEM, false)
	require.NoError(t, err)

	assert.Equal(t, "app.example.com", cert.DomainPattern)
	require.NotNil(t, cert.ExpiresAt)
	assert.WithinDuration(t, expiry, *cert.ExpiresAt, 2*time.Second)

	// Material lands on disk with the key locked down. The file name
	// carries the row ID so same-pattern uploads never share material.
	assert.Equal(t, filepath.Join(dir, "app.example.com-"+cert.ID.String()+".crt"), cert.CertPath)
	info, err := os.Stat(cert.KeyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	onDisk, err := os.ReadFile(cert.CertPath)
	require.NoError(t, err)
	assert.Equal(t, certPEM, string(onDisk))
}

func TestCertificateService_UploadWildcardFilename(t *testing.T) {
	svc, _, dir := newCertService(t)
	certPEM, keyPEM := selfSignedPair(t, "*.example.com", time.Now().Add(time.Hour))

	cert, err := svc.Upload(context.Background(), uuid.New(), "wild", "*.example.com", certPEM, keyPEM, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "wildcard.example.com-"+cert.ID.String()+".crt"), cert.CertPath)
}

func TestCertificateService_SamePatternUploadsKeepSeparateFiles(t *testing.T) {
	svc, _, _ := newCertService(t)
	ctx := context.Background()

	certPEM1, keyPEM1 := selfSignedPair(t, "app.example.com", time.Now().Add(time.Hour))
	certPEM2, keyPEM2 := selfSignedPair(t, "app.example.com", time.Now().Add(48*time.Hour))

	first, err := svc.Upload(ctx, uuid.New(), "app-old", "app.example.com", certPEM1, keyPEM1, false)
	require.NoError(t, err)
	second, err := svc.Upload(ctx, uuid.New(), "app-new", "app.example.com", certPEM2, keyPEM2, false)
	require.NoError(t, err)

	// Distinct rows for the same pattern must not collide on disk.
	assert.NotEqual(t, first.CertPath, second.CertPath)
	assert.NotEqual(t, first.KeyPath, second.KeyPath)

	// The first row's material survives the second upload untouched.
	onDisk, err := os.ReadFile(first.CertPath)
	require.NoError(t, err)
	assert.Equal(t, certPEM1, string(onDisk))

	// Deleting one row leaves the other's files in place.
	require.NoError(t, svc.Delete(ctx, second.ID))
	_, err = os.Stat(first.CertPath)
	require.NoError(t, err)
	_, err = os.Stat(first.KeyPath)
	require.NoError(t, err)
}

func TestCertificateService_UploadRejectsMismatchedPair(t *testing.T) {
	svc, _, _ := newCertService(t)
	certPEM, _ := selfSignedPair(t, "a.example.com", time.Now().Add(time.Hour))
	_, otherKey := selfSignedPair(t, "b.example.com", time.Now().Add(time.Hour))

	_, err := svc.Upload(context.Background(), uuid.New(), "bad", "a.example.com", certPEM, otherKey, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCertificateService_UploadRejectsGarbage(t *testing.T) {
	svc, _, _ := newCertService(t)
	_, err := svc.Upload(context.Background(), uuid.New(), "bad", "a.example.com", "not pem", "also not pem", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCertificateService_DefaultRotation(t *testing.T) {
	svc, repo, _ := newCertService(t)
	ctx := context.Background()

	certPEM1, keyPEM1 := selfSignedPair(t, "one.example.com", time.Now().Add(time.Hour))
	certPEM2, keyPEM2 := selfSignedPair(t, "two.example.com", time.Now().Add(time.Hour))

	first, err := svc.Upload(ctx, uuid.New(), "one", "one.example.com", certPEM1, keyPEM1, true)
	require.NoError(t, err)
	assert.True(t, first.IsDefault)

	second, err := svc.Upload(ctx, uuid.New(), "two", "two.example.com", certPEM2, keyPEM2, true)
	require.NoError(t, err)
	assert.True(t, second.IsDefault)

	// Only one default at a time.
	stored, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsDefault)
}

func TestCertificateService_DeleteRemovesFiles(t *testing.T) {
	svc, _, _ := newCertService(t)
	ctx := context.Background()

	certPEM, keyPEM := selfSignedPair(t, "gone.example.com", time.Now().Add(time.Hour))
	cert, err := svc.Upload(ctx, uuid.New(), "gone", "gone.example.com", certPEM, keyPEM, false)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, cert.ID))

	_, err = os.Stat(cert.CertPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(cert.KeyPath)
	assert.True(t, os.IsNotExist(err))

	_, err = svc.GetByID(ctx, cert.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestParseCertificateExpiry(t *testing.T) {
	expiry := time.Now().Add(30 * 24 * time.Hour)
	certPEM, _ := selfSignedPair(t, "exp.example.com", expiry)

	got, err := services.ParseCertificateExpiry(certPEM)
	require.NoError(t, err)
	assert.WithinDuration(t, expiry, got, 2*time.Second)

	_, err = services.ParseCertificateExpiry("junk")
	assert.Error(t, err)
}
