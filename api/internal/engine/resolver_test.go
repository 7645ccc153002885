package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/vela/api/internal/core/domain"
)

func cert(id, name, pattern string, isDefault bool) domain.Certificate {
	return domain.Certificate{
		ID:            uuid.MustParse(id),
		Name:          name,
		DomainPattern: pattern,
		CertPath:      "/etc/vela/certs/" + name + ".crt",
		KeyPath:       "/etc/vela/certs/" + name + ".key",
		IsDefault:     isDefault,
	}
}

func TestResolveCertificate_ExplicitReferenceWins(t *testing.T) {
	explicit := cert("99999999-0000-0000-0000-000000000001", "explicit", "other.example.net", false)
	exact := cert("00000000-0000-0000-0000-000000000002", "exact", "api.example.com", false)
	certs := []domain.Certificate{exact, explicit}

	rule := domain.Rule{Domain: "api.example.com", CertificateID: &explicit.ID}

	got, warn := ResolveCertificate(rule, certs)
	require.NotNil(t, got)
	assert.Empty(t, warn)
	// The explicit assignment wins even though a better exact match exists.
	assert.Equal(t, explicit.ID, got.ID)
}

func TestResolveCertificate_DanglingReferenceFallsThrough(t *testing.T) {
	missing := uuid.MustParse("99999999-0000-0000-0000-0000000000ff")
	exact := cert("00000000-0000-0000-0000-000000000002", "exact", "API.Example.COM", false)

	rule := domain.Rule{Domain: "api.example.com", CertificateID: &missing}

	got, warn := ResolveCertificate(rule, []domain.Certificate{exact})
	require.NotNil(t, got)
	assert.Empty(t, warn)
	assert.Equal(t, exact.ID, got.ID)
}

func TestResolveCertificate_WildcardBeatsDefault(t *testing.T) {
	// The certificate is both a wildcard match and the default; resolution
	// must hit it via the wildcard branch, which also covers the case where
	// a different certificate carries the default flag.
	wildcard := cert("00000000-0000-0000-0000-000000000003", "wild", "*.example.com", true)
	other := cert("00000000-0000-0000-0000-000000000004", "fallback", "unrelated.net", true)

	rule := domain.Rule{Domain: "api.example.com"}

	got, warn := ResolveCertificate(rule, []domain.Certificate{other, wildcard})
	require.NotNil(t, got)
	assert.Empty(t, warn, "wildcard branch must not trip the multi-default warning")
	assert.Equal(t, wildcard.ID, got.ID)
}

func TestResolveCertificate_WildcardSingleLevelOnly(t *testing.T) {
	wildcard := cert("00000000-0000-0000-0000-000000000003", "wild", "*.example.com", false)

	tests := []struct {
		domain string
		match  bool
	}{
		{"api.example.com", true},
		{"deep.api.example.com", false}, // no recursive matching
		{"example.com", false},          // the apex is not covered
		{"api.example.org", false},
	}
	for _, tc := range tests {
		t.Run(tc.domain, func(t *testing.T) {
			got, _ := ResolveCertificate(domain.Rule{Domain: tc.domain}, []domain.Certificate{wildcard})
			if tc.match {
				require.NotNil(t, got)
				assert.Equal(t, wildcard.ID, got.ID)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestResolveCertificate_DefaultFallback(t *testing.T) {
	def := cert("00000000-0000-0000-0000-000000000005", "default", "panel.example.net", true)
	other := cert("00000000-0000-0000-0000-000000000006", "other", "www.example.net", false)

	got, warn := ResolveCertificate(domain.Rule{Domain: "nomatch.example.io"}, []domain.Certificate{other, def})
	require.NotNil(t, got)
	assert.Empty(t, warn)
	assert.Equal(t, def.ID, got.ID)
}

func TestResolveCertificate_NoMatchReturnsNone(t *testing.T) {
	other := cert("00000000-0000-0000-0000-000000000006", "other", "www.example.net", false)

	got, warn := ResolveCertificate(domain.Rule{Domain: "nomatch.example.io"}, []domain.Certificate{other})
	assert.Nil(t, got)
	assert.Empty(t, warn)
}

func TestResolveCertificate_MultipleDefaultsDeterministic(t *testing.T) {
	// Two default flags is a data-layer invariant violation. Resolution must
	// still be deterministic (smallest ID) and must surface a warning.
	defB := cert("00000000-0000-0000-0000-0000000000bb", "b", "b.example.net", true)
	defA := cert("00000000-0000-0000-0000-0000000000aa", "a", "a.example.net", true)

	for _, certs := range [][]domain.Certificate{
		{defB, defA},
		{defA, defB},
	} {
		got, warn := ResolveCertificate(domain.Rule{Domain: "nomatch.example.io"}, certs)
		require.NotNil(t, got)
		assert.Equal(t, defA.ID, got.ID)
		assert.Contains(t, warn, "default flag")
	}
}

func TestResolveCertificate_ExactMatchOverlapPicksSmallestID(t *testing.T) {
	second := cert("00000000-0000-0000-0000-000000000002", "second", "api.example.com", false)
	first := cert("00000000-0000-0000-0000-000000000001", "first", "api.example.com", false)

	got, _ := ResolveCertificate(domain.Rule{Domain: "api.example.com"}, []domain.Certificate{second, first})
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
}
