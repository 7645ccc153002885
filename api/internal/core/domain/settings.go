package domain

import "context"

// ProxySettings is the opaque key/value bag of global proxy tuning knobs
// (worker connections, body size limits, timeouts). The renderer reads the
// keys it knows about and ignores the rest.
type ProxySettings map[string]string

// Get returns the value for key, or fallback when the key is absent or empty.
func (s ProxySettings) Get(key, fallback string) string {
	if v, ok := s[key]; ok && v != "" {
		return v
	}
	return fallback
}

type SettingsRepository interface {
	GetAll(ctx context.Context) (ProxySettings, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
