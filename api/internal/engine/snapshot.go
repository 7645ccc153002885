package engine

import "github.com/irgordon/vela/api/internal/core/domain"

// Snapshot is the read-only slice of database state the engine renders from.
// The data layer owns persistence and mutation; the engine only consumes.
type Snapshot struct {
	Backends     []domain.Backend
	Rules        []domain.Rule
	Certificates []domain.Certificate
	Settings     domain.ProxySettings
}
