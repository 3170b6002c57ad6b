// Package migrations holds the revisions of the application schema
package migrations

import (
	"github.com/ksred/revchain/internal/migration"
)

// Revisions returns every application revision. Chain order comes from the
// DownRevision links, not from the order of this list.
func Revisions() []migration.Revision {
	return []migration.Revision{
		CreateUsers(),
		AddAPIKeys(),
		CreateSessions(),
		SessionsCreatedAtIndex(),
	}
}

// NewRegistry resolves the application chain
func NewRegistry() (*migration.Registry, error) {
	return migration.NewRegistry(Revisions()...)
}
