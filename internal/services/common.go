package services

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/opencircles/backend/internal/domain"
)

// lockForUpdate adds a row-level FOR UPDATE lock on dialects that support it.
// SQLite has no FOR UPDATE syntax and serializes writers at the connection
// level, so the clause is skipped there.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// infraErr wraps an unexpected persistence failure into the infrastructure
// error kind so it stays distinguishable from the domain taxonomy.
func infraErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrInfrastructure, op, err)
}
