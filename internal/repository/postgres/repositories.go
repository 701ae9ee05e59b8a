package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups the identity-side PostgreSQL repositories. The audit
// repository is wired separately because it lives on its own pool.
type Repositories struct {
	Users    *UserRepository
	Sessions *SessionRepository
}

// NewRepositories wires the identity repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:    NewUserRepository(pool),
		Sessions: NewSessionRepository(pool),
	}
}
