package postgres

import (
	"context"

	"github.com/classflow/live-session-service/internal/repositories"
	"gorm.io/gorm"
)

// GormRepository implements repositories.Repository on top of a *gorm.DB. The same
// type backs both the root connection and a transaction-bound repository.
type GormRepository struct {
	db         *gorm.DB
	session    *SessionPostgreSQL
	deck       *DeckPostgreSQL
	response   *ResponsePostgreSQL
	completion *CompletionPostgreSQL
}

func NewGormRepository(db *gorm.DB) repositories.Repository {
	return &GormRepository{
		db:         db,
		session:    NewSessionPostgreSQL(db),
		deck:       NewDeckPostgreSQL(db),
		response:   NewResponsePostgreSQL(db),
		completion: NewCompletionPostgreSQL(db),
	}
}

func (r *GormRepository) Session() repositories.SessionRepository {
	return r.session
}

func (r *GormRepository) Deck() repositories.DeckRepository {
	return r.deck
}

func (r *GormRepository) Response() repositories.ResponseRepository {
	return r.response
}

func (r *GormRepository) Completion() repositories.CompletionRepository {
	return r.completion
}

func (r *GormRepository) Transaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormRepository(tx))
	})
}
