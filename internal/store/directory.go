package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	repository "github.com/goliatone/go-repository-bun"
)

// Actor is one row of the actor directory.
type Actor struct {
	bun.BaseModel `bun:"table:actor_directory,alias:ad"`

	ID         uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Code       string    `bun:"code,notnull,unique" json:"code"`
	Name       string    `bun:"name" json:"name"`
	ParentCode string    `bun:"parent_code,nullzero" json:"parent_code,omitempty"`
	IsAdmin    bool      `bun:"is_admin,notnull,default:false" json:"is_admin"`
}

// Directory answers hierarchy questions from the actor_directory table.
type Directory struct {
	repo repository.Repository[*Actor]
}

// Directory returns the actor directory backed by s.
func (s *Store) Directory() *Directory {
	return &Directory{
		repo: repository.NewRepository[*Actor](s.db, repository.ModelHandlers[*Actor]{
			NewRecord: func() *Actor { return &Actor{} },
			GetID: func(a *Actor) uuid.UUID {
				if a == nil {
					return uuid.Nil
				}
				return a.ID
			},
			SetID: func(a *Actor, id uuid.UUID) {
				a.ID = id
			},
			GetIdentifier: func() string {
				return "code"
			},
		}),
	}
}

func byCode(code string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("ad.code = ?", code)
	}
}

// IsAdmin reports whether code carries the admin flag. Unknown codes are
// not admins.
func (d *Directory) IsAdmin(ctx context.Context, code string) (bool, error) {
	n, err := d.repo.Count(ctx, byCode(code), func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("ad.is_admin = ?", true)
	})
	if err != nil {
		return false, fmt.Errorf("lookup admin flag of %q: %w", code, classify(err))
	}
	return n > 0, nil
}

// DirectSubordinates lists the codes whose parent is code.
func (d *Directory) DirectSubordinates(ctx context.Context, code string) ([]string, error) {
	actors, _, err := d.repo.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("ad.parent_code = ?", code).OrderExpr("ad.code ASC")
	})
	if err != nil {
		return nil, fmt.Errorf("list subordinates of %q: %w", code, classify(err))
	}
	codes := make([]string, 0, len(actors))
	for _, a := range actors {
		codes = append(codes, a.Code)
	}
	return codes, nil
}

// CreateDirectory creates the actor_directory table when missing.
func (s *Store) CreateDirectory(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*Actor)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create actor directory: %w", classify(err))
	}
	return nil
}

// SaveActors inserts actors, assigning IDs to those without one.
func (s *Store) SaveActors(ctx context.Context, actors ...*Actor) error {
	if len(actors) == 0 {
		return nil
	}
	for _, a := range actors {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
	}
	if _, err := s.db.NewInsert().Model(&actors).Exec(ctx); err != nil {
		return fmt.Errorf("save actors: %w", classify(err))
	}
	return nil
}
