package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/werkstatthub/signpad-server-go/internal/model"
)

type WorkstationRepository interface {
	FindByID(ctx context.Context, id string) (*model.Workstation, error)
	// Upsert registers a workstation on its first pairing request. Name is
	// the only mutable column afterwards.
	Upsert(ctx context.Context, id, companyID, name string) (*model.Workstation, error)
	Rename(ctx context.Context, id string, name string) error
}

type workstationRepo struct {
	db *sqlx.DB
}

func NewWorkstationRepository(db *sqlx.DB) WorkstationRepository {
	return &workstationRepo{db: db}
}

func (r *workstationRepo) FindByID(ctx context.Context, id string) (*model.Workstation, error) {
	var ws model.Workstation
	err := r.db.GetContext(ctx, &ws, `SELECT * FROM workstations WHERE id = $1`, id)
	return HandleNotFound(&ws, err)
}

func (r *workstationRepo) Upsert(ctx context.Context, id, companyID, name string) (*model.Workstation, error) {
	var ws model.Workstation
	err := r.db.GetContext(ctx, &ws, `
		INSERT INTO workstations (id, company_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		RETURNING *
	`, id, companyID, name)
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *workstationRepo) Rename(ctx context.Context, id string, name string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE workstations SET name = $2 WHERE id = $1
	`, id, name)
	return err
}
