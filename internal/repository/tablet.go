package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/werkstatthub/signpad-server-go/internal/database"
	"github.com/werkstatthub/signpad-server-go/internal/model"
)

// TabletRepository is the single writer of durable device state. The
// connection manager signals status changes through it, never around it.
type TabletRepository interface {
	FindByID(ctx context.Context, id string) (*model.Tablet, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.Tablet, error)
	FindByCompanyID(ctx context.Context, companyID string) ([]model.Tablet, error)
	Create(ctx context.Context, params model.CreateTabletParams) (*model.Tablet, error)
	UpdateStatus(ctx context.Context, id string, status model.TabletStatus) error
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
	Rename(ctx context.Context, id string, name string) error
}

type tabletRepo struct {
	db *sqlx.DB
}

func NewTabletRepository(db *sqlx.DB) TabletRepository {
	return &tabletRepo{db: db}
}

func (r *tabletRepo) FindByID(ctx context.Context, id string) (*model.Tablet, error) {
	var t model.Tablet
	err := r.db.GetContext(ctx, &t, `SELECT * FROM tablets WHERE id = $1`, id)
	return HandleNotFound(&t, err)
}

func (r *tabletRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Tablet, error) {
	var t model.Tablet
	err := r.db.GetContext(ctx, &t, `SELECT * FROM tablets WHERE token_hash = $1`, tokenHash)
	return HandleNotFound(&t, err)
}

func (r *tabletRepo) FindByCompanyID(ctx context.Context, companyID string) ([]model.Tablet, error) {
	var tablets []model.Tablet
	err := r.db.SelectContext(ctx, &tablets, `
		SELECT * FROM tablets
		WHERE company_id = $1
		ORDER BY created_at DESC
	`, companyID)
	return tablets, err
}

func (r *tabletRepo) Create(ctx context.Context, params model.CreateTabletParams) (*model.Tablet, error) {
	return insertTablet(ctx, r.db, params)
}

// insertTablet is shared with the pairing redemption, which mints the tablet
// inside the code-consume transaction.
func insertTablet(ctx context.Context, q database.DBTX, params model.CreateTabletParams) (*model.Tablet, error) {
	var t model.Tablet
	err := q.GetContext(ctx, &t, `
		INSERT INTO tablets (id, company_id, location_id, name, workstation_id, status, token_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`, params.ID, params.CompanyID, params.LocationID, params.Name, params.WorkstationID,
		model.TabletStatusPaired, params.TokenHash)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tabletRepo) UpdateStatus(ctx context.Context, id string, status model.TabletStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tablets SET status = $2 WHERE id = $1
	`, id, status)
	return err
}

func (r *tabletRepo) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tablets SET last_seen_at = $2 WHERE id = $1
	`, id, at)
	return err
}

func (r *tabletRepo) Rename(ctx context.Context, id string, name string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tablets SET name = $2 WHERE id = $1
	`, id, name)
	return err
}
