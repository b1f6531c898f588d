package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/werkstatthub/signpad-server-go/internal/database"
	"github.com/werkstatthub/signpad-server-go/internal/model"
)

type PairingCodeRepository interface {
	FindByCode(ctx context.Context, code string) (*model.PairingCode, error)
	CountActiveByWorkstationID(ctx context.Context, workstationID string) (int, error)
	Create(ctx context.Context, params model.CreatePairingCodeParams) (*model.PairingCode, error)
	// Consume marks an unconsumed, unexpired code as used by the given device.
	// Returns false when the code does not exist, is already consumed or has
	// expired; exactly one concurrent caller can win.
	Consume(ctx context.Context, code string, usedBy string) (bool, error)
	// ConsumeAndCreateTablet redeems the code and inserts the tablet row in one
	// transaction. A failed insert rolls the consume back, so the code is never
	// burned without a tablet being minted. The bool reports whether this
	// caller won the code.
	ConsumeAndCreateTablet(ctx context.Context, code string, params model.CreateTabletParams) (*model.Tablet, bool, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type pairingCodeRepo struct {
	db *sqlx.DB
}

func NewPairingCodeRepository(db *sqlx.DB) PairingCodeRepository {
	return &pairingCodeRepo{db: db}
}

func (r *pairingCodeRepo) FindByCode(ctx context.Context, code string) (*model.PairingCode, error) {
	var pc model.PairingCode
	err := r.db.GetContext(ctx, &pc, `
		SELECT * FROM pairing_codes
		WHERE code = $1
	`, code)
	return HandleNotFound(&pc, err)
}

func (r *pairingCodeRepo) CountActiveByWorkstationID(ctx context.Context, workstationID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM pairing_codes
		WHERE workstation_id = $1 AND used_at IS NULL AND expires_at > NOW()
	`, workstationID)
	return count, err
}

func (r *pairingCodeRepo) Create(ctx context.Context, params model.CreatePairingCodeParams) (*model.PairingCode, error) {
	var pc model.PairingCode
	err := r.db.GetContext(ctx, &pc, `
		INSERT INTO pairing_codes (code, workstation_id, company_id, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.Code, params.WorkstationID, params.CompanyID, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &pc, nil
}

func (r *pairingCodeRepo) Consume(ctx context.Context, code string, usedBy string) (bool, error) {
	return consumeCode(ctx, r.db, code, usedBy)
}

func (r *pairingCodeRepo) ConsumeAndCreateTablet(ctx context.Context, code string, params model.CreateTabletParams) (*model.Tablet, bool, error) {
	var (
		tablet *model.Tablet
		won    bool
	)
	err := database.WithTx(ctx, r.db, func(tx database.DBTX) error {
		var err error
		won, err = consumeCode(ctx, tx, code, params.ID)
		if err != nil || !won {
			return err
		}
		tablet, err = insertTablet(ctx, tx, params)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return tablet, won, nil
}

// consumeCode is the at-most-once guarantee: concurrent redemptions race on
// the row update and only one sees rows affected.
func consumeCode(ctx context.Context, q database.DBTX, code string, usedBy string) (bool, error) {
	result, err := q.ExecContext(ctx, `
		UPDATE pairing_codes SET
			used_at = $2,
			used_by = $3
		WHERE code = $1 AND used_at IS NULL AND expires_at > NOW()
	`, code, time.Now(), usedBy)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *pairingCodeRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM pairing_codes
		WHERE expires_at < NOW() OR used_at IS NOT NULL
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
