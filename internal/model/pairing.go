package model

import "time"

type PairingCode struct {
	Code          string     `db:"code" json:"code"`
	WorkstationID string     `db:"workstation_id" json:"workstationId"`
	CompanyID     string     `db:"company_id" json:"companyId"`
	ExpiresAt     time.Time  `db:"expires_at" json:"expiresAt"`
	UsedAt        *time.Time `db:"used_at" json:"usedAt,omitempty"`
	UsedBy        *string    `db:"used_by" json:"usedBy,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
}

type CreatePairingCodeParams struct {
	Code          string
	WorkstationID string
	CompanyID     string
	ExpiresAt     time.Time
}
