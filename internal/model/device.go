package model

import "time"

type TabletStatus string

const (
	TabletStatusUnpaired TabletStatus = "UNPAIRED"
	TabletStatusPaired   TabletStatus = "PAIRED"
	TabletStatusOnline   TabletStatus = "ONLINE"
	TabletStatusOffline  TabletStatus = "OFFLINE"
)

// Tablet is the durable record of a signature pad. The device token itself is
// handed out once at pairing time; only its sha256 digest is stored.
type Tablet struct {
	ID            string       `db:"id" json:"id"`
	CompanyID     string       `db:"company_id" json:"companyId"`
	LocationID    *string      `db:"location_id" json:"locationId,omitempty"`
	Name          string       `db:"name" json:"name"`
	WorkstationID *string      `db:"workstation_id" json:"workstationId,omitempty"`
	Status        TabletStatus `db:"status" json:"status"`
	TokenHash     string       `db:"token_hash" json:"-"`
	LastSeenAt    *time.Time   `db:"last_seen_at" json:"lastSeenAt,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"createdAt"`
}

type CreateTabletParams struct {
	ID            string
	CompanyID     string
	LocationID    *string
	Name          string
	WorkstationID *string
	TokenHash     string
}

type Workstation struct {
	ID        string    `db:"id" json:"id"`
	CompanyID string    `db:"company_id" json:"companyId"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// TabletCredentials is returned once, on successful pairing-code redemption.
type TabletCredentials struct {
	DeviceID           string `json:"deviceId"`
	DeviceToken        string `json:"deviceToken"`
	ConnectionEndpoint string `json:"connectionEndpoint"`
}
