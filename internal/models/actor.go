package models

import "github.com/uptrace/bun"

// PromoterProfile is the issuing actor. The authenticated user id maps to at
// most one active profile; an inactive profile cannot issue.
type PromoterProfile struct {
	bun.BaseModel `bun:"table:promoter_profiles"`

	ID        string `bun:"id,pk"`
	UserID    string `bun:"user_id,notnull"`
	ManagerID string `bun:"manager_id,notnull"`
	Active    bool   `bun:"active,notnull"`
}

// ScannerProfile is the redeeming actor at the door.
type ScannerProfile struct {
	bun.BaseModel `bun:"table:scanner_profiles"`

	ID        string `bun:"id,pk"`
	UserID    string `bun:"user_id,notnull"`
	ManagerID string `bun:"manager_id,notnull"`
	Active    bool   `bun:"active,notnull"`
}

// ManagerSetting holds per-manager presentation config, currently only the
// display label used for OTHER guests.
type ManagerSetting struct {
	bun.BaseModel `bun:"table:manager_settings"`

	ManagerID  string `bun:"manager_id,pk"`
	OtherLabel string `bun:"other_label,notnull"`
}

// DefaultOtherLabel is used until a manager customises the label.
const DefaultOtherLabel = "Other"
