package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-guestpass/internal/models"
)

// OtherLabel returns the manager's display label for OTHER guests, falling
// back to the default when no setting row exists yet.
func (d *DB) OtherLabel(ctx context.Context, managerID string) (string, error) {
	var setting models.ManagerSetting
	err := d.Bun.NewSelect().
		Model(&setting).
		Where("manager_id = ?", managerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultOtherLabel, nil
		}
		return "", fmt.Errorf("select manager setting: %w", err)
	}
	return setting.OtherLabel, nil
}

// UpsertOtherLabel stores the manager's OTHER display label.
func (d *DB) UpsertOtherLabel(ctx context.Context, managerID, label string) error {
	setting := models.ManagerSetting{
		ManagerID:  managerID,
		OtherLabel: label,
	}
	_, err := d.Bun.NewInsert().
		Model(&setting).
		On("CONFLICT (manager_id) DO UPDATE").
		Set("other_label = EXCLUDED.other_label").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert manager setting: %w", err)
	}
	return nil
}
