package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/mnemo-labs/mnemod/store"
)

func (d *DB) UpsertSystemSetting(ctx context.Context, upsert *store.SystemSetting) (*store.SystemSetting, error) {
	stmt := `INSERT INTO system_setting (name, value)
		VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`
	if _, err := d.db.ExecContext(ctx, stmt, upsert.Name, upsert.Value); err != nil {
		return nil, errors.Wrap(err, "failed to upsert system setting")
	}
	return upsert, nil
}

func (d *DB) GetSystemSetting(ctx context.Context, name string) (*store.SystemSetting, error) {
	var setting store.SystemSetting
	err := d.db.QueryRowContext(ctx,
		"SELECT name, value FROM system_setting WHERE name = ?", name,
	).Scan(&setting.Name, &setting.Value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get system setting")
	}
	return &setting, nil
}
