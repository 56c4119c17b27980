package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dkp-ledger/internal/constants"
	"dkp-ledger/internal/domain"

	"github.com/rs/zerolog"
)

// SnapshotRepository persists the last-good snapshot so a restarted
// process can serve rows before its first recompute finishes. Memory
// stays authoritative; this is a durability mirror, and write failures
// are the caller's to downgrade to warnings.
type SnapshotRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSnapshotRepository(sqlDB *sql.DB, logger zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{db: sqlDB, logger: logger}
}

// Save replaces the stored snapshot whole, inside one transaction.
// Balances are not stored; they are re-derived on load.
func (r *SnapshotRepository) Save(ctx context.Context, snap *domain.Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"snapshot_meta", "snapshot_characters", "snapshot_accounts", "snapshot_name_links"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshot_meta (id, fetched_at, max_loot_id, period_30d, period_60d)
		 VALUES (1, ?, ?, ?, ?)`,
		snap.FetchedAt, snap.MaxLootID, snap.Periods.Days30, snap.Periods.Days60)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot meta: %w", err)
	}

	for i := 0; i < len(snap.Characters); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(snap.Characters) {
			end = len(snap.Characters)
		}
		for pos := i; pos < end; pos++ {
			row := snap.Characters[pos]
			_, err := tx.ExecContext(ctx,
				`INSERT INTO snapshot_characters
				 (position, key, name, class, level, earned, spent, earned_30d, earned_60d, last_activity, on_allow_list, inactive)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				pos, row.Key, row.Name, row.Class, row.Level,
				row.Earned, row.Spent, row.Earned30d, row.Earned60d,
				nullableTime(row.LastActivity), row.OnAllowList, row.Inactive)
			if err != nil {
				return fmt.Errorf("failed to insert character row %s: %w", row.Key, err)
			}
		}
	}

	for pos, row := range snap.Accounts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot_accounts
			 (position, account_id, display_name, earned, spent, earned_30d, earned_60d, last_activity, on_allow_list, inactive)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pos, row.AccountID, row.DisplayName,
			row.Earned, row.Spent, row.Earned30d, row.Earned60d,
			nullableTime(row.LastActivity), row.OnAllowList, row.Inactive)
		if err != nil {
			return fmt.Errorf("failed to insert account row %s: %w", row.AccountID, err)
		}
	}

	for name, charID := range snap.NameToID {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO snapshot_name_links (name, char_id) VALUES (?, ?)", name, charID); err != nil {
			return fmt.Errorf("failed to insert name link %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	r.logger.Debug().
		Int("characters", len(snap.Characters)).
		Int("accounts", len(snap.Accounts)).
		Msg("snapshot persisted")
	return nil
}

// Load returns the stored snapshot, or (nil, nil) when none exists.
func (r *SnapshotRepository) Load(ctx context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{NameToID: make(map[string]string)}

	err := r.db.QueryRowContext(ctx,
		"SELECT fetched_at, max_loot_id, period_30d, period_60d FROM snapshot_meta WHERE id = 1").
		Scan(&snap.FetchedAt, &snap.MaxLootID, &snap.Periods.Days30, &snap.Periods.Days60)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot meta: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT key, name, class, level, earned, spent, earned_30d, earned_60d, last_activity, on_allow_list, inactive
		 FROM snapshot_characters ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to load character rows: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var row domain.LedgerRow
		var last sql.NullTime
		if err := rows.Scan(&row.Key, &row.Name, &row.Class, &row.Level,
			&row.Earned, &row.Spent, &row.Earned30d, &row.Earned60d,
			&last, &row.OnAllowList, &row.Inactive); err != nil {
			return nil, fmt.Errorf("failed to scan character row: %w", err)
		}
		if last.Valid {
			t := last.Time
			row.LastActivity = &t
		}
		row.Balance = row.Earned - row.Spent
		snap.Characters = append(snap.Characters, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read character rows: %w", err)
	}

	accRows, err := r.db.QueryContext(ctx,
		`SELECT account_id, display_name, earned, spent, earned_30d, earned_60d, last_activity, on_allow_list, inactive
		 FROM snapshot_accounts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to load account rows: %w", err)
	}
	defer accRows.Close()
	for accRows.Next() {
		var row domain.AccountRow
		var last sql.NullTime
		if err := accRows.Scan(&row.AccountID, &row.DisplayName,
			&row.Earned, &row.Spent, &row.Earned30d, &row.Earned60d,
			&last, &row.OnAllowList, &row.Inactive); err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		if last.Valid {
			t := last.Time
			row.LastActivity = &t
		}
		row.Balance = row.Earned - row.Spent
		snap.Accounts = append(snap.Accounts, row)
	}
	if err := accRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read account rows: %w", err)
	}

	linkRows, err := r.db.QueryContext(ctx, "SELECT name, char_id FROM snapshot_name_links")
	if err != nil {
		return nil, fmt.Errorf("failed to load name links: %w", err)
	}
	defer linkRows.Close()
	for linkRows.Next() {
		var name, charID string
		if err := linkRows.Scan(&name, &charID); err != nil {
			return nil, fmt.Errorf("failed to scan name link: %w", err)
		}
		snap.NameToID[name] = charID
	}
	if err := linkRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read name links: %w", err)
	}

	r.logger.Info().
		Time("fetched_at", snap.FetchedAt).
		Int("characters", len(snap.Characters)).
		Msg("snapshot restored from database")
	return snap, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
