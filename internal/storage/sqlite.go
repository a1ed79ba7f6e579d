package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jwebster45206/npc-quest-engine/internal/storage/migrations"
	"github.com/jwebster45206/npc-quest-engine/pkg/quest"
	"github.com/jwebster45206/npc-quest-engine/pkg/state"
)

const migrationTable = "schema_migrations"

// SQLiteStorage persists interactions in a single-file SQLite database, for
// deployments that want durability without running Redis. The version
// column backs compare-and-swap; interaction_versions keeps the last version
// issued per user after its row is deleted.
type SQLiteStorage struct {
	sqlDB  *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStorage implements Storage interface
var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens the database at path and applies migrations.
func NewSQLiteStorage(path string, logger *slog.Logger) (*SQLiteStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite db: %w", ErrUnavailable, err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: ping sqlite db: %w", ErrUnavailable, err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStorage{sqlDB: sqlDB, logger: logger}, nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: sqlite ping failed: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteStorage) Backend() string { return "sqlite" }

func (s *SQLiteStorage) Durable() bool { return true }

type rowScanner interface {
	Scan(dest ...any) error
}

const selectInteraction = `
SELECT user_id, quest_id, npc_name, current_step, awaiting_reaction, expected_emoji, version, updated_at
FROM interactions
WHERE user_id = ?
`

func scanInteraction(row rowScanner) (*state.Interaction, error) {
	var (
		in        state.Interaction
		awaiting  int
		emoji     string
		updatedAt int64
	)
	err := row.Scan(&in.UserID, &in.QuestID, &in.NPCName, &in.CurrentStep, &awaiting, &emoji, &in.Version, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: scan interaction: %w", ErrUnavailable, err)
	}
	in.AwaitingReaction = awaiting != 0
	in.ExpectedEmoji = quest.Emoji(emoji)
	in.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &in, nil
}

func (s *SQLiteStorage) GetInteraction(ctx context.Context, userID string) (*state.Interaction, error) {
	in, err := scanInteraction(s.sqlDB.QueryRowContext(ctx, selectInteraction, userID))
	if err != nil {
		s.logger.Error("Failed to load interaction", "user_id", userID, "error", err)
		return nil, err
	}
	return in, nil
}

func (s *SQLiteStorage) SaveInteraction(ctx context.Context, in *state.Interaction) (*state.Interaction, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: nil record", state.ErrInvalidInteraction)
	}
	return s.update(ctx, in.UserID, saveFunc(in))
}

func (s *SQLiteStorage) PatchInteraction(ctx context.Context, userID string, p state.Patch) (*state.Interaction, error) {
	return s.update(ctx, userID, patchFunc(userID, p))
}

func (s *SQLiteStorage) ClearInteraction(ctx context.Context, userID string) error {
	if _, err := s.update(ctx, userID, clearFunc); err != nil {
		s.logger.Error("Failed to clear interaction", "user_id", userID, "error", err)
		return err
	}
	return nil
}

func (s *SQLiteStorage) SwapInteraction(ctx context.Context, userID string, expectedVersion int64, next *state.Interaction) (*state.Interaction, error) {
	return s.update(ctx, userID, swapFunc(expectedVersion, next))
}

// update reads, computes and writes inside one immediate transaction, so
// no other writer can interleave.
func (s *SQLiteStorage) update(ctx context.Context, userID string, fn updateFunc) (*state.Interaction, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %w", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanInteraction(tx.QueryRowContext(ctx, selectInteraction, userID))
	if err != nil {
		return nil, err
	}
	var floor int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM interaction_versions WHERE user_id = ?`, userID).Scan(&floor)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: read interaction version: %w", ErrUnavailable, err)
	}
	next, err := fn(cur.Clone())
	if err != nil {
		return nil, err
	}
	last := lastVersion(cur, floor)
	stored, err := prepare(userID, last, next)
	if err != nil {
		return nil, err
	}
	if v := max(last, versionOf(stored)); v > floor {
		_, err := tx.ExecContext(ctx, `
INSERT INTO interaction_versions (user_id, version) VALUES (?, ?)
ON CONFLICT(user_id) DO UPDATE SET version = excluded.version
`, userID, v)
		if err != nil {
			return nil, fmt.Errorf("%w: write interaction version: %w", ErrUnavailable, err)
		}
	}

	if stored == nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM interactions WHERE user_id = ?`, userID); err != nil {
			return nil, fmt.Errorf("%w: delete interaction: %w", ErrUnavailable, err)
		}
	} else {
		awaiting := 0
		if stored.AwaitingReaction {
			awaiting = 1
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO interactions (
	user_id,
	quest_id,
	npc_name,
	current_step,
	awaiting_reaction,
	expected_emoji,
	version,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
	quest_id = excluded.quest_id,
	npc_name = excluded.npc_name,
	current_step = excluded.current_step,
	awaiting_reaction = excluded.awaiting_reaction,
	expected_emoji = excluded.expected_emoji,
	version = excluded.version,
	updated_at = excluded.updated_at
`,
			stored.UserID,
			stored.QuestID,
			stored.NPCName,
			stored.CurrentStep,
			awaiting,
			string(stored.ExpectedEmoji),
			stored.Version,
			stored.UpdatedAt.UnixMilli(),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: write interaction: %w", ErrUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit interaction: %w", ErrUnavailable, err)
	}
	return stored, nil
}

// applyMigrations executes embedded migrations at most once per file.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var sqlFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			sqlFiles = append(sqlFiles, entry.Name())
		}
	}
	sort.Strings(sqlFiles)

	if _, err := sqlDB.Exec(`
CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range sqlFiles {
		var found int
		err := sqlDB.QueryRow("SELECT 1 FROM "+migrationTable+" WHERE name = ?", file).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", file, err)
		}

		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		upSQL := extractUpMigration(string(content))
		if strings.TrimSpace(upSQL) == "" {
			continue
		}

		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration transaction %s: %w", file, err)
		}
		if _, err := tx.Exec(upSQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO "+migrationTable+" (name, applied_at) VALUES (?, ?)",
			file,
			time.Now().UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}

	return nil
}

// extractUpMigration returns the SQL in the -- +migrate Up section.
func extractUpMigration(content string) string {
	upIdx := strings.Index(content, "-- +migrate Up")
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, "-- +migrate Down")
	if downIdx == -1 {
		return content[upIdx+len("-- +migrate Up"):]
	}
	return content[upIdx+len("-- +migrate Up") : downIdx]
}
