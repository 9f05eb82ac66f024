package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"chedauth/core"

	_ "modernc.org/sqlite"
)

//go:embed schema/sqlite/schema.sql
var sqliteSchema string

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo := &SQLiteRepository{db: db}

	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) initSchema() error {
	_, err := r.db.Exec(sqliteSchema)
	return err
}

func (r *SQLiteRepository) UpsertUser(ctx context.Context, user *core.User) error {
	// Only the display fields move on conflict; created_at is written once.
	query := `
		INSERT INTO users (user_id, user_name, user_image, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			user_name = excluded.user_name,
			user_image = excluded.user_image,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		user.UserID,
		user.UserName,
		user.UserImage,
		user.CreatedAt.Unix(),
		user.UpdatedAt.Unix(),
	)

	return err
}

func (r *SQLiteRepository) FindByUserID(ctx context.Context, userID string) (*core.User, error) {
	query := `
		SELECT user_id, user_name, user_image, created_at, updated_at
		FROM users
		WHERE user_id = ?
	`

	var user core.User
	var userImage sql.NullString
	var createdAt, updatedAt int64

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID,
		&user.UserName,
		&userImage,
		&createdAt,
		&updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	user.UserImage = userImage.String
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

func (r *SQLiteRepository) DeleteUser(ctx context.Context, userID string) error {
	query := `DELETE FROM users WHERE user_id = ?`

	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return core.ErrNotFound
	}

	return nil
}
