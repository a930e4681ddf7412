package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/xaenox/wa-bot/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(ctx context.Context, config DatabaseConfig) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage, err := NewPostgresStorageFromDB(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return storage, nil
}

// NewPostgresStorageFromDB wraps an already opened database and applies the schema
func NewPostgresStorageFromDB(ctx context.Context, db *sql.DB) (*PostgresStorage, error) {
	storage := &PostgresStorage{db: db}

	if err := storage.initializeSchema(ctx); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) GetSession(ctx context.Context, userID models.UserID) (models.SessionID, error) {
	query := `
		SELECT session_id
		FROM assistant_sessions
		WHERE user_id = $1`

	var sessionID string
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("error querying session: %w", err)
	}

	return sessionID, nil
}

func (s *PostgresStorage) SaveSession(ctx context.Context, userID models.UserID, sessionID models.SessionID) error {
	query := `
		INSERT INTO assistant_sessions (user_id, session_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET session_id = EXCLUDED.session_id, created_at = EXCLUDED.created_at`

	if _, err := s.db.ExecContext(ctx, query, userID, sessionID); err != nil {
		return fmt.Errorf("error saving session: %w", err)
	}

	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
