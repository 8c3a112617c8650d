package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/xaenox/commission-scout/internal/models"
	"go.uber.org/zap"
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

// PostgresBackend stores the collection in the stored_posts table; seq
// keeps append order.
type PostgresBackend struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresBackend(config DatabaseConfig, logger *zap.Logger) (*PostgresBackend, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	backend := &PostgresBackend{db: db, logger: logger}
	if err := backend.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL store", zap.String("host", config.Host), zap.String("db", config.DBName))
	return backend, nil
}

func newPostgresBackendWithDB(db *sql.DB, logger *zap.Logger) *PostgresBackend {
	return &PostgresBackend{db: db, logger: logger}
}

func (b *PostgresBackend) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := b.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Load(ctx context.Context) ([]models.StoredPost, error) {
	query := `
		SELECT id, url, text, author, web_url, posted_at,
		       is_commission, confidence, reason, content_fingerprint, classified_at
		FROM stored_posts
		ORDER BY seq`

	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying stored posts: %w", err)
	}
	defer rows.Close()

	posts := []models.StoredPost{}
	for rows.Next() {
		var p models.StoredPost
		err := rows.Scan(
			&p.ID,
			&p.URL,
			&p.Text,
			&p.Author,
			&p.WebURL,
			&p.PostedAt,
			&p.AI.IsCommission,
			&p.AI.Confidence,
			&p.AI.Reason,
			&p.AI.Fingerprint,
			&p.AI.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning stored post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stored posts: %w", err)
	}
	return posts, nil
}

// Save replaces the table contents with posts in one transaction.
func (b *PostgresBackend) Save(ctx context.Context, posts []models.StoredPost) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stored_posts`); err != nil {
		return fmt.Errorf("error clearing stored posts: %w", err)
	}

	query := `
		INSERT INTO stored_posts (id, url, text, author, web_url, posted_at,
			is_commission, confidence, reason, content_fingerprint, classified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	for _, p := range posts {
		_, err := tx.ExecContext(ctx, query,
			p.ID,
			p.URL,
			p.Text,
			p.Author,
			p.WebURL,
			p.PostedAt,
			p.AI.IsCommission,
			p.AI.Confidence,
			p.AI.Reason,
			p.AI.Fingerprint,
			p.AI.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("error inserting stored post %s: %w", p.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing stored posts: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Close() error {
	return b.db.Close()
}
