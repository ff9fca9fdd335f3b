package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"github.com/orbitwire/newsclean/internal/domain"
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 5
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute
	// DefaultPingTimeout is the default timeout for ping operations
	DefaultPingTimeout = 5 * time.Second
)

const ruleVersionKey = "rule_set_version"

// Tags are stored as a JSON array string so the same schema works on
// sqlite and postgres.
const schema = `
CREATE TABLE IF NOT EXISTS articles (
	id           TEXT PRIMARY KEY,
	raw_text     TEXT NOT NULL,
	tags         TEXT NOT NULL DEFAULT '[]',
	status       TEXT NOT NULL DEFAULT 'raw',
	rule_version BIGINT NOT NULL DEFAULT 0,
	needs_review BOOLEAN NOT NULL DEFAULT FALSE,
	sent         BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMP NOT NULL,
	created_day  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_status_version ON articles (status, rule_version);
CREATE INDEX IF NOT EXISTS idx_articles_created_day ON articles (created_day);

CREATE TABLE IF NOT EXISTS rules (
	id         BIGINT PRIMARY KEY,
	pattern    TEXT NOT NULL,
	tag        TEXT NOT NULL,
	enabled    BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS engine_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Config holds database configuration.
type Config struct {
	// Driver is "sqlite3" or "postgres".
	Driver string
	// DSN is the driver-specific connection string (file path for sqlite).
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLStore is a sqlx-backed ArticleStore and rule persister. Queries use
// `?` placeholders rebound per driver, so the same code runs on sqlite
// (single-node deployments, like the original panel) and postgres.
type SQLStore struct {
	db *sqlx.DB
}

// Open connects to the database, applies pool settings, verifies the
// connection, and bootstraps the schema.
func Open(cfg Config) (*SQLStore, error) {
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = DefaultMaxOpenConns
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = DefaultMaxIdleConns
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = DefaultConnMaxLifetime
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultPingTimeout)
	defer cancel()
	if pingErr := db.PingContext(ctx); pingErr != nil {
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	if _, err = db.Exec(schema); err != nil {
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Insert stores a newly ingested article.
func (s *SQLStore) Insert(ctx context.Context, article *domain.Article) error {
	query := s.db.Rebind(`
		INSERT INTO articles (id, raw_text, tags, status, rule_version, needs_review, sent, created_at, created_day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	tags, err := json.Marshal(emptyIfNil(article.Tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, query,
		article.ID,
		article.RawText,
		string(tags),
		article.Status,
		article.RuleVersion,
		article.NeedsReview,
		article.Sent,
		article.CreatedAt.UTC(),
		article.CreatedAt.UTC().Format(dateLayout),
	)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// Get returns one article by id.
func (s *SQLStore) Get(ctx context.Context, id string) (*domain.Article, error) {
	query := s.db.Rebind(`
		SELECT id, raw_text, tags, status, rule_version, needs_review, sent, created_at
		FROM articles WHERE id = ?`)

	art, err := scanArticle(s.db.QueryRowxContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get article: %w", err)
	}
	return art, nil
}

// UpdateClassification persists a classification result.
func (s *SQLStore) UpdateClassification(ctx context.Context, id string, tags []string, status domain.Status, ruleVersion int64) error {
	encoded, err := json.Marshal(emptyIfNil(tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	// A transition into cleaned resets sent so the delivery path picks
	// the article up again.
	query := s.db.Rebind(`
		UPDATE articles
		SET tags = ?, status = ?, rule_version = ?, needs_review = FALSE,
		    sent = CASE WHEN ? = 'cleaned' AND status <> 'cleaned' THEN FALSE ELSE sent END
		WHERE id = ?`)

	res, err := s.db.ExecContext(ctx, query, string(encoded), status, ruleVersion, status, id)
	if err != nil {
		return fmt.Errorf("update classification: %w", err)
	}
	return requireRow(res, id)
}

// MarkNeedsReview flags an article for manual inspection.
func (s *SQLStore) MarkNeedsReview(ctx context.Context, id string) error {
	query := s.db.Rebind(`UPDATE articles SET needs_review = TRUE WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark needs review: %w", err)
	}
	return requireRow(res, id)
}

// MarkSent records a downstream delivery.
func (s *SQLStore) MarkSent(ctx context.Context, id string) error {
	query := s.db.Rebind(`UPDATE articles SET sent = TRUE WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return requireRow(res, id)
}

// ListClassifiedBefore returns ids of classified articles stale relative
// to the given rule version.
func (s *SQLStore) ListClassifiedBefore(ctx context.Context, version int64) ([]string, error) {
	query := s.db.Rebind(`
		SELECT id FROM articles
		WHERE status <> 'raw' AND rule_version < ?
		ORDER BY created_at ASC, id ASC`)

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, version); err != nil {
		return nil, fmt.Errorf("list stale articles: %w", err)
	}
	return ids, nil
}

// ListCleanedByDate returns cleaned articles created on the given day.
func (s *SQLStore) ListCleanedByDate(ctx context.Context, date string) ([]*domain.Article, error) {
	query := s.db.Rebind(`
		SELECT id, raw_text, tags, status, rule_version, needs_review, sent, created_at
		FROM articles
		WHERE status = 'cleaned' AND created_day = ?
		ORDER BY created_at ASC, id ASC`)

	return s.selectArticles(ctx, query, date)
}

// ListUnsentCleaned returns cleaned articles awaiting delivery.
func (s *SQLStore) ListUnsentCleaned(ctx context.Context) ([]*domain.Article, error) {
	query := `
		SELECT id, raw_text, tags, status, rule_version, needs_review, sent, created_at
		FROM articles
		WHERE status = 'cleaned' AND sent = FALSE
		ORDER BY created_at ASC, id ASC`

	return s.selectArticles(ctx, query)
}

// ListAll returns every stored article.
func (s *SQLStore) ListAll(ctx context.Context) ([]*domain.Article, error) {
	query := `
		SELECT id, raw_text, tags, status, rule_version, needs_review, sent, created_at
		FROM articles ORDER BY id ASC`

	return s.selectArticles(ctx, query)
}

func (s *SQLStore) selectArticles(ctx context.Context, query string, args ...any) ([]*domain.Article, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []*domain.Article
	for rows.Next() {
		art, scanErr := scanArticle(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan article: %w", scanErr)
		}
		out = append(out, art)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return out, nil
}

// SaveRule upserts a rule together with the rule-set version it produces,
// in one transaction. Satisfies rules.Persister.
func (s *SQLStore) SaveRule(ctx context.Context, rule *domain.Rule, version int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	upsert := tx.Rebind(`
		INSERT INTO rules (id, pattern, tag, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			pattern = excluded.pattern,
			tag = excluded.tag,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`)

	if _, err = tx.ExecContext(ctx, upsert,
		rule.ID, rule.Pattern, rule.Tag, rule.Enabled,
		rule.CreatedAt.UTC(), rule.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("upsert rule: %w", err)
	}

	if err = saveVersionTx(ctx, tx, version); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// DeleteRule removes a rule and records the new rule-set version.
// Satisfies rules.Persister.
func (s *SQLStore) DeleteRule(ctx context.Context, id int64, version int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM rules WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if err = saveVersionTx(ctx, tx, version); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LoadRules returns all persisted rules and the stored rule-set version,
// for seeding the in-memory store at boot.
func (s *SQLStore) LoadRules(ctx context.Context) ([]domain.Rule, int64, error) {
	var rules []domain.Rule
	query := `
		SELECT id, pattern, tag, enabled, created_at, updated_at
		FROM rules ORDER BY id ASC`
	if err := s.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, 0, fmt.Errorf("load rules: %w", err)
	}

	var raw string
	err := s.db.GetContext(ctx, &raw, s.db.Rebind(`SELECT value FROM engine_meta WHERE key = ?`), ruleVersionKey)
	if errors.Is(err, sql.ErrNoRows) {
		return rules, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load rule version: %w", err)
	}

	var version int64
	if _, err = fmt.Sscanf(raw, "%d", &version); err != nil {
		return nil, 0, fmt.Errorf("parse rule version %q: %w", raw, err)
	}
	return rules, version, nil
}

func saveVersionTx(ctx context.Context, tx *sqlx.Tx, version int64) error {
	query := tx.Rebind(`
		INSERT INTO engine_meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`)
	if _, err := tx.ExecContext(ctx, query, ruleVersionKey, fmt.Sprintf("%d", version)); err != nil {
		return fmt.Errorf("save rule version: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*domain.Article, error) {
	var (
		art  domain.Article
		tags string
	)
	if err := row.Scan(
		&art.ID,
		&art.RawText,
		&tags,
		&art.Status,
		&art.RuleVersion,
		&art.NeedsReview,
		&art.Sent,
		&art.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &art.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return &art, nil
}

func requireRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func emptyIfNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
