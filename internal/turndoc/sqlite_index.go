package turndoc

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/pandora-run/pandora/pkg/models"
)

// SQLiteIndex is the relational recall index: turns(turn_number, profile,
// topic, intent, quality, turn_dir, created_at). Reads of prior-turn rows are
// best-effort; a missing or stale row never fails a turn.
type SQLiteIndex struct {
	db *sql.DB
}

// OpenSQLiteIndex opens (creating if necessary) a sqlite-backed index file.
func OpenSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite index: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	const schema = `
CREATE TABLE IF NOT EXISTS turns (
	turn_number INTEGER PRIMARY KEY,
	profile     TEXT NOT NULL,
	topic       TEXT NOT NULL DEFAULT '',
	intent      TEXT NOT NULL DEFAULT '',
	quality     REAL NOT NULL DEFAULT 0,
	turn_dir    TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_profile ON turns(profile);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite index: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

func (idx *SQLiteIndex) Close() error { return idx.db.Close() }

func (idx *SQLiteIndex) IndexTurn(ctx context.Context, rec models.TurnRecord) error {
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO turns (turn_number, profile, topic, intent, quality, turn_dir, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(turn_number) DO UPDATE SET
			topic=excluded.topic, intent=excluded.intent, quality=excluded.quality`,
		rec.TurnNumber, rec.Profile, rec.Topic, rec.Intent, rec.Quality, rec.TurnDir, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("index_turn: %w", err)
	}
	return nil
}

// IndexDocument is a no-op for the relational index; document text belongs to
// the vector index collections. It exists to satisfy Index.
func (idx *SQLiteIndex) IndexDocument(context.Context, string, string, string, map[string]string) error {
	return nil
}

// RecentTopics returns the most recent N distinct topics for a profile, used
// by the Query Analyzer's recent-turn-topics input.
func (idx *SQLiteIndex) RecentTopics(ctx context.Context, profile string, limit int) ([]string, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT DISTINCT topic FROM turns
		WHERE profile = ? AND topic != ''
		ORDER BY turn_number DESC LIMIT ?`, profile, limit)
	if err != nil {
		return nil, fmt.Errorf("recent_topics: %w", err)
	}
	defer rows.Close()
	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// PriorCitations returns turn directories of the highest-quality prior turns
// whose topic matches, for the Context Gatherer to cite. A LIKE match keeps
// near-duplicate topics ("mx master 3s price" vs "mx master 3s prices")
// findable without a vector lookup.
func (idx *SQLiteIndex) PriorCitations(ctx context.Context, profile, topic string, limit int) ([]string, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT turn_dir FROM turns
		WHERE profile = ? AND topic != '' AND (topic = ? OR topic LIKE ?)
		ORDER BY quality DESC, turn_number DESC LIMIT ?`,
		profile, topic, "%"+topic+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("prior_citations: %w", err)
	}
	defer rows.Close()
	var dirs []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dirs = append(dirs, d)
	}
	return dirs, rows.Err()
}
