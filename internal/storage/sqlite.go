package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cubedrop/backend/internal/domain"
)

// formatTimestamp converts time.Time to SQLite-compatible UTC ISO8601 string
// The Z suffix ensures the Go sqlite driver parses it back as UTC
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse("2006-01-02T15:04:05Z", s)
	return t
}

//go:embed schema.sql
var schema string

// Store provides database access
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Enable foreign keys, WAL mode for better performance, and busy timeout for concurrency
	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	// Create tables
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Ticket methods ---

// PutTicket creates or replaces the ticket for a connection. The primary key
// on connection_id enforces at most one outstanding ticket per connection;
// a resubmit supersedes the previous row.
func (s *Store) PutTicket(ctx context.Context, t *domain.Ticket) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (connection_id, ticket_id, player_id, skill, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(connection_id) DO UPDATE SET
			ticket_id = excluded.ticket_id,
			player_id = excluded.player_id,
			skill = excluded.skill,
			created_at = excluded.created_at
	`, t.ConnectionID, t.TicketID, t.PlayerID, t.Skill, formatTimestamp(time.Now()))
	return err
}

// GetTicket returns the outstanding ticket for a connection, or
// domain.ErrNotFound
func (s *Store) GetTicket(ctx context.Context, connectionID string) (*domain.Ticket, error) {
	var t domain.Ticket
	err := s.db.QueryRowContext(ctx, `
		SELECT connection_id, ticket_id, player_id, skill FROM tickets WHERE connection_id = ?
	`, connectionID).Scan(&t.ConnectionID, &t.TicketID, &t.PlayerID, &t.Skill)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket for connection %s: %w", connectionID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTicket removes the ticket for a connection. Deleting an absent
// ticket is a no-op; returns whether a row was removed.
func (s *Store) DeleteTicket(ctx context.Context, connectionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tickets WHERE connection_id = ?`, connectionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// --- Match methods ---

// CreateMatch persists a match record keyed by task id. A conflicting write
// for the same task id returns domain.ErrRecordConflict and leaves the
// existing row untouched.
func (s *Store) CreateMatch(ctx context.Context, m *domain.MatchRecord) error {
	players, err := json.Marshal(m.Players)
	if err != nil {
		return fmt.Errorf("encoding players: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (task_id, match_id, status, players, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO NOTHING
	`, m.TaskID, m.MatchID, m.Status, string(players), formatTimestamp(m.CreatedAt), formatTimestamp(m.ExpiresAt))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("match for task %s: %w", m.TaskID, domain.ErrRecordConflict)
	}
	return nil
}

// GetMatch returns the match record for a task id, or domain.ErrNotFound.
// Expired records are invisible even before the sweeper removes them.
func (s *Store) GetMatch(ctx context.Context, taskID string) (*domain.MatchRecord, error) {
	var (
		m                    domain.MatchRecord
		players              string
		createdAt, expiresAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT task_id, match_id, status, players, created_at, expires_at
		FROM matches WHERE task_id = ? AND expires_at > ?
	`, taskID, formatTimestamp(time.Now())).Scan(&m.TaskID, &m.MatchID, &m.Status, &players, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match for task %s: %w", taskID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(players), &m.Players); err != nil {
		return nil, fmt.Errorf("decoding players for task %s: %w", taskID, err)
	}
	m.CreatedAt = parseTimestamp(createdAt)
	m.ExpiresAt = parseTimestamp(expiresAt)
	return &m, nil
}

// UpdateMatchStatus sets the lifecycle status of a match record. Status is
// the only mutable column.
func (s *Store) UpdateMatchStatus(ctx context.Context, taskID, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE matches SET status = ? WHERE task_id = ?`, status, taskID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("match for task %s: %w", taskID, domain.ErrNotFound)
	}
	return nil
}

// SweepExpiredMatches deletes match rows (and their result markers) past
// their TTL. Returns the number of matches removed.
func (s *Store) SweepExpiredMatches(ctx context.Context, now time.Time) (int64, error) {
	cutoff := formatTimestamp(now)
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM match_results WHERE task_id IN (SELECT task_id FROM matches WHERE expires_at <= ?)
	`, cutoff); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM matches WHERE expires_at <= ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Player methods ---

// CreatePlayer inserts a new player account. An existing player id returns
// domain.ErrRecordConflict.
func (s *Store) CreatePlayer(ctx context.Context, p *domain.Player) error {
	sets := p.Achievements
	if sets == nil {
		sets = []int64{}
	}
	achievements, err := json.Marshal(sets)
	if err != nil {
		return fmt.Errorf("encoding achievements: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO players (player_id, password_hash, total_score, match_count, achievements, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(player_id) DO NOTHING
	`, p.PlayerID, p.PasswordHash, p.TotalScore, p.MatchCount, string(achievements), formatTimestamp(time.Now()))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("player %s: %w", p.PlayerID, domain.ErrRecordConflict)
	}
	return nil
}

// GetPlayer returns a player account, or domain.ErrNotFound
func (s *Store) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	var (
		p            domain.Player
		achievements string
		createdAt    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT player_id, password_hash, total_score, match_count, achievements, created_at
		FROM players WHERE player_id = ?
	`, playerID).Scan(&p.PlayerID, &p.PasswordHash, &p.TotalScore, &p.MatchCount, &achievements, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player %s: %w", playerID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(achievements), &p.Achievements); err != nil {
		return nil, fmt.Errorf("decoding achievements for %s: %w", playerID, err)
	}
	p.CreatedAt = parseTimestamp(createdAt)
	return &p, nil
}

// --- Match result methods ---

// ApplyMatchResult atomically applies score deltas for a match, once.
// The match_results marker row makes retried submissions no-ops: the first
// application inserts the marker and the increments in one transaction,
// any later attempt sees the marker and returns applied=false.
//
// recompute maps a player's new cumulative total to their full achievement
// set, so the stored set is always a pure function of the totals.
func (s *Store) ApplyMatchResult(ctx context.Context, taskID string, deltas []domain.PlayerResult, recompute func(totalScore int64) []int64) (applied bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO match_results (task_id, applied_at) VALUES (?, ?)
		ON CONFLICT(task_id) DO NOTHING
	`, taskID, formatTimestamp(time.Now()))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Already applied by an earlier submission
		return false, nil
	}

	for _, d := range deltas {
		var total int64
		err := tx.QueryRowContext(ctx, `
			UPDATE players
			SET total_score = total_score + ?, match_count = match_count + 1
			WHERE player_id = ?
			RETURNING total_score
		`, d.ScoreDelta, d.PlayerID).Scan(&total)
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("player %s: %w", d.PlayerID, domain.ErrNotFound)
		}
		if err != nil {
			return false, err
		}

		achievements, err := json.Marshal(recompute(total))
		if err != nil {
			return false, fmt.Errorf("encoding achievements: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE players SET achievements = ? WHERE player_id = ?
		`, string(achievements), d.PlayerID); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
