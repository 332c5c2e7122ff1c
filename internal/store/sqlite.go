package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/quizhost/internal/apierr"
	"github.com/Seednode/quizhost/internal/quiz"
	"github.com/google/uuid"

	_ "modernc.org/sqlite" // pure-Go driver, registers "sqlite"
)

// SQLite is the durable Store backend from spec §6's "Persisted state
// layout", backed by the pure-Go modernc.org/sqlite driver (no cgo, so the
// binary stays trivially cross-compilable — the same property the teacher
// values by shipping a single static Go binary).
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) a database at dsn and ensures
// the schema exists.
func OpenSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite has one writer; serialize at the handle

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS quizzes (
			id TEXT PRIMARY KEY,
			definition_json TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			code TEXT NOT NULL,
			quiz_id TEXT NOT NULL,
			state TEXT NOT NULL,
			current_index INTEGER NOT NULL DEFAULT 0,
			scoring_settings_json TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER,
			archived INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS players (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			name TEXT NOT NULL,
			avatar TEXT NOT NULL DEFAULT '',
			score INTEGER NOT NULL DEFAULT 0,
			streak INTEGER NOT NULL DEFAULT 0,
			joined_at INTEGER NOT NULL,
			token TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS answers (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			fraction REAL NOT NULL,
			points INTEGER NOT NULL,
			received_ms INTEGER NOT NULL,
			UNIQUE(player_id, item_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// SeedQuiz registers a quiz definition as JSON; there is no authoring write
// path in this package (out of scope, spec §1).
func (s *SQLite) SeedQuiz(ctx context.Context, q *quiz.Quiz) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quizzes (id, definition_json) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET definition_json = excluded.definition_json`,
		q.ID, string(raw))
	return err
}

func (s *SQLite) GetQuiz(ctx context.Context, quizID string) (*quiz.Quiz, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT definition_json FROM quizzes WHERE id = ?`, quizID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, apierr.New(apierr.BadRequest, fmt.Sprintf("unknown quiz %q", quizID))
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreTransient, "get quiz", err)
	}

	var q quiz.Quiz
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return nil, apierr.Wrap(apierr.StoreFatal, "decode quiz", err)
	}
	return &q, nil
}

func (s *SQLite) CreateSession(ctx context.Context, row SessionRow) (string, error) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.StartedAt.IsZero() {
		row.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, code, quiz_id, state, current_index, scoring_settings_json, started_at, archived)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		row.ID, row.Code, row.QuizID, row.State, row.CurrentIndex, row.ScoringSettingsJ, row.StartedAt.UnixMilli())
	if err != nil {
		return "", apierr.Wrap(apierr.StoreTransient, "create session", err)
	}
	return row.ID, nil
}

func (s *SQLite) UpsertPlayer(ctx context.Context, row PlayerRow) (string, error) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.JoinedAt.IsZero() {
		row.JoinedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO players (id, session_id, name, avatar, score, streak, joined_at, token)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, avatar = excluded.avatar`,
		row.ID, row.SessionID, row.Name, row.Avatar, row.Score, row.Streak, row.JoinedAt.UnixMilli(), row.Token)
	if err != nil {
		return "", apierr.Wrap(apierr.StoreTransient, "upsert player", err)
	}
	return row.ID, nil
}

func (s *SQLite) AppendAnswer(ctx context.Context, sessionID, playerID, itemID string, row AnswerRow) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO answers (id, session_id, player_id, item_id, payload_json, fraction, points, received_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, sessionID, playerID, itemID, row.PayloadJ, row.Fraction, row.Points, row.ReceivedMs)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return apierr.New(apierr.AlreadyAnswered, fmt.Sprintf("player %s already answered item %s", playerID, itemID))
		}
		return apierr.Wrap(apierr.StoreTransient, "append answer", err)
	}
	return nil
}

func (s *SQLite) UpdatePlayerScore(ctx context.Context, playerID string, deltaScore, newStreak int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE players SET score = score + ?, streak = ? WHERE id = ?`,
		deltaScore, newStreak, playerID)
	if err != nil {
		return apierr.Wrap(apierr.StoreTransient, "update player score", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.New(apierr.BadRequest, fmt.Sprintf("unknown player %q", playerID))
	}
	return nil
}

func (s *SQLite) FinalizeSession(ctx context.Context, sessionID string, finalScores []FinalScore) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET state = 'ENDED', ended_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), sessionID)
	if err != nil {
		return apierr.Wrap(apierr.StoreTransient, "finalize session", err)
	}
	_ = finalScores // final per-player scores already live in the players table
	return nil
}

func (s *SQLite) UpdateSessionState(ctx context.Context, sessionID, state string, currentIndex int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET state = ?, current_index = ? WHERE id = ?`,
		state, currentIndex, sessionID)
	if err != nil {
		return apierr.Wrap(apierr.StoreTransient, "update session state", err)
	}
	return nil
}

func (s *SQLite) ArchiveSessionsForQuiz(ctx context.Context, quizID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET archived = 1 WHERE quiz_id = ? AND state != 'ENDED'`, quizID)
	if err != nil {
		return apierr.Wrap(apierr.StoreTransient, "archive sessions for quiz", err)
	}
	return nil
}

func (s *SQLite) HasNonArchivedSession(ctx context.Context, quizID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM sessions WHERE quiz_id = ? AND state != 'ENDED' AND archived = 0`, quizID).Scan(&n)
	if err != nil {
		return false, apierr.Wrap(apierr.StoreTransient, "quiz lock predicate", err)
	}
	return n > 0, nil
}

func (s *SQLite) LoadForRehydration(ctx context.Context, sessionID string) (SessionRow, []PlayerRow, []AnswerRow, error) {
	var row SessionRow
	var startedMs, endedMs sql.NullInt64
	var archived int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, quiz_id, state, current_index, scoring_settings_json, started_at, ended_at, archived
		 FROM sessions WHERE id = ?`, sessionID).
		Scan(&row.ID, &row.Code, &row.QuizID, &row.State, &row.CurrentIndex, &row.ScoringSettingsJ, &startedMs, &endedMs, &archived)
	if err == sql.ErrNoRows {
		return SessionRow{}, nil, nil, apierr.New(apierr.SessionUnavailable, fmt.Sprintf("unknown session %q", sessionID))
	}
	if err != nil {
		return SessionRow{}, nil, nil, apierr.Wrap(apierr.StoreTransient, "load session", err)
	}
	row.Archived = archived != 0
	if startedMs.Valid {
		row.StartedAt = time.UnixMilli(startedMs.Int64)
	}
	if endedMs.Valid {
		row.EndedAt = time.UnixMilli(endedMs.Int64)
	}

	playerRows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, name, avatar, score, streak, joined_at, token FROM players WHERE session_id = ?`, sessionID)
	if err != nil {
		return SessionRow{}, nil, nil, apierr.Wrap(apierr.StoreTransient, "load players", err)
	}
	defer playerRows.Close()

	var players []PlayerRow
	for playerRows.Next() {
		var p PlayerRow
		var joinedMs int64
		if err := playerRows.Scan(&p.ID, &p.SessionID, &p.Name, &p.Avatar, &p.Score, &p.Streak, &joinedMs, &p.Token); err != nil {
			return SessionRow{}, nil, nil, apierr.Wrap(apierr.StoreTransient, "scan player", err)
		}
		p.JoinedAt = time.UnixMilli(joinedMs)
		players = append(players, p)
	}

	answerRows, err := s.db.QueryContext(ctx,
		`SELECT id, player_id, item_id, payload_json, fraction, points, received_ms FROM answers WHERE session_id = ?`, sessionID)
	if err != nil {
		return SessionRow{}, nil, nil, apierr.Wrap(apierr.StoreTransient, "load answers", err)
	}
	defer answerRows.Close()

	var answers []AnswerRow
	for answerRows.Next() {
		var a AnswerRow
		if err := answerRows.Scan(&a.ID, &a.PlayerID, &a.ItemID, &a.PayloadJ, &a.Fraction, &a.Points, &a.ReceivedMs); err != nil {
			return SessionRow{}, nil, nil, apierr.Wrap(apierr.StoreTransient, "scan answer", err)
		}
		answers = append(answers, a)
	}

	return row, players, answers, nil
}

func (s *SQLite) ListActiveSessions(ctx context.Context) ([]SessionRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, quiz_id, state, current_index, scoring_settings_json, started_at, ended_at, archived
		 FROM sessions WHERE state != 'ENDED'`)
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreTransient, "list active sessions", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var row SessionRow
		var startedMs, endedMs sql.NullInt64
		var archived int
		if err := rows.Scan(&row.ID, &row.Code, &row.QuizID, &row.State, &row.CurrentIndex, &row.ScoringSettingsJ, &startedMs, &endedMs, &archived); err != nil {
			return nil, apierr.Wrap(apierr.StoreTransient, "scan active session", err)
		}
		row.Archived = archived != 0
		if startedMs.Valid {
			row.StartedAt = time.UnixMilli(startedMs.Int64)
		}
		if endedMs.Valid {
			row.EndedAt = time.UnixMilli(endedMs.Int64)
		}
		out = append(out, row)
	}
	return out, nil
}

func isUniqueConstraintErr(err error) bool {
	// modernc.org/sqlite surfaces constraint violations as a sqlite.Error
	// whose message contains "UNIQUE constraint failed"; matching on the
	// message avoids an import cycle on the driver's internal error code
	// constants, which are not part of its stable API.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ Store = (*SQLite)(nil)
