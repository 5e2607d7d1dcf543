// Package runstore persists expansion runs to SQLite. The full result is
// stored as a JSON document and is the source of truth; flat projections
// of the selected keywords and progress trail exist for querying and
// report rendering without decoding whole runs.
package runstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/contentforge/kwuniverse/internal/expansion"
	"github.com/contentforge/kwuniverse/internal/scoring"
)

var ErrRunNotFound = errors.New("run not found")

type Store struct {
	db *sqlx.DB
	mu sync.Mutex

	progressSeq map[string]int
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id         TEXT PRIMARY KEY,
	seeds          TEXT NOT NULL DEFAULT '[]',
	success        INTEGER NOT NULL DEFAULT 0,
	error_code     TEXT NOT NULL DEFAULT '',
	total_keywords INTEGER NOT NULL DEFAULT 0,
	total_cost     REAL NOT NULL DEFAULT 0,
	started_at     TEXT NOT NULL,
	completed_at   TEXT NOT NULL DEFAULT '',
	result         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_keywords (
	run_id         TEXT NOT NULL,
	stage          TEXT NOT NULL,
	keyword        TEXT NOT NULL,
	parent_keyword TEXT NOT NULL DEFAULT '',
	volume         INTEGER NOT NULL DEFAULT 0,
	difficulty     REAL NOT NULL DEFAULT 0,
	intent         TEXT NOT NULL DEFAULT '',
	blended_score  REAL NOT NULL DEFAULT 0,
	quick_win      INTEGER NOT NULL DEFAULT 0,
	source         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, stage, keyword)
);

CREATE TABLE IF NOT EXISTS progress_events (
	run_id             TEXT NOT NULL,
	seq                INTEGER NOT NULL,
	stage              TEXT NOT NULL DEFAULT '',
	step               TEXT NOT NULL DEFAULT '',
	percent            REAL NOT NULL DEFAULT 0,
	keywords_processed INTEGER NOT NULL DEFAULT 0,
	cost               REAL NOT NULL DEFAULT 0,
	emitted_at         TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

func Open(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, progressSeq: map[string]int{}}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveResult upserts the run document and rewrites its keyword projection.
func (s *Store) SaveResult(res *expansion.ExpansionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	seeds, _ := json.Marshal(res.Request.SeedKeywords)

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT OR REPLACE INTO runs (run_id, seeds, success, error_code, total_keywords, total_cost, started_at, completed_at, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, string(seeds), boolToInt(res.Success), res.ErrorCode,
		res.TotalKeywords, res.Costs.TotalCost,
		res.StartedAt.Format(time.RFC3339Nano), res.CompletedAt.Format(time.RFC3339Nano),
		string(doc))
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM run_keywords WHERE run_id = ?`, res.RunID); err != nil {
		return err
	}
	for _, stage := range []scoring.Stage{scoring.StageDream100, scoring.StageTier2, scoring.StageTier3} {
		for _, c := range res.KeywordsByStage(stage) {
			_, err := tx.Exec(`INSERT OR REPLACE INTO run_keywords (run_id, stage, keyword, parent_keyword, volume, difficulty, intent, blended_score, quick_win, source)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				res.RunID, string(stage), c.Keyword, c.ParentKeyword,
				c.Volume, c.Difficulty, string(c.Intent), c.BlendedScore,
				boolToInt(c.QuickWin), string(c.ExpansionSource))
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// LoadResult decodes the stored run document.
func (s *Store) LoadResult(runID string) (*expansion.ExpansionResult, error) {
	var doc string
	err := s.db.QueryRow(`SELECT result FROM runs WHERE run_id = ?`, runID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	var res expansion.ExpansionResult
	if err := json.Unmarshal([]byte(doc), &res); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", runID, err)
	}
	return &res, nil
}

// RunSummary is one row of the run index.
type RunSummary struct {
	RunID         string    `json:"run_id"`
	Seeds         []string  `json:"seeds"`
	Success       bool      `json:"success"`
	ErrorCode     string    `json:"error_code,omitempty"`
	TotalKeywords int       `json:"total_keywords"`
	TotalCost     float64   `json:"total_cost"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT run_id, seeds, success, error_code, total_keywords, total_cost, started_at, completed_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var seedsJSON, startedAt, completedAt string
		var success int
		if err := rows.Scan(&r.RunID, &seedsJSON, &success, &r.ErrorCode, &r.TotalKeywords, &r.TotalCost, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(seedsJSON), &r.Seeds)
		r.Success = success != 0
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if completedAt != "" {
			r.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QuickWins returns a run's quick-win keywords across all tiers, best first.
func (s *Store) QuickWins(runID string) ([]expansion.KeywordCandidate, error) {
	rows, err := s.db.Query(`SELECT stage, keyword, parent_keyword, volume, difficulty, intent, blended_score, source
		FROM run_keywords WHERE run_id = ? AND quick_win = 1 ORDER BY blended_score DESC, keyword`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []expansion.KeywordCandidate
	for rows.Next() {
		var c expansion.KeywordCandidate
		var stage, intent, source string
		if err := rows.Scan(&stage, &c.Keyword, &c.ParentKeyword, &c.Volume, &c.Difficulty, &intent, &c.BlendedScore, &source); err != nil {
			return nil, err
		}
		c.Stage = scoring.Stage(stage)
		c.Intent = scoring.Intent(intent)
		c.ExpansionSource = expansion.Source(source)
		c.QuickWin = true
		out = append(out, c)
	}
	return out, rows.Err()
}

// AppendProgress persists one progress event. Sequence numbers are
// per-run and assigned here, so events arrive ordered even when the
// pipeline's timestamps collide.
func (s *Store) AppendProgress(evt expansion.ProgressEvent) error {
	s.mu.Lock()
	seq := s.progressSeq[evt.RunID]
	s.progressSeq[evt.RunID] = seq + 1
	s.mu.Unlock()

	_, err := s.db.Exec(`INSERT OR REPLACE INTO progress_events (run_id, seq, stage, step, percent, keywords_processed, cost, emitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.RunID, seq, evt.Stage, evt.CurrentStep, evt.ProgressPercent,
		evt.KeywordsProcessed, evt.CurrentCost, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// ProgressSink adapts the store into the pipeline's sink type. Write
// failures are swallowed; losing a progress row must never stall a run.
func (s *Store) ProgressSink() expansion.ProgressSink {
	return func(evt expansion.ProgressEvent) {
		_ = s.AppendProgress(evt)
	}
}

// ProgressTrail returns a run's persisted progress events in emit order.
func (s *Store) ProgressTrail(runID string) ([]expansion.ProgressEvent, error) {
	rows, err := s.db.Query(`SELECT stage, step, percent, keywords_processed, cost
		FROM progress_events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []expansion.ProgressEvent
	for rows.Next() {
		evt := expansion.ProgressEvent{RunID: runID}
		if err := rows.Scan(&evt.Stage, &evt.CurrentStep, &evt.ProgressPercent, &evt.KeywordsProcessed, &evt.CurrentCost); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
