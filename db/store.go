package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session represents one capture session: a series of erase+readout rounds
// against a single physical device, or a UART stream capture.
type Session struct {
	SessionID   string `json:"session_id"`
	Label       string `json:"label"`
	DeviceLabel string `json:"device_label"`
	Profile     string `json:"profile"`
	Target      string `json:"target"`
	Interface   string `json:"interface"`
	ProbeSerial string `json:"probe_serial"`
	Source      string `json:"source"` // "openocd" or "uart"
	SRAMBase    uint32 `json:"sram_base"`
	SRAMSize    uint32 `json:"sram_size"`
	Rounds      int    `json:"rounds"`
	CreatedAt   int64  `json:"created_at"`
}

// Readout represents one captured SRAM dump file belonging to a session.
type Readout struct {
	ReadoutID  string `json:"readout_id"`
	SessionID  string `json:"session_id"`
	Round      int    `json:"round"`
	Path       string `json:"path"`
	SizeBytes  int64  `json:"size_bytes"`
	SHA256     string `json:"sha256"`
	CapturedAt int64  `json:"captured_at"`
}

// AnalysisResult represents one statistical test outcome. ReadoutID is empty
// for session-level results (PUF metrics aggregate over all readouts).
type AnalysisResult struct {
	ResultID  string  `json:"result_id"`
	SessionID string  `json:"session_id"`
	ReadoutID string  `json:"readout_id,omitempty"`
	TestName  string  `json:"test_name"`
	PValue    float64 `json:"p_value"`
	Passed    bool    `json:"passed"`
	Detail    string  `json:"detail,omitempty"`
	CreatedAt int64   `json:"created_at"`
}

// InsertSession persists a new session. If SessionID is empty, a UUID is generated.
func (db *DB) InsertSession(s *Session) error {
	if s.SessionID == "" {
		s.SessionID = uuid.New().String()
	}
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().UnixNano()
	}
	if s.Source == "" {
		s.Source = "openocd"
	}

	_, err := db.Exec(`
		INSERT INTO capture_sessions (
			session_id, label, device_label, profile, target, interface,
			probe_serial, source, sram_base, sram_size, rounds, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.Label, s.DeviceLabel, s.Profile, s.Target, s.Interface,
		s.ProbeSerial, s.Source, s.SRAMBase, s.SRAMSize, s.Rounds, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// UpdateSessionRounds records the number of completed rounds for a session.
func (db *DB) UpdateSessionRounds(sessionID string, rounds int) error {
	_, err := db.Exec(`UPDATE capture_sessions SET rounds = ? WHERE session_id = ?`, rounds, sessionID)
	if err != nil {
		return fmt.Errorf("update session rounds: %w", err)
	}
	return nil
}

// GetSession returns a single session by ID.
func (db *DB) GetSession(sessionID string) (*Session, error) {
	row := db.QueryRow(`
		SELECT session_id, label, device_label, profile, target, interface,
		       probe_serial, source, sram_base, sram_size, rounds, created_at
		FROM capture_sessions WHERE session_id = ?`, sessionID)

	var s Session
	err := row.Scan(
		&s.SessionID, &s.Label, &s.DeviceLabel, &s.Profile, &s.Target, &s.Interface,
		&s.ProbeSerial, &s.Source, &s.SRAMBase, &s.SRAMSize, &s.Rounds, &s.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session %s not found", sessionID)
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}

// ListSessions returns all sessions ordered by creation time descending.
func (db *DB) ListSessions() ([]*Session, error) {
	rows, err := db.Query(`
		SELECT session_id, label, device_label, profile, target, interface,
		       probe_serial, source, sram_base, sram_size, rounds, created_at
		FROM capture_sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(
			&s.SessionID, &s.Label, &s.DeviceLabel, &s.Profile, &s.Target, &s.Interface,
			&s.ProbeSerial, &s.Source, &s.SRAMBase, &s.SRAMSize, &s.Rounds, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

// InsertReadout persists a new readout row. If ReadoutID is empty, a UUID is generated.
func (db *DB) InsertReadout(r *Readout) error {
	if r.ReadoutID == "" {
		r.ReadoutID = uuid.New().String()
	}
	if r.CapturedAt == 0 {
		r.CapturedAt = time.Now().UnixNano()
	}

	_, err := db.Exec(`
		INSERT INTO readouts (readout_id, session_id, round, path, size_bytes, sha256, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ReadoutID, r.SessionID, r.Round, r.Path, r.SizeBytes, r.SHA256, r.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("insert readout: %w", err)
	}
	return nil
}

// ListReadouts returns a session's readouts ordered by round.
func (db *DB) ListReadouts(sessionID string) ([]*Readout, error) {
	rows, err := db.Query(`
		SELECT readout_id, session_id, round, path, size_bytes, sha256, captured_at
		FROM readouts WHERE session_id = ? ORDER BY round`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query readouts: %w", err)
	}
	defer rows.Close()

	var readouts []*Readout
	for rows.Next() {
		var r Readout
		if err := rows.Scan(
			&r.ReadoutID, &r.SessionID, &r.Round, &r.Path, &r.SizeBytes, &r.SHA256, &r.CapturedAt,
		); err != nil {
			return nil, fmt.Errorf("scan readout: %w", err)
		}
		readouts = append(readouts, &r)
	}
	return readouts, rows.Err()
}

// InsertResult persists an analysis result. If ResultID is empty, a UUID is generated.
func (db *DB) InsertResult(r *AnalysisResult) error {
	if r.ResultID == "" {
		r.ResultID = uuid.New().String()
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixNano()
	}

	var readoutID interface{}
	if r.ReadoutID != "" {
		readoutID = r.ReadoutID
	}

	_, err := db.Exec(`
		INSERT INTO analysis_results (result_id, session_id, readout_id, test_name, p_value, passed, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ResultID, r.SessionID, readoutID, r.TestName, r.PValue, boolToInt(r.Passed), r.Detail, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// ListResults returns a session's analysis results ordered by creation time.
func (db *DB) ListResults(sessionID string) ([]*AnalysisResult, error) {
	rows, err := db.Query(`
		SELECT result_id, session_id, readout_id, test_name, p_value, passed, detail, created_at
		FROM analysis_results WHERE session_id = ? ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []*AnalysisResult
	for rows.Next() {
		var r AnalysisResult
		var readoutID sql.NullString
		var pValue sql.NullFloat64
		var passed int
		if err := rows.Scan(
			&r.ResultID, &r.SessionID, &readoutID, &r.TestName, &pValue, &passed, &r.Detail, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.ReadoutID = readoutID.String
		r.PValue = pValue.Float64
		r.Passed = passed != 0
		results = append(results, &r)
	}
	return results, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
