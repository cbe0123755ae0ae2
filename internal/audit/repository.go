// Package audit provides access to the command_journal table for
// querying operator command history.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CommandRecord represents a single journalled command.
type CommandRecord struct {
	ID        string         `json:"id"`
	Command   string         `json:"command"`
	ObsID     string         `json:"obs_id,omitempty"`
	ClientID  string         `json:"client_id,omitempty"`
	Outcome   string         `json:"outcome"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter controls which journal entries to return.
type Filter struct {
	Command  string // optional: filter by command name (start, pause, stop, abort, load)
	ObsID    string // optional: filter by observation ID
	ClientID string // optional: filter by originating client
	Limit    int    // default 50, max 200
	Offset   int    // pagination offset
}

// ListResult contains the paginated journal results.
type ListResult struct {
	Records []CommandRecord `json:"records"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// Repository defines the interface for command journal operations.
type Repository interface {
	Create(ctx context.Context, rec *CommandRecord) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository reads the command journal from SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new command journal repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new journal entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, rec *CommandRecord) error {
	if rec.ID == "" {
		rec.ID = "cmd-" + uuid.NewString()[:8]
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var detailsJSON *string
	if rec.Details != nil {
		b, err := json.Marshal(rec.Details)
		if err != nil {
			return fmt.Errorf("marshalling journal details: %w", err)
		}
		s := string(b)
		detailsJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_journal (id, command, obs_id, client_id, outcome, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Command,
		nullableString(rec.ObsID), nullableString(rec.ClientID),
		rec.Outcome, detailsJSON,
		rec.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}

	return nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns journal entries matching the filter, ordered by most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	// Build WHERE clause dynamically.
	var conditions []string
	var args []any

	if filter.Command != "" {
		conditions = append(conditions, "command = ?")
		args = append(args, filter.Command)
	}
	if filter.ObsID != "" {
		conditions = append(conditions, "obs_id = ?")
		args = append(args, filter.ObsID)
	}
	if filter.ClientID != "" {
		conditions = append(conditions, "client_id = ?")
		args = append(args, filter.ClientID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE clause is built from parameterised conditions (? placeholders) — no user input in SQL string.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM command_journal %s", where)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting journal entries: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT id, command, obs_id, client_id, outcome, details, created_at FROM command_journal %s ORDER BY created_at DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal entries: %w", err)
	}
	defer rows.Close()

	var records []CommandRecord
	for rows.Next() {
		var rec CommandRecord
		var obsID, clientID, detailsJSON sql.NullString
		var createdAt string

		if err := rows.Scan(&rec.ID, &rec.Command,
			&obsID, &clientID, &rec.Outcome, &detailsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}

		if obsID.Valid {
			rec.ObsID = obsID.String
		}
		if clientID.Valid {
			rec.ClientID = clientID.String
		}
		if detailsJSON.Valid && detailsJSON.String != "" {
			var details map[string]any
			if json.Unmarshal([]byte(detailsJSON.String), &details) == nil {
				rec.Details = details
			}
		}

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", createdAt, err)
		}
		rec.CreatedAt = t

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}

	if records == nil {
		records = []CommandRecord{}
	}

	return &ListResult{
		Records: records,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
