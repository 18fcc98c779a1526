package source

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
)

var validTableNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresSource reads rows from an audit table and maps them to raw
// events. The table needs an "id" column for stable ordering; columns
// named event_type, trace_id and created_at/occurred_at feed the
// header, everything else becomes payload.
type PostgresSource struct {
	connStr string
	table   string
}

func NewPostgresSource(connStr, table string) (*PostgresSource, error) {
	if !validTableNameRegex.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %s", table)
	}
	return &PostgresSource{connStr: connStr, table: table}, nil
}

func quoteIdentifier(name string) string {
	return `"` + name + `"`
}

// Fetch loads every row in id order and converts each to a raw event.
func (s *PostgresSource) Fetch(ctx context.Context) ([]Raw, error) {
	conn, err := pgx.Connect(ctx, s.connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY id", quoteIdentifier(s.table)))
	if err != nil {
		return nil, fmt.Errorf("failed to query table: %w", err)
	}
	defer rows.Close()

	var raws []Raw
	for rows.Next() {
		fieldDescs := rows.FieldDescriptions()
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		record := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			record[string(fd.Name)] = values[i]
		}

		raws = append(raws, recordToRaw(record))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return raws, nil
}

// recordToRaw splits a row into header fields and payload. Header
// columns are consumed; the remaining columns travel as payload
// untouched.
func recordToRaw(record map[string]interface{}) Raw {
	raw := Raw{EventType: "SIG", Timestamp: time.Now()}

	if v, ok := record["event_type"].(string); ok && v != "" {
		raw.EventType = v
	}
	if v, ok := record["trace_id"].(string); ok {
		raw.TraceID = v
	} else if v, ok := record["id"]; ok {
		raw.TraceID = fmt.Sprintf("%v", v)
	}
	if ts, ok := record["occurred_at"].(time.Time); ok {
		raw.Timestamp = ts
	} else if ts, ok := record["created_at"].(time.Time); ok {
		raw.Timestamp = ts
	}

	payload := make(map[string]interface{}, len(record))
	for k, v := range record {
		switch k {
		case "event_type", "trace_id", "occurred_at", "created_at":
			continue
		}
		payload[k] = v
	}
	raw.Payload = payload

	return raw
}
