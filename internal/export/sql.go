package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/alexisbeaulieu97/reportcheck/internal/review"
	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "pgx"
	DriverMySQL    = "mysql"
)

var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLSink keeps one row per review, holding the results document as JSON.
type SQLSink struct {
	db      *sql.DB
	driver  string
	table   string
	queries queries
}

type queries struct {
	create   string
	insert   string
	feedback string
}

// OpenSQL connects with driver and dsn and creates the table when missing.
func OpenSQL(ctx context.Context, driver, dsn, table string) (*SQLSink, error) {
	if driver == DriverMySQL {
		var err error
		if dsn, err = mysqlDSN(dsn); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	sink, err := NewSQLSink(db, driver, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := sink.EnsureTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

// NewSQLSink wraps an open database.
func NewSQLSink(db *sql.DB, driver, table string) (*SQLSink, error) {
	q, err := buildQueries(driver, table)
	if err != nil {
		return nil, err
	}
	return &SQLSink{db: db, driver: driver, table: table, queries: q}, nil
}

// EnsureTable creates the table if it does not exist.
func (s *SQLSink) EnsureTable(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.queries.create); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Publish implements Sink.
func (s *SQLSink) Publish(ctx context.Context, item Item) error {
	if err := validate(item); err != nil {
		return err
	}
	return s.Insert(ctx, item.Result.Document)
}

// Insert appends doc as a new row.
func (s *SQLSink) Insert(ctx context.Context, doc review.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.queries.insert,
		doc.SessionID, doc.Timestamp.UTC(), doc.Model, doc.Status, doc.FailedStage, string(body))
	if err != nil {
		return fmt.Errorf("insert review %s: %w", doc.SessionID, err)
	}
	return nil
}

// UpdateFeedback stores the user's rating and comment on an existing row.
func (s *SQLSink) UpdateFeedback(ctx context.Context, sessionID string, fb review.UserFeedback) error {
	if fb.Rating < 1 || fb.Rating > 5 {
		return rcerrors.NewValidationError("rating", "rating must be between 1 and 5", nil)
	}
	res, err := s.db.ExecContext(ctx, s.queries.feedback, fb.Rating, fb.Comment, sessionID)
	if err != nil {
		return fmt.Errorf("update feedback %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return rcerrors.NewNotFoundError("review", sessionID)
	}
	return nil
}

// mysqlDSN makes RowsAffected count matched rows, so re-rating a review with
// identical values is not mistaken for a missing row.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", rcerrors.NewValidationError("export.dsn", "invalid MySQL DSN", err)
	}
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// Close releases the database.
func (s *SQLSink) Close() error {
	return s.db.Close()
}

func buildQueries(driver, table string) (queries, error) {
	if !tablePattern.MatchString(table) {
		return queries{}, rcerrors.NewValidationError("export.table", fmt.Sprintf("invalid table name %q", table), nil)
	}

	var (
		docType  string
		timeType string
	)
	switch driver {
	case DriverPostgres:
		docType, timeType = "JSONB", "TIMESTAMPTZ"
	case DriverMySQL:
		docType, timeType = "JSON", "DATETIME(6)"
	default:
		return queries{}, rcerrors.NewValidationError("export.driver", fmt.Sprintf("unsupported driver %q", driver), nil)
	}

	return queries{
		create: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	session_id VARCHAR(64) PRIMARY KEY,
	created_at %s NOT NULL,
	llm VARCHAR(255) NOT NULL,
	status VARCHAR(16) NOT NULL,
	failed_stage VARCHAR(64) NOT NULL DEFAULT '',
	document %s NOT NULL,
	rating INTEGER,
	comment TEXT
)`, table, timeType, docType),
		insert: fmt.Sprintf("INSERT INTO %s (session_id, created_at, llm, status, failed_stage, document) VALUES (%s)",
			table, placeholders(driver, 1, 6)),
		feedback: fmt.Sprintf("UPDATE %s SET rating = %s, comment = %s WHERE session_id = %s",
			table, placeholder(driver, 1), placeholder(driver, 2), placeholder(driver, 3)),
	}, nil
}

func placeholder(driver string, n int) string {
	if driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func placeholders(driver string, from, count int) string {
	out := ""
	for i := 0; i < count; i++ {
		if i > 0 {
			out += ", "
		}
		out += placeholder(driver, from+i)
	}
	return out
}
