package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sonarlab/echoloc/sweep"
)

// SqliteStore persists sweep sessions and their records in a local sqlite
// database. Connections open lazily on first use.
type SqliteStore struct {
	dbPath string

	db     *sql.DB
	dbOnce sync.Once
	dbErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the database at dbPath. The
// schema is initialized on first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func (s *SqliteStore) getDB() (*sql.DB, error) {
	s.dbOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", s.dbPath))
		if err != nil {
			s.dbErr = fmt.Errorf("export: opening database: %w", err)
			return
		}

		if _, err := db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.dbErr = fmt.Errorf("export: initializing schema: %w", err)
			return
		}

		s.db = db
	})

	return s.db, s.dbErr
}

// CreateSession inserts a session row and returns its ID. config is stored
// as JSON for later inspection of what produced the records.
func (s *SqliteStore) CreateSession(ctx context.Context, config any) (sessionID int64, err error) {
	var configData sql.NullString

	if config != nil {
		p, err := json.Marshal(config)
		if err != nil {
			return 0, fmt.Errorf("export: marshaling config: %w", err)
		}

		configData.Valid = true
		configData.String = string(p)
	}

	db, err := s.getDB()
	if err != nil {
		return 0, err
	}

	result, err := db.ExecContext(ctx, insertSessionSQL, configData)
	if err != nil {
		return 0, fmt.Errorf("export: inserting session: %w", err)
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("export: getting session ID: %w", err)
	}

	return sessionID, nil
}

// StoreRecords writes all records for a session in one transaction.
// NaN estimate fields become NULL columns.
func (s *SqliteStore) StoreRecords(ctx context.Context, sessionID int64, records []sweep.Record) (err error) {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("export: beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertRecordSQL)
	if err != nil {
		return fmt.Errorf("export: preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for i := range records {
		r := &records[i]

		_, err = stmt.ExecContext(ctx, sessionID,
			r.SourceX, r.SourceY, r.SourceZ,
			r.SourceAzimuthDeg, r.SourceElevationDeg,
			nullable(r.EstimatedX), nullable(r.EstimatedY), nullable(r.EstimatedZ),
			nullable(r.PositionErrorCm),
			nullable(r.EstimatedAzimuthDeg), nullable(r.EstimatedElevationDeg),
			nullable(r.AngularErrorDeg),
		)
		if err != nil {
			return fmt.Errorf("export: inserting record %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("export: committing: %w", err)
	}

	return nil
}

// Records reads back all records of a session in insertion order. NULL
// estimate columns come back as the NaN missing marker.
func (s *SqliteStore) Records(ctx context.Context, sessionID int64) (records []sweep.Record, err error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, selectRecordsSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("export: querying records: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r sweep.Record
		var estX, estY, estZ, posErr, estAz, estEl, angErr sql.NullFloat64

		err = rows.Scan(
			&r.SourceX, &r.SourceY, &r.SourceZ,
			&r.SourceAzimuthDeg, &r.SourceElevationDeg,
			&estX, &estY, &estZ, &posErr, &estAz, &estEl, &angErr,
		)
		if err != nil {
			return nil, fmt.Errorf("export: scanning record: %w", err)
		}

		r.EstimatedX = fromNullable(estX)
		r.EstimatedY = fromNullable(estY)
		r.EstimatedZ = fromNullable(estZ)
		r.PositionErrorCm = fromNullable(posErr)
		r.EstimatedAzimuthDeg = fromNullable(estAz)
		r.EstimatedElevationDeg = fromNullable(estEl)
		r.AngularErrorDeg = fromNullable(angErr)
		r.Solved = estX.Valid

		records = append(records, r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("export: iterating records: %w", err)
	}

	return records, nil
}

// Close closes the database. Safe to call multiple times.
func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		if s.db != nil {
			s.closeErr = s.db.Close()
		}
	})

	return s.closeErr
}

func nullable(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}

	return v.Float64
}
