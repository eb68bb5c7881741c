package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/golang/glog"

	"github.com/hb9tf/specview/sdr"
)

const (
	sqlResultCountInfo = 100

	sqliteCreateTableTmpl = `CREATE TABLE IF NOT EXISTS captures (
		"ID"           TEXT NOT NULL PRIMARY KEY,
		"Success"      INTEGER NOT NULL,
		"Error"        TEXT,
		"StartFreq"    REAL,
		"EndFreq"      REAL,
		"FFTSize"      INTEGER,
		"SampleRate"   REAL,
		"Timestamp"    INTEGER,
		"Bins"         INTEGER,
		"DBLow"        REAL,
		"DBHigh"       REAL,
		"DBAvg"        REAL,
		"Magnitudes"   TEXT
	);`
	sqlInsertResultTmpl = `INSERT INTO captures (
		ID,
		Success,
		Error,
		StartFreq,
		EndFreq,
		FFTSize,
		SampleRate,
		Timestamp,
		Bins,
		DBLow,
		DBHigh,
		DBAvg,
		Magnitudes
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
)

// Dialect selects the table definition for a database flavor.
type Dialect string

const (
	SQLite Dialect = "sqlite"
	MySQL  Dialect = "mysql"
)

func (d Dialect) createTable() (string, error) {
	switch d {
	case SQLite, "":
		return sqliteCreateTableTmpl, nil
	case MySQL:
		return mysqlCreateTableTmpl, nil
	}
	return "", fmt.Errorf("%q is not a supported SQL dialect", d)
}

// SQL stores capture results in a "captures" table. Magnitudes are stored
// as a JSON array.
type SQL struct {
	DB      *sql.DB
	Dialect Dialect
}

func (s *SQL) Write(ctx context.Context, results <-chan sdr.CaptureResult) error {
	if err := s.createTableIfNotExists(ctx); err != nil {
		return fmt.Errorf("unable to create table: %w", err)
	}
	insert, err := s.DB.PrepareContext(ctx, sqlInsertResultTmpl)
	if err != nil {
		return fmt.Errorf("unable to prepare insert: %w", err)
	}
	defer insert.Close()

	counts := map[string]int{
		"error":   0,
		"success": 0,
		"total":   0,
	}
	for {
		var (
			r  sdr.CaptureResult
			ok bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok = <-results:
		}
		if !ok {
			glog.Infof("capture export counts: %+v", counts)
			return nil
		}

		counts["total"] += 1
		if err := insertResult(ctx, insert, r); err != nil {
			counts["error"] += 1
			glog.Warningf("error storing capture %s in %s DB: %s", r.ID, s.Dialect, err)
			continue
		}
		counts["success"] += 1
		if counts["total"]%sqlResultCountInfo == 0 {
			glog.Infof("capture export counts: %+v", counts)
		}
	}
}

func (s *SQL) createTableIfNotExists(ctx context.Context) error {
	tmpl, err := s.Dialect.createTable()
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, tmpl)
	return err
}

func insertResult(ctx context.Context, insert *sql.Stmt, r sdr.CaptureResult) error {
	mags, err := json.Marshal(r.Magnitudes)
	if err != nil {
		return err
	}
	var low, high, avg sql.NullFloat64
	sum, ok := summarize(r)
	if ok {
		low = sql.NullFloat64{Float64: sum.DBLow, Valid: true}
		high = sql.NullFloat64{Float64: sum.DBHigh, Valid: true}
		avg = sql.NullFloat64{Float64: sum.DBAvg, Valid: true}
	}
	_, err = insert.ExecContext(ctx,
		r.ID,
		r.Success,
		r.Error,
		r.Range.StartFreq,
		r.Range.EndFreq,
		r.Range.FFTSize,
		r.Range.SampleRate,
		r.Time().UnixMilli(),
		sum.Bins,
		low,
		high,
		avg,
		string(mags),
	)
	return err
}
