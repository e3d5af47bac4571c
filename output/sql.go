package output

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register the "pgx" driver
	"github.com/sbinet/mutarget"
	"go-hep.org/x/hep/hbook"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // register the "sqlite" driver
)

// SQLConfig configures a SQL sink.
type SQLConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	DSN    string `yaml:"dsn"`
}

type dialect struct {
	driver string
	float  string
}

var dialects = map[string]dialect{
	"sqlite":   {driver: "sqlite", float: "REAL"},
	"postgres": {driver: "pgx", float: "DOUBLE PRECISION"},
	"pgx":      {driver: "pgx", float: "DOUBLE PRECISION"},
}

// bind rewrites '?' placeholders for the dialect.
func (d dialect) bind(query string) string {
	if d.driver != "pgx" {
		return query
	}
	var (
		b strings.Builder
		n = 0
	)
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id      TEXT PRIMARY KEY,
			number  BIGINT NOT NULL,
			events  BIGINT NOT NULL,
			started TEXT NOT NULL,
			stopped TEXT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS histograms (
			run_id    TEXT NOT NULL,
			name      TEXT NOT NULL,
			title     TEXT NOT NULL,
			nbins     BIGINT NOT NULL,
			xmin      %[1]s NOT NULL,
			xmax      %[1]s NOT NULL,
			entries   BIGINT NOT NULL,
			underflow BIGINT NOT NULL,
			overflow  BIGINT NOT NULL,
			PRIMARY KEY (run_id, name)
		)`, d.float),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS bins (
			run_id  TEXT NOT NULL,
			name    TEXT NOT NULL,
			bin     BIGINT NOT NULL,
			xlow    %[1]s NOT NULL,
			xhigh   %[1]s NOT NULL,
			entries BIGINT NOT NULL,
			sumw    %[1]s NOT NULL,
			PRIMARY KEY (run_id, name, bin)
		)`, d.float),
	}
}

// SQL stores the histograms, bin by bin, in a relational database.
type SQL struct {
	cfg SQLConfig
	log *zap.Logger
	db  *sql.DB
	dia dialect
}

func NewSQL(cfg SQLConfig, log *zap.Logger) *SQL {
	if log == nil {
		log = zap.NewNop()
	}
	return &SQL{cfg: cfg, log: log}
}

// Open connects to the database and creates the tables.
func (s *SQL) Open(ctx context.Context) error {
	name := s.cfg.Driver
	if name == "" {
		name = "sqlite"
	}
	dia, ok := dialects[name]
	if !ok {
		return fmt.Errorf("output: unknown SQL driver %q", s.cfg.Driver)
	}
	db, err := sql.Open(dia.driver, s.cfg.DSN)
	if err != nil {
		return fmt.Errorf("output: could not open %s database: %w", name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("output: could not reach %s database: %w", name, err)
	}
	for _, stmt := range dia.schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("output: could not create tables: %w", err)
		}
	}
	s.db = db
	s.dia = dia
	return nil
}

func (s *SQL) Write(ctx context.Context, run mutarget.RunInfo, hs []*hbook.H1D) (err error) {
	if s.db == nil {
		return fmt.Errorf("output: SQL database is not open")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("output: could not start transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	_, err = tx.ExecContext(ctx, s.dia.bind(
		`INSERT INTO runs (id, number, events, started, stopped) VALUES (?, ?, ?, ?, ?)`),
		run.ID, run.Number, run.Events,
		run.Started.Format(time.RFC3339Nano), run.Stopped.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("output: could not insert run %s: %w", run.ID, err)
	}

	hstmt, err := tx.PrepareContext(ctx, s.dia.bind(
		`INSERT INTO histograms (run_id, name, title, nbins, xmin, xmax, entries, underflow, overflow)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("output: could not prepare statement: %w", err)
	}
	defer hstmt.Close()

	bstmt, err := tx.PrepareContext(ctx, s.dia.bind(
		`INSERT INTO bins (run_id, name, bin, xlow, xhigh, entries, sumw) VALUES (?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("output: could not prepare statement: %w", err)
	}
	defer bstmt.Close()

	for _, h := range hs {
		title, _ := h.Ann["title"].(string)
		_, err = hstmt.ExecContext(ctx,
			run.ID, h.Name(), title, h.Len(), h.XMin(), h.XMax(), h.Entries(),
			h.Binning.Underflow().Entries(), h.Binning.Overflow().Entries(),
		)
		if err != nil {
			return fmt.Errorf("output: could not insert histogram %q: %w", h.Name(), err)
		}
		for i, bin := range h.Binning.Bins {
			_, err = bstmt.ExecContext(ctx,
				run.ID, h.Name(), i, bin.XMin(), bin.XMax(), bin.Entries(), bin.SumW(),
			)
			if err != nil {
				return fmt.Errorf("output: could not insert bin %d of %q: %w", i, h.Name(), err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("output: could not commit run %s: %w", run.ID, err)
	}
	s.log.Info("histograms written",
		zap.String("driver", s.dia.driver),
		zap.String("run", run.ID),
		zap.Int("histograms", len(hs)),
	)
	return nil
}

func (s *SQL) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

var _ mutarget.Sink = (*SQL)(nil)
