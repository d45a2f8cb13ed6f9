package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/cwbudde/flwopt/internal/flw"
)

// Table names written by SQLTrace.
const (
	TblAgents = "flw_agents"
	TblBest   = "flw_best"
)

// OpenSQLite opens (or creates) a SQLite database using the pure-Go driver.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// Every connection to ":memory:" would otherwise get its own database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		slog.Warn("Failed to enable WAL journal", "path", path, "error", err)
	}
	return db, nil
}

// SQLTrace records every agent and the best-known solution of each
// generation into two tables with one REAL column per coordinate (x0, x1,
// ...). Rows are keyed by run ID so several runs can share a database, but
// all of them must have the same dimension.
type SQLTrace struct {
	db    *sql.DB
	runID string
	dim   int
}

// NewSQLTrace creates the tables if needed.
func NewSQLTrace(db *sql.DB, runID string, dim int) (*SQLTrace, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	st := &SQLTrace{db: db, runID: runID, dim: dim}

	stmts := []string{
		"CREATE TABLE IF NOT EXISTS " + TblAgents +
			" (run TEXT, agent INTEGER, iter INTEGER, role TEXT, grp INTEGER, evaluated INTEGER, val REAL" + st.xcols("define") + ");",
		"CREATE TABLE IF NOT EXISTS " + TblBest +
			" (run TEXT, iter INTEGER, val REAL" + st.xcols("define") + ");",
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return nil, fmt.Errorf("failed to create trace table: %w", err)
		}
	}
	return st, nil
}

func (st *SQLTrace) xcols(op string) string {
	var b strings.Builder
	for i := 0; i < st.dim; i++ {
		switch op {
		case "?":
			b.WriteString(",?")
		case "define":
			fmt.Fprintf(&b, ",x%d REAL", i)
		case "x":
			fmt.Fprintf(&b, ",x%d", i)
		}
	}
	return b.String()
}

func posArgs(args []any, pos []float64) []any {
	for _, v := range pos {
		args = append(args, v)
	}
	return args
}

// Observe writes one generation in a single transaction. It has the
// flw.Observer signature.
func (st *SQLTrace) Observe(r flw.Report) error {
	tx, err := st.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin trace transaction: %w", err)
	}
	defer tx.Rollback()

	sAgent := "INSERT INTO " + TblAgents + " (run,agent,iter,role,grp,evaluated,val" + st.xcols("x") + ") VALUES (?,?,?,?,?,?,?" + st.xcols("?") + ");"
	for _, a := range r.Agents {
		if len(a.Position) != st.dim {
			return fmt.Errorf("agent %d has dimension %d, trace expects %d", a.ID, len(a.Position), st.dim)
		}
		args := []any{st.runID, a.ID, r.Generation, a.Role.String(), a.Group, a.Evaluated, a.Fitness}
		if _, err := tx.Exec(sAgent, posArgs(args, a.Position)...); err != nil {
			return fmt.Errorf("failed to insert agent row: %w", err)
		}
	}

	sBest := "INSERT INTO " + TblBest + " (run,iter,val" + st.xcols("x") + ") VALUES (?,?,?" + st.xcols("?") + ");"
	args := []any{st.runID, r.Generation, r.Best.Fitness}
	if _, err := tx.Exec(sBest, posArgs(args, r.Best.Position)...); err != nil {
		return fmt.Errorf("failed to insert best row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trace transaction: %w", err)
	}
	return nil
}

// BestRow is one row of the best-solution table.
type BestRow struct {
	Generation int
	Fitness    float64
	Position   []float64
}

// BestHistory returns the recorded best solutions of this run in generation
// order.
func (st *SQLTrace) BestHistory() ([]BestRow, error) {
	q := "SELECT iter,val" + st.xcols("x") + " FROM " + TblBest + " WHERE run = ? ORDER BY iter;"
	rows, err := st.db.Query(q, st.runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query best history: %w", err)
	}
	defer rows.Close()

	var out []BestRow
	for rows.Next() {
		row := BestRow{Position: make([]float64, st.dim)}
		dest := []any{&row.Generation, &row.Fitness}
		for i := range row.Position {
			dest = append(dest, &row.Position[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan best row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// AgentCount returns how many agent rows were recorded for this run.
func (st *SQLTrace) AgentCount() (int, error) {
	var n int
	err := st.db.QueryRow("SELECT COUNT(*) FROM "+TblAgents+" WHERE run = ?;", st.runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count agent rows: %w", err)
	}
	return n, nil
}
