// Package storage keeps the local deployment history in sqlite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mpataki/padeploy/internal/models"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a deployment does not exist.
var ErrNotFound = errors.New("deployment not found")

type Storage struct {
	db *sql.DB
}

// Open creates dataDir if needed and opens the history database inside it.
func Open(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create data directory")
	}
	return New(filepath.Join(dataDir, "history.db"))
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate history database")
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS deployments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		domain_name TEXT NOT NULL DEFAULT '',
		framework TEXT NOT NULL,
		console_id TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'start',
		status TEXT NOT NULL DEFAULT 'running',
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS invocations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		deployment_id INTEGER NOT NULL REFERENCES deployments(id),
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		command TEXT NOT NULL DEFAULT '',
		label TEXT NOT NULL DEFAULT '',
		output TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'running',
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		error TEXT NOT NULL DEFAULT '',
		UNIQUE(deployment_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_deployments_status ON deployments(status);
	CREATE INDEX IF NOT EXISTS idx_invocations_deployment ON invocations(deployment_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) CreateDeployment(d *models.Deployment) (int64, error) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	result, err := s.db.Exec(
		`INSERT INTO deployments (run_id, created_at, domain_name, framework, console_id, state, status, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, d.CreatedAt, d.DomainName, d.Framework, d.ConsoleID.String(), d.State, d.Status, d.Error,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Storage) UpdateDeployment(d *models.Deployment) error {
	_, err := s.db.Exec(
		`UPDATE deployments SET completed_at = ?, domain_name = ?, console_id = ?, state = ?, status = ?, error = ?
		 WHERE id = ?`,
		d.CompletedAt, d.DomainName, d.ConsoleID.String(), d.State, d.Status, d.Error, d.ID,
	)
	return err
}

const deploymentColumns = `id, run_id, created_at, completed_at, domain_name, framework, console_id, state, status, error`

type scanner interface {
	Scan(dest ...any) error
}

func scanDeployment(row scanner) (*models.Deployment, error) {
	var d models.Deployment
	var completedAt sql.NullTime
	var consoleID string

	err := row.Scan(
		&d.ID, &d.RunID, &d.CreatedAt, &completedAt, &d.DomainName,
		&d.Framework, &consoleID, &d.State, &d.Status, &d.Error,
	)
	if err != nil {
		return nil, err
	}

	d.ConsoleID = models.ConsoleID(consoleID)
	if completedAt.Valid {
		d.CompletedAt = &completedAt.Time
	}
	return &d, nil
}

func (s *Storage) GetDeployment(id int64) (*models.Deployment, error) {
	row := s.db.QueryRow(`SELECT `+deploymentColumns+` FROM deployments WHERE id = ?`, id)
	d, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "id %d", id)
	}
	return d, err
}

// ListDeployments returns the most recent deployments first.
func (s *Storage) ListDeployments(limit int) ([]*models.Deployment, error) {
	rows, err := s.db.Query(
		`SELECT `+deploymentColumns+` FROM deployments ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deployments []*models.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, d)
	}

	return deployments, rows.Err()
}

func (s *Storage) DeleteDeployment(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM invocations WHERE deployment_id = ?`, id); err != nil {
		return err
	}
	result, err := tx.Exec(`DELETE FROM deployments WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "id %d", id)
	}

	return tx.Commit()
}

func (s *Storage) CreateInvocation(inv *models.Invocation) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO invocations (deployment_id, seq, kind, command, label, output, status, started_at, completed_at, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.DeploymentID, inv.SequenceNum, inv.Kind, inv.Command, inv.Label,
		inv.Output, inv.Status, inv.StartedAt, inv.CompletedAt, inv.Error,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Storage) UpdateInvocation(inv *models.Invocation) error {
	_, err := s.db.Exec(
		`UPDATE invocations SET output = ?, status = ?, completed_at = ?, error = ? WHERE id = ?`,
		inv.Output, inv.Status, inv.CompletedAt, inv.Error, inv.ID,
	)
	return err
}

func (s *Storage) GetInvocations(deploymentID int64) ([]*models.Invocation, error) {
	rows, err := s.db.Query(
		`SELECT id, deployment_id, seq, kind, command, label, output, status, started_at, completed_at, error
		 FROM invocations WHERE deployment_id = ? ORDER BY seq`, deploymentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invocations []*models.Invocation
	for rows.Next() {
		var inv models.Invocation
		var startedAt, completedAt sql.NullTime

		err := rows.Scan(
			&inv.ID, &inv.DeploymentID, &inv.SequenceNum, &inv.Kind, &inv.Command,
			&inv.Label, &inv.Output, &inv.Status, &startedAt, &completedAt, &inv.Error,
		)
		if err != nil {
			return nil, err
		}

		if startedAt.Valid {
			inv.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			inv.CompletedAt = &completedAt.Time
		}

		invocations = append(invocations, &inv)
	}

	return invocations, rows.Err()
}

// FormatTimeAgo renders t relative to now for listings.
func FormatTimeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2")
	}
}
