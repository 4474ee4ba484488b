package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/seantiz/showcase/internal/model"
)

const definitionColumns = `id, key, name, version, deployment_id, resource_name, checksum, created_at`

// CreateDeployment inserts a new deployment record.
func (t *sqlTx) CreateDeployment(ctx context.Context, d *model.Deployment) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO deployments (id, name, source, deployed_at) VALUES (?, ?, ?, ?)`,
		d.ID, d.Name, d.Source, d.DeployedAt,
	)
	if err != nil {
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}

// ListDeployments returns all deployments, oldest first.
func (t *sqlTx) ListDeployments(ctx context.Context) ([]*model.Deployment, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT id, name, source, deployed_at FROM deployments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var out []*model.Deployment
	for rows.Next() {
		d := &model.Deployment{}
		if err := rows.Scan(&d.ID, &d.Name, &d.Source, &d.DeployedAt); err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployments: %w", err)
	}
	return out, nil
}

// CreateResource inserts a deployment resource.
func (t *sqlTx) CreateResource(ctx context.Context, r *model.Resource) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO resources (id, deployment_id, name, checksum, content) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.DeploymentID, r.Name, r.Checksum, r.Content,
	)
	if err != nil {
		return fmt.Errorf("insert resource: %w", err)
	}
	return nil
}

// GetResource retrieves a resource of a deployment by name.
func (t *sqlTx) GetResource(ctx context.Context, deploymentID, name string) (*model.Resource, error) {
	r := &model.Resource{}
	err := t.q.QueryRowContext(ctx,
		`SELECT id, deployment_id, name, checksum, content FROM resources
		WHERE deployment_id = ? AND name = ?`, deploymentID, name,
	).Scan(&r.ID, &r.DeploymentID, &r.Name, &r.Checksum, &r.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resource %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get resource: %w", err)
	}
	return r, nil
}

// CreateProcessDefinition inserts a process definition version.
func (t *sqlTx) CreateProcessDefinition(ctx context.Context, d *model.ProcessDefinition) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO process_definitions (`+definitionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Key, d.Name, d.Version, d.DeploymentID, d.ResourceName, d.Checksum, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert process definition: %w", err)
	}
	return nil
}

// GetProcessDefinition retrieves a process definition by ID.
func (t *sqlTx) GetProcessDefinition(ctx context.Context, id string) (*model.ProcessDefinition, error) {
	return t.scanDefinition(t.q.QueryRowContext(ctx,
		`SELECT `+definitionColumns+` FROM process_definitions WHERE id = ?`, id))
}

// LatestProcessDefinition retrieves the highest version deployed for key.
func (t *sqlTx) LatestProcessDefinition(ctx context.Context, key string) (*model.ProcessDefinition, error) {
	return t.scanDefinition(t.q.QueryRowContext(ctx,
		`SELECT `+definitionColumns+` FROM process_definitions
		WHERE key = ? ORDER BY version DESC LIMIT 1`, key))
}

func (t *sqlTx) scanDefinition(row *sql.Row) (*model.ProcessDefinition, error) {
	d := &model.ProcessDefinition{}
	err := row.Scan(&d.ID, &d.Key, &d.Name, &d.Version, &d.DeploymentID, &d.ResourceName, &d.Checksum, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("process definition: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get process definition: %w", err)
	}
	return d, nil
}

// ListProcessDefinitions returns every deployed version ordered by key and version.
func (t *sqlTx) ListProcessDefinitions(ctx context.Context) ([]*model.ProcessDefinition, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT `+definitionColumns+` FROM process_definitions ORDER BY key, version`)
	if err != nil {
		return nil, fmt.Errorf("list process definitions: %w", err)
	}
	defer rows.Close()

	var out []*model.ProcessDefinition
	for rows.Next() {
		d := &model.ProcessDefinition{}
		if err := rows.Scan(&d.ID, &d.Key, &d.Name, &d.Version, &d.DeploymentID, &d.ResourceName, &d.Checksum, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan process definition: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate process definitions: %w", err)
	}
	return out, nil
}
