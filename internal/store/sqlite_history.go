package store

import (
	"context"
	"fmt"
	"time"

	"github.com/seantiz/showcase/internal/model"
)

// CreateActivityInstance records that an instance entered a node.
func (t *sqlTx) CreateActivityInstance(ctx context.Context, a *model.ActivityInstance) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO activity_instances (id, instance_id, activity_id, activity_type, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.InstanceID, a.ActivityID, a.ActivityType, a.StartedAt, a.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity instance: %w", err)
	}
	return nil
}

// EndActivityInstance marks the open activity instance of a node as ended.
func (t *sqlTx) EndActivityInstance(ctx context.Context, instanceID, activityID string, endedAt time.Time) error {
	result, err := t.q.ExecContext(ctx,
		`UPDATE activity_instances SET ended_at = ?
		WHERE instance_id = ? AND activity_id = ? AND ended_at IS NULL`,
		endedAt, instanceID, activityID,
	)
	if err != nil {
		return fmt.Errorf("end activity instance: %w", err)
	}
	return checkAffected(result, "open activity instance "+activityID)
}

// ListActivityInstances returns the history of an instance in execution order.
func (t *sqlTx) ListActivityInstances(ctx context.Context, instanceID string) ([]*model.ActivityInstance, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT id, instance_id, activity_id, activity_type, started_at, ended_at
		FROM activity_instances WHERE instance_id = ? ORDER BY id`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list activity instances: %w", err)
	}
	defer rows.Close()

	var out []*model.ActivityInstance
	for rows.Next() {
		a := &model.ActivityInstance{}
		if err := rows.Scan(&a.ID, &a.InstanceID, &a.ActivityID, &a.ActivityType, &a.StartedAt, &a.EndedAt); err != nil {
			return nil, fmt.Errorf("scan activity instance: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity instances: %w", err)
	}
	return out, nil
}

// TableCounts returns the row count of every engine table.
func (t *sqlTx) TableCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(schema))
	for _, s := range schema {
		var n int
		if err := t.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", s.table, err)
		}
		counts[s.table] = n
	}
	return counts, nil
}

// DefinitionStats returns runtime counts per process definition version.
func (t *sqlTx) DefinitionStats(ctx context.Context) ([]DefinitionStats, error) {
	rows, err := t.q.QueryContext(ctx, `
SELECT d.id, d.key, d.name, d.version,
    (SELECT COUNT(*) FROM process_instances p WHERE p.definition_id = d.id AND p.state = ?),
    (SELECT COUNT(*) FROM tasks k WHERE k.definition_id = d.id),
    (SELECT COUNT(*) FROM jobs j JOIN process_instances p ON p.id = j.instance_id WHERE p.definition_id = d.id),
    (SELECT COUNT(*) FROM jobs j JOIN process_instances p ON p.id = j.instance_id WHERE p.definition_id = d.id AND j.retries <= 0)
FROM process_definitions d ORDER BY d.key, d.version`, model.StateActive)
	if err != nil {
		return nil, fmt.Errorf("definition stats: %w", err)
	}
	defer rows.Close()

	var out []DefinitionStats
	for rows.Next() {
		var s DefinitionStats
		if err := rows.Scan(&s.DefinitionID, &s.Key, &s.Name, &s.Version, &s.Instances, &s.Tasks, &s.Jobs, &s.Incidents); err != nil {
			return nil, fmt.Errorf("scan definition stats: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate definition stats: %w", err)
	}
	return out, nil
}
