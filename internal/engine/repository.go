package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/showcase/internal/bpmn"
	"github.com/seantiz/showcase/internal/model"
	"github.com/seantiz/showcase/internal/store"
)

// DeploymentBuilder collects the resources of one deployment.
type DeploymentBuilder struct {
	Name   string
	Source string

	// DuplicateFiltering skips processes whose resource is identical to the
	// one of their latest deployed version.
	DuplicateFiltering bool

	resources []namedResource
}

type namedResource struct {
	name    string
	content []byte
}

// AddResource adds a BPMN document to the deployment.
func (b *DeploymentBuilder) AddResource(name string, content []byte) *DeploymentBuilder {
	b.resources = append(b.resources, namedResource{name: name, content: content})
	return b
}

// DeploymentResult reports what a deployment created. Deployment is nil when
// duplicate filtering found nothing new to deploy.
type DeploymentResult struct {
	Deployment  *model.Deployment          `json:"deployment"`
	Definitions []*model.ProcessDefinition `json:"deployed_process_definitions"`
}

// RepositoryService manages deployments and process definitions.
type RepositoryService struct {
	e *ProcessEngine
}

// Deploy parses and stores the resources of b, creating a new version of
// every process they define.
func (r *RepositoryService) Deploy(ctx context.Context, b DeploymentBuilder) (*DeploymentResult, error) {
	if len(b.resources) == 0 {
		return nil, fmt.Errorf("%w: deployment without resources", bpmn.ErrInvalidProcess)
	}

	type parsed struct {
		namedResource
		checksum string
		defs     *bpmn.Definitions
	}
	docs := make([]parsed, 0, len(b.resources))
	for _, res := range b.resources {
		defs, err := bpmn.Parse(bytes.NewReader(res.content))
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", res.name, err)
		}
		sum := sha256.Sum256(res.content)
		docs = append(docs, parsed{namedResource: res, checksum: hex.EncodeToString(sum[:]), defs: defs})
	}

	result := &DeploymentResult{}
	err := r.e.execute(ctx, func(c *command) error {
		result.Deployment, result.Definitions = nil, nil
		now := time.Now().UTC()

		for _, doc := range docs {
			var changed []*model.ProcessDefinition
			for _, proc := range doc.defs.Processes {
				version := 1
				latest, err := c.tx.LatestProcessDefinition(ctx, proc.ID)
				switch {
				case err == nil:
					if b.DuplicateFiltering && latest.Checksum == doc.checksum {
						continue
					}
					version = latest.Version + 1
				case !errors.Is(err, store.ErrNotFound):
					return err
				}
				name := proc.Name
				if name == "" {
					name = proc.ID
				}
				changed = append(changed, &model.ProcessDefinition{
					ID:           model.NewID(),
					Key:          proc.ID,
					Name:         name,
					Version:      version,
					ResourceName: doc.name,
					Checksum:     doc.checksum,
					CreatedAt:    now,
				})
			}
			if len(changed) == 0 {
				continue
			}

			if result.Deployment == nil {
				result.Deployment = &model.Deployment{ID: model.NewID(), Name: b.Name, Source: b.Source, DeployedAt: now}
				if err := c.tx.CreateDeployment(ctx, result.Deployment); err != nil {
					return err
				}
			}
			err := c.tx.CreateResource(ctx, &model.Resource{
				ID:           model.NewID(),
				DeploymentID: result.Deployment.ID,
				Name:         doc.name,
				Checksum:     doc.checksum,
				Content:      doc.content,
			})
			if err != nil {
				return err
			}
			for _, def := range changed {
				def.DeploymentID = result.Deployment.ID
				if err := c.tx.CreateProcessDefinition(ctx, def); err != nil {
					return err
				}
			}
			result.Definitions = append(result.Definitions, changed...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Deployment == nil {
		r.e.logger.Info("deployment skipped, resources unchanged", "name", b.Name)
	} else {
		for _, def := range result.Definitions {
			r.e.logger.Info("process definition deployed", "key", def.Key, "version", def.Version, "resource", def.ResourceName)
		}
	}
	return result, nil
}

// ProcessDefinition returns the definition with the given id.
func (r *RepositoryService) ProcessDefinition(ctx context.Context, id string) (*model.ProcessDefinition, error) {
	def, err := r.e.store.GetProcessDefinition(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: id %s", ErrProcessDefinitionNotFound, id)
	}
	return def, err
}

// LatestProcessDefinition returns the highest version deployed for key.
func (r *RepositoryService) LatestProcessDefinition(ctx context.Context, key string) (*model.ProcessDefinition, error) {
	def, err := r.e.store.LatestProcessDefinition(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: key %s", ErrProcessDefinitionNotFound, key)
	}
	return def, err
}

// ProcessDefinitions returns every deployed definition, by key and version.
func (r *RepositoryService) ProcessDefinitions(ctx context.Context) ([]*model.ProcessDefinition, error) {
	return r.e.store.ListProcessDefinitions(ctx)
}

// ProcessModel returns the parsed process of a definition.
func (r *RepositoryService) ProcessModel(ctx context.Context, definitionID string) (*bpmn.Process, error) {
	def, err := r.ProcessDefinition(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	return r.e.processModel(ctx, r.e.store, def)
}

// Deployments returns all deployments, oldest first.
func (r *RepositoryService) Deployments(ctx context.Context) ([]*model.Deployment, error) {
	return r.e.store.ListDeployments(ctx)
}
