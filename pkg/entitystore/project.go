package entitystore

import (
	"github.com/wrenware/showcase/pkg/audit"
	"github.com/wrenware/showcase/pkg/kvstore"
	"github.com/wrenware/showcase/pkg/model"
)

// ProjectStore is the concrete store for portfolio projects.
type ProjectStore = Store[model.Project, *model.Project]

// NewProjectStore wires the project rules into the generic base.
func NewProjectStore(kv *kvstore.Client, auditSvc *audit.Service) *ProjectStore {
	return newStore[model.Project](kv, auditSvc, model.EntityProjects, projectRules, projectChange)
}

func projectRules(p *model.Project) []string {
	var violations []string
	if p.Title == "" {
		violations = append(violations, "title is required")
	}
	if p.Metadata.Published() && p.Description == "" {
		violations = append(violations, "published projects must carry a description")
	}
	return violations
}

func projectChange(p *model.Project) *model.AuditChange {
	return &model.AuditChange{
		Project: &model.ProjectChange{
			Title:       p.Title,
			Description: p.Description,
			Status:      p.Metadata.Status,
		},
	}
}
