package entitystore

import (
	"github.com/wrenware/showcase/pkg/audit"
	"github.com/wrenware/showcase/pkg/kvstore"
	"github.com/wrenware/showcase/pkg/model"
)

// ResourceStore is the concrete store for the downloadable resource catalog.
type ResourceStore = Store[model.Resource, *model.Resource]

// NewResourceStore wires the resource rules into the generic base.
func NewResourceStore(kv *kvstore.Client, auditSvc *audit.Service) *ResourceStore {
	return newStore[model.Resource](kv, auditSvc, model.EntityResources, resourceRules, resourceChange)
}

func resourceRules(r *model.Resource) []string {
	var violations []string
	if r.Title == "" {
		violations = append(violations, "title is required")
	}
	if r.Metadata.Published() {
		if r.Description == "" {
			violations = append(violations, "published resources must carry a description")
		}
		// Feature-request placeholders collect interest before the
		// asset exists, so only they may omit the download link.
		if r.DownloadLink == "" && !r.FeatureRequest {
			violations = append(violations, "published resources must carry a downloadLink unless marked as a feature request")
		}
	}
	return violations
}

func resourceChange(r *model.Resource) *model.AuditChange {
	return &model.AuditChange{
		Resource: &model.ResourceChange{
			Title:        r.Title,
			Description:  r.Description,
			DownloadLink: r.DownloadLink,
			Status:       r.Metadata.Status,
		},
	}
}
