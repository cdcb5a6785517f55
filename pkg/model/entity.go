package model

import (
	"regexp"
	"time"
)

// EntityType distinguishes the two migrated collections.
type EntityType string

const (
	EntityProjects  EntityType = "projects"
	EntityResources EntityType = "resources"
)

// Entity status lifecycle
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// SlugPattern is the only accepted shape for entity IDs.
var SlugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Metadata is the shared bookkeeping block carried by every entity.
type Metadata struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Featured  bool      `json:"featured"`
	Status    Status    `json:"status"`
}

// Published reports whether the entity should appear on public pages.
func (m *Metadata) Published() bool {
	return m.Status == StatusPublished
}

// Entity is what the stores persist: a slug-keyed record with metadata.
// ID is immutable after creation.
type Entity interface {
	ID() string
	Meta() *Metadata
	EntityType() EntityType
}

// Project is a portfolio case study shown on the site.
type Project struct {
	Slug        string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	TechStack   []string `json:"techStack,omitempty"`
	Client      string   `json:"client,omitempty"`
	Outcome     string   `json:"outcome,omitempty"`
	Link        string   `json:"link,omitempty"`
	Metadata    Metadata `json:"metadata"`
}

func (p *Project) ID() string             { return p.Slug }
func (p *Project) Meta() *Metadata        { return &p.Metadata }
func (p *Project) EntityType() EntityType { return EntityProjects }

// Resource is a downloadable guide, template or checklist in the catalog.
type Resource struct {
	Slug        string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	DownloadLink string  `json:"downloadLink,omitempty"`
	// FeatureRequest marks a placeholder card that collects interest for a
	// resource that does not exist yet, so it may ship without a download.
	FeatureRequest bool     `json:"featureRequest,omitempty"`
	Metadata       Metadata `json:"metadata"`
}

func (r *Resource) ID() string             { return r.Slug }
func (r *Resource) Meta() *Metadata        { return &r.Metadata }
func (r *Resource) EntityType() EntityType { return EntityResources }
