package hubspot

import "time"

// Deal is a parsed CRM deal with its associations.
type Deal struct {
	ID               string
	Name             string
	Amount           *float64
	Stage            string
	Pipeline         string
	OwnerID          string
	Industry         string
	CreateDate       *time.Time
	LastModifiedDate *time.Time
	CloseDate        *time.Time
	ContactIDs       []string
	CompanyIDs       []string
}

type PipelineStage struct {
	ID           string
	Label        string
	DisplayOrder int
	// Probability is the stage's close likelihood in [0,1] from HubSpot
	// stage metadata.
	Probability float64
	ClosedWon   bool
	ClosedLost  bool
}

type Pipeline struct {
	ID           string
	Label        string
	DisplayOrder int
	Stages       []PipelineStage
}

// StageByID returns the stage with the given id, if present.
func (p Pipeline) StageByID(id string) (PipelineStage, bool) {
	for _, s := range p.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return PipelineStage{}, false
}

type Contact struct {
	ID               string
	Email            string
	LifecycleStage   string
	CompanySize      string
	Industry         string
	CreateDate       *time.Time
	LastModifiedDate *time.Time
}

type Engagement struct {
	ID        string
	Type      string
	Timestamp *time.Time
	OwnerID   string
}

/* ------------------------------ wire types ------------------------------ */

type pagedResponse struct {
	Results []objectEnvelope `json:"results"`
	Paging  *paging          `json:"paging,omitempty"`
}

type paging struct {
	Next *pagingNext `json:"next,omitempty"`
}

type pagingNext struct {
	After string `json:"after"`
}

type objectEnvelope struct {
	ID           string                     `json:"id"`
	Properties   map[string]string          `json:"properties"`
	Associations map[string]associationList `json:"associations,omitempty"`
}

type associationList struct {
	Results []associationRef `json:"results"`
}

type associationRef struct {
	ID string `json:"id"`
}

type pipelinesResponse struct {
	Results []pipelineEnvelope `json:"results"`
}

type pipelineEnvelope struct {
	ID           string          `json:"id"`
	Label        string          `json:"label"`
	DisplayOrder int             `json:"displayOrder"`
	Stages       []stageEnvelope `json:"stages"`
}

type stageEnvelope struct {
	ID           string        `json:"id"`
	Label        string        `json:"label"`
	DisplayOrder int           `json:"displayOrder"`
	Metadata     stageMetadata `json:"metadata"`
}

type stageMetadata struct {
	// HubSpot serializes stage metadata values as strings.
	IsClosed    string `json:"isClosed"`
	Probability string `json:"probability"`
}
