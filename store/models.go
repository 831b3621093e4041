package store

import (
	"time"

	"github.com/uptrace/bun"
)

// DealSnapshot is an imported deal from a CRM system, denormalized with
// stage metadata at sync time so analyses don't need live CRM access.
type DealSnapshot struct {
	bun.BaseModel `bun:"table:deal_snapshots"`

	ID          string `bun:",pk"`
	WorkspaceID string `bun:",notnull,unique:deal_snapshots_ws_ext"`
	ExternalID  string `bun:",notnull,unique:deal_snapshots_ws_ext"`
	Source      string `bun:",notnull"`

	Name       string
	Amount     *float64
	PipelineID string
	StageID    string
	StageName  string
	OwnerID    string

	CreatedDate      *time.Time
	LastModifiedDate *time.Time
	CloseDate        *time.Time

	Probability    *float64
	DaysInStage    *int
	DaysInPipeline *int

	ContactIDs []string       `bun:",type:jsonb"`
	CompanyIDs []string       `bun:",type:jsonb"`
	Properties map[string]any `bun:",type:jsonb"`

	SyncDate time.Time `bun:",notnull"`
}

type Conversation struct {
	bun.BaseModel `bun:"table:conversations"`

	ID          string `bun:",pk"`
	WorkspaceID string `bun:",notnull"`
	UserID      string `bun:",notnull"`
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

type ConversationMessage struct {
	bun.BaseModel `bun:"table:conversation_messages"`

	ID             string `bun:",pk"`
	ConversationID string `bun:",notnull"`
	Role           string `bun:",notnull"`
	Content        string `bun:",notnull"`
	CreatedAt      time.Time
}

const (
	MessageRoleUser  = "user"
	MessageRoleAgent = "agent"
)

// Document is a stored reference document searchable by the agent.
type Document struct {
	bun.BaseModel `bun:"table:documents"`

	ID          string `bun:",pk"`
	WorkspaceID string `bun:",notnull"`
	Filename    string
	Content     string
	CreatedAt   time.Time
}
