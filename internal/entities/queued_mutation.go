package entities

import (
	"time"
)

// QueuedMutation is a remote write that could not reach the server when it was made.
// The unique index makes re-enqueueing the same call a no-op.
type QueuedMutation struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SiteID     string    `gorm:"size:100;not null;uniqueIndex:idx_mutation_call" json:"site_id"`
	Component  string    `gorm:"size:100;not null;uniqueIndex:idx_mutation_call;index:idx_mutation_scope" json:"component"`
	EntityID   string    `gorm:"size:100;not null;uniqueIndex:idx_mutation_call;index:idx_mutation_scope" json:"entity_id"`
	CallName   string    `gorm:"size:255;not null;uniqueIndex:idx_mutation_call" json:"call_name"`
	ArgsHash   string    `gorm:"size:64;not null;uniqueIndex:idx_mutation_call" json:"args_hash"`
	Args       string    `gorm:"type:text" json:"args"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func (QueuedMutation) TableName() string {
	return "queued_mutations"
}

// Scope identifies the replay ordering unit of a mutation.
func (m QueuedMutation) Scope() string {
	return m.Component + "#" + m.EntityID
}
