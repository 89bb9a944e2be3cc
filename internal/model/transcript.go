package model

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// TranscriptEntry is the audit record of one answered question.
type TranscriptEntry struct {
	ID           string    `gorm:"primaryKey;size:26" json:"id"`
	SessionID    string    `gorm:"size:36;not null;index" json:"session_id"`
	DocumentName string    `gorm:"size:255" json:"document_name"`
	DocumentType string    `gorm:"size:16" json:"document_type"`
	Model        string    `gorm:"size:128" json:"model"`
	Question     string    `gorm:"type:text;not null" json:"question"`
	Answer       string    `gorm:"type:text;not null" json:"answer"`
	ChunkRefs    string    `gorm:"size:255" json:"chunk_refs"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (TranscriptEntry) TableName() string {
	return "transcript_entries"
}

// BeforeCreate assigns a ULID when the publisher did not.
func (e *TranscriptEntry) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	return nil
}
