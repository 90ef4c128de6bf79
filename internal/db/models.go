package db

import (
	"time"

	"gorm.io/datatypes"
)

// DuplicateRecord maps duplicate_records, the persisted duplicate graph.
// Each row is a directed edge from a newer record to the canonical record
// it duplicates.
type DuplicateRecord struct {
	ID             string         `gorm:"column:id;type:uuid;primaryKey"`
	SourceTable    string         `gorm:"column:source_table;type:text;not null;index:idx_duplicate_records_source,priority:1"`
	SourceID       string         `gorm:"column:source_id;type:text;not null;index:idx_duplicate_records_source,priority:2"`
	TargetTable    string         `gorm:"column:target_table;type:text;not null;index:idx_duplicate_records_target,priority:1"`
	TargetID       string         `gorm:"column:target_id;type:text;not null;index:idx_duplicate_records_target,priority:2"`
	MatchType      string         `gorm:"column:match_type;type:text;not null"`
	Confidence     float64        `gorm:"column:confidence_score;type:double precision;not null"`
	MatchingFields datatypes.JSON `gorm:"column:matching_fields;type:jsonb"`
	Reason         string         `gorm:"column:reason;type:text;not null;default:''"`
	Status         string         `gorm:"column:status;type:text;not null;default:active"`
	CreatedAt      time.Time      `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (DuplicateRecord) TableName() string { return "duplicate_records" }

// Publication maps publications. Only the columns the deduplication
// workflow reads or writes are declared; the live table carries more.
type Publication struct {
	ID                string         `gorm:"column:id;type:uuid;primaryKey"`
	Title             string         `gorm:"column:title;type:text;not null"`
	Abstract          *string        `gorm:"column:abstract;type:text"`
	URL               *string        `gorm:"column:url;type:text"`
	DOI               *string        `gorm:"column:doi;type:text"`
	DuplicateMetadata datatypes.JSON `gorm:"column:duplicate_metadata;type:jsonb"`
	CreatedAt         time.Time      `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Publication) TableName() string { return "publications" }

// Article maps articles.
type Article struct {
	ID                string         `gorm:"column:id;type:uuid;primaryKey"`
	Title             string         `gorm:"column:title;type:text;not null"`
	Summary           *string        `gorm:"column:summary;type:text"`
	Content           *string        `gorm:"column:content;type:text"`
	URL               *string        `gorm:"column:url;type:text"`
	SourceURL         *string        `gorm:"column:source_url;type:text"`
	DuplicateMetadata datatypes.JSON `gorm:"column:duplicate_metadata;type:jsonb"`
	CreatedAt         time.Time      `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Article) TableName() string { return "articles" }

// Innovation maps innovations.
type Innovation struct {
	ID                string         `gorm:"column:id;type:uuid;primaryKey"`
	Title             string         `gorm:"column:title;type:text;not null"`
	Description       *string        `gorm:"column:description;type:text"`
	WebsiteURL        *string        `gorm:"column:website_url;type:text"`
	SourceURL         *string        `gorm:"column:source_url;type:text"`
	DuplicateMetadata datatypes.JSON `gorm:"column:duplicate_metadata;type:jsonb"`
	CreatedAt         time.Time      `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Innovation) TableName() string { return "innovations" }

func autoMigrateModels() []any {
	return []any{
		&Publication{},
		&Article{},
		&Innovation{},
		&DuplicateRecord{},
	}
}
