package storage

import "time"

// Aggregate is a task or template row. Kind discriminates the variant;
// TemplateID is only ever set on tasks instantiated from a template and is
// nulled by the store when the template is deleted.
type Aggregate struct {
	ID          int64
	Kind        string
	Name        string
	Description string
	Owner       string
	TemplateID  *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// ItemsCount is populated by ListAggregates only.
	ItemsCount int
}

type Item struct {
	ID          int64
	AggregateID int64
	Name        string
	Description string
	Status      string
	PlannedDate *time.Time
}

type ItemStatus struct {
	ID     int64
	Status string
}

// Tag rows are unique per (name, owner). They are created lazily and never
// deleted, even when no item references them anymore.
type Tag struct {
	ID        int64
	Name      string
	Owner     string
	CreatedAt time.Time
}

// StatusGroup is one bulk write: every listed item moves to Status.
type StatusGroup struct {
	Status string
	IDs    []int64
}

// DateBucket selects a planned-date slice of an item listing.
type DateBucket string

const (
	DateAny       DateBucket = ""
	DatePlanned   DateBucket = "planned"
	DateToday     DateBucket = "today"
	DateNotSorted DateBucket = "not sorted"
)

type AggregateListFilter struct {
	Kind     string
	Owner    string
	Search   string
	Ordering string
}

type ItemListFilter struct {
	AggregateID int64
	Date        DateBucket
	// Today anchors the date buckets; the zero value means time.Now.
	Today  time.Time
	Limit  int
	Offset int
}

type TagListFilter struct {
	Owner  string
	Limit  int
	Offset int
}
