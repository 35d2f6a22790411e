package reconcile

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sandeepkv93/trackd/internal/model"
)

// Mode selects the update semantics.
type Mode int

const (
	// PartialMerge changes only the fields present in the payload and
	// never deletes items by omission.
	PartialMerge Mode = iota
	// FullReplace requires every mutable aggregate field to be present and
	// deletes all items when the payload carries an explicitly empty list.
	// Items merely omitted from the payload are still kept.
	FullReplace
)

// NullableDate distinguishes an absent planned_date from an explicit null:
// Set=false leaves the stored value alone, Set=true with a nil Date clears it.
type NullableDate struct {
	Set  bool
	Date *time.Time
}

// ItemPatch is the explicit field-presence form of one incoming item. A nil
// pointer means the field was absent from the payload. No reflection: every
// field is matched by hand against this whitelist.
type ItemPatch struct {
	ID          *int64
	Name        *string
	Description *string
	Status      *model.Status
	PlannedDate NullableDate
	// TagsInput, when non-nil, is resolved through the tag registry and
	// replaces the item's tag set. When nil the tags are untouched.
	TagsInput *[]string
}

// AggregatePatch is an incoming task or template payload. Items is nil when
// the payload had no items key at all; that distinction drives the
// full-replace deletion rule.
type AggregatePatch struct {
	Name        *string
	Description *string
	Items       *[]ItemPatch
}

// ReportEntry records one touched item: a matched item by its original id, a
// created item by a synthetic "New item {id}" label.
type ReportEntry struct {
	ID      int64
	Created bool
}

func (e ReportEntry) Label() string {
	if e.Created {
		return fmt.Sprintf("New item %d", e.ID)
	}
	return fmt.Sprintf("%d", e.ID)
}

// MarshalJSON renders matched entries as numbers and created entries as
// label strings.
func (e ReportEntry) MarshalJSON() ([]byte, error) {
	if e.Created {
		return json.Marshal(e.Label())
	}
	return json.Marshal(e.ID)
}

// Report is the caller-visible record of what a reconcile touched, in
// payload order.
type Report []ReportEntry
