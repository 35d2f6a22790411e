package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidStatus = errors.New("model: invalid item status")
	ErrInvalidKind   = errors.New("model: invalid aggregate kind")
	ErrInvalidDate   = errors.New("model: invalid planned date")
	ErrInvalidName   = errors.New("model: invalid name")
)

// Status is the lifecycle state of a single sub-item.
type Status string

const (
	StatusInProcess Status = "process"
	StatusCompleted Status = "completed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusInProcess, StatusCompleted:
		return true
	default:
		return false
	}
}

// Statuses returns every status in canonical order. Bulk updates and status
// groupings iterate in this order so responses are deterministic.
func Statuses() []Status {
	return []Status{StatusInProcess, StatusCompleted}
}

// Kind discriminates the two aggregate variants sharing one table.
type Kind string

const (
	KindTask     Kind = "task"
	KindTemplate Kind = "template"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindTask, KindTemplate:
		return true
	default:
		return false
	}
}

const (
	// DefaultItemName is applied when an item payload carries no name.
	DefaultItemName = "temp"

	MaxNameLen    = 256
	MaxTagNameLen = 24
)

// DateLayout is the wire and storage format for planned dates (date only).
const DateLayout = "2006-01-02"

func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func ValidateName(name string) error {
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, MaxNameLen)
	}
	return nil
}

func ValidateTagName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: tag name is required", ErrInvalidName)
	}
	if len(name) > MaxTagNameLen {
		return fmt.Errorf("%w: tag name exceeds %d characters", ErrInvalidName, MaxTagNameLen)
	}
	return nil
}
