// Package access decides whether a principal may read or write an aggregate.
// Task-family reads are additionally scoped at the query level (foreign tasks
// read as not-found, never forbidden), so CanRead on a task aggregate only
// matters after an unscoped load.
package access

import (
	"github.com/sandeepkv93/trackd/internal/model"
	"github.com/sandeepkv93/trackd/internal/storage"
)

// CanRead reports read visibility: tasks only to their owner, templates to
// any authenticated principal.
func CanRead(principal string, agg storage.Aggregate) bool {
	if principal == "" {
		return false
	}
	if agg.Kind == string(model.KindTemplate) {
		return true
	}
	return agg.Owner == principal
}

// CanWrite restricts writes to the owning user (tasks) or creator
// (templates).
func CanWrite(principal string, agg storage.Aggregate) bool {
	return principal != "" && agg.Owner == principal
}

// CanInstantiate covers the one exception to template write rules: stamping
// a task out of a template is allowed for any authenticated principal, since
// it only reads the template.
func CanInstantiate(principal string) bool {
	return principal != ""
}
