// Package tags implements the per-owner tag registry. A tag name maps to at
// most one row per owner; the same name used by two owners yields two rows.
package tags

import (
	"context"
	"fmt"
	"time"

	"github.com/sandeepkv93/trackd/internal/model"
	"github.com/sandeepkv93/trackd/internal/storage"
)

type Registry struct {
	repo storage.Repository
	now  func() time.Time
}

func NewRegistry(repo storage.Repository, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{repo: repo, now: now}
}

// GetOrCreate is idempotent: resolving the same name for the same owner twice
// returns the same tag identity.
func (r *Registry) GetOrCreate(ctx context.Context, owner, name string) (storage.Tag, error) {
	if err := model.ValidateTagName(name); err != nil {
		return storage.Tag{}, err
	}
	tag, err := r.repo.GetOrCreateTag(ctx, storage.Tag{
		Name:      name,
		Owner:     owner,
		CreatedAt: r.now(),
	})
	if err != nil {
		return storage.Tag{}, fmt.Errorf("get or create tag %q: %w", name, err)
	}
	return tag, nil
}

// Resolve maps a list of tag names to tag rows for one owner, creating any
// that do not exist yet. Duplicate names collapse to a single tag.
func (r *Registry) Resolve(ctx context.Context, owner string, names []string) ([]storage.Tag, error) {
	out := make([]storage.Tag, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		tag, err := r.GetOrCreate(ctx, owner, name)
		if err != nil {
			return nil, err
		}
		out = append(out, tag)
	}
	return out, nil
}

func (r *Registry) List(ctx context.Context, owner string) ([]storage.Tag, error) {
	return r.repo.ListTags(ctx, storage.TagListFilter{Owner: owner})
}

// IDs extracts tag row ids in resolution order.
func IDs(tags []storage.Tag) []int64 {
	out := make([]int64, 0, len(tags))
	for _, tag := range tags {
		out = append(out, tag.ID)
	}
	return out
}
