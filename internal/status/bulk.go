// Package status validates and applies batches of sub-item status
// transitions. A batch either fully applies or leaves no trace: validation
// runs before any write, and the grouped writes share one transaction.
package status

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sandeepkv93/trackd/internal/model"
	"github.com/sandeepkv93/trackd/internal/storage"
)

var ErrEmptyUpdates = errors.New("status: updates must be a non-empty list")

// Update is one requested transition.
type Update struct {
	ID     int64
	Status model.Status
}

// Result partitions the requested ids: Updated ∪ NotFound equals the request
// id set. NotFound ids did not belong to the aggregate at call time.
type Result struct {
	Updated  []int64
	NotFound []int64
}

// Apply validates the whole batch, partitions the ids against a snapshot of
// the aggregate's current item ids, groups transitions by target status, and
// applies every group in a single transaction.
func Apply(ctx context.Context, repo storage.Repository, agg storage.Aggregate, updates []Update) (Result, error) {
	if len(updates) == 0 {
		return Result{}, ErrEmptyUpdates
	}
	for _, update := range updates {
		if !update.Status.IsValid() {
			return Result{}, fmt.Errorf("%w: %q", model.ErrInvalidStatus, update.Status)
		}
	}

	ids, err := repo.ListItemIDs(ctx, agg.ID)
	if err != nil {
		return Result{}, fmt.Errorf("snapshot item ids: %w", err)
	}
	belongs := make(map[int64]bool, len(ids))
	for _, id := range ids {
		belongs[id] = true
	}

	grouped := make(map[model.Status][]int64)
	result := Result{Updated: []int64{}, NotFound: []int64{}}
	for _, update := range updates {
		if !belongs[update.ID] {
			result.NotFound = append(result.NotFound, update.ID)
			continue
		}
		grouped[update.Status] = append(grouped[update.Status], update.ID)
	}

	groups := make([]storage.StatusGroup, 0, len(grouped))
	for _, s := range model.Statuses() {
		if len(grouped[s]) == 0 {
			continue
		}
		groups = append(groups, storage.StatusGroup{Status: string(s), IDs: grouped[s]})
		result.Updated = append(result.Updated, grouped[s]...)
	}

	if err := repo.BulkUpdateItemStatus(ctx, agg.ID, groups); err != nil {
		return Result{}, err
	}
	return result, nil
}

// Grouping is the read-only variant: every status maps to the sorted ids of
// the aggregate's items currently in that status.
func Grouping(ctx context.Context, repo storage.Repository, agg storage.Aggregate) (map[model.Status][]int64, error) {
	pairs, err := repo.ListItemStatuses(ctx, agg.ID)
	if err != nil {
		return nil, fmt.Errorf("list item statuses: %w", err)
	}

	out := make(map[model.Status][]int64, len(model.Statuses()))
	for _, s := range model.Statuses() {
		out[s] = []int64{}
	}
	seen := make(map[int64]bool, len(pairs))
	for _, pair := range pairs {
		if seen[pair.ID] {
			continue
		}
		seen[pair.ID] = true
		s := model.Status(pair.Status)
		out[s] = append(out[s], pair.ID)
	}
	for _, ids := range out {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return out, nil
}
