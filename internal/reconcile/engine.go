// Package reconcile is the task/template synchronization engine: it takes a
// persisted aggregate plus an incoming payload and decides which items to
// update, create, or delete, and which tags to attach.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/trackd/internal/model"
	"github.com/sandeepkv93/trackd/internal/storage"
	"github.com/sandeepkv93/trackd/internal/tags"
)

var (
	// ErrIncompleteAggregate is the full-replace precondition failure:
	// every mutable scalar field must be present in the payload.
	ErrIncompleteAggregate = errors.New("reconcile: full update requires name and description")
)

// Invalidator is told about every successful mutation of a template or its
// items, synchronously, before the engine returns. Implementations must not
// fail the write path.
type Invalidator interface {
	InvalidateTemplate(ctx context.Context, templateID int64)
}

type Engine struct {
	repo  storage.Repository
	tags  *tags.Registry
	inval Invalidator
	now   func() time.Time
}

// NewEngine wires the engine to its collaborators. inval may be nil when no
// cache layer is attached (tests, task-only callers).
func NewEngine(repo storage.Repository, registry *tags.Registry, inval Invalidator, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{repo: repo, tags: registry, inval: inval, now: now}
}

// Draft is the creation payload: aggregate scalars plus item payloads.
type Draft struct {
	Name        string
	Description string
	TemplateID  *int64
	Items       []ItemPatch
}

// Create persists the aggregate row first, then every item through the same
// create-and-tag-resolve path the reconcile loop uses.
func (e *Engine) Create(ctx context.Context, kind model.Kind, owner string, draft Draft) (storage.Aggregate, error) {
	if err := validateItemPatches(draft.Items); err != nil {
		return storage.Aggregate{}, err
	}
	now := e.now()
	id, err := e.repo.CreateAggregate(ctx, storage.Aggregate{
		Kind:        string(kind),
		Name:        draft.Name,
		Description: draft.Description,
		Owner:       owner,
		TemplateID:  draft.TemplateID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return storage.Aggregate{}, fmt.Errorf("create aggregate: %w", err)
	}
	agg, err := e.repo.GetAggregate(ctx, string(kind), id)
	if err != nil {
		return storage.Aggregate{}, fmt.Errorf("load created aggregate: %w", err)
	}
	for _, patch := range draft.Items {
		if _, err := e.createItem(ctx, agg, patch); err != nil {
			return storage.Aggregate{}, err
		}
	}
	e.invalidate(ctx, agg)
	return agg, nil
}

// Reconcile applies an incoming payload to the aggregate. The existing item
// id set is snapshotted once at the start; matched items get a field-level
// merge, unmatched ones are created. The returned report lists every touched
// item in payload order.
func (e *Engine) Reconcile(ctx context.Context, agg storage.Aggregate, patch AggregatePatch, mode Mode) (Report, storage.Aggregate, error) {
	if mode == FullReplace && (patch.Name == nil || patch.Description == nil) {
		return nil, agg, ErrIncompleteAggregate
	}
	if patch.Items != nil {
		if err := validateItemPatches(*patch.Items); err != nil {
			return nil, agg, err
		}
	}

	existing, err := e.snapshotItemIDs(ctx, agg.ID)
	if err != nil {
		return nil, agg, err
	}

	report := Report{}
	switch {
	case mode == FullReplace && patch.Items != nil && len(*patch.Items) == 0:
		// Only an explicitly empty list deletes; an absent items key
		// keeps everything.
		if err := e.repo.DeleteItems(ctx, agg.ID); err != nil {
			return nil, agg, fmt.Errorf("delete items: %w", err)
		}
	case patch.Items != nil:
		for _, item := range *patch.Items {
			entry, err := e.reconcileItem(ctx, agg, existing, item)
			if err != nil {
				return nil, agg, err
			}
			report = append(report, entry)
		}
	}

	if patch.Name != nil {
		agg.Name = *patch.Name
	}
	if patch.Description != nil {
		agg.Description = *patch.Description
	}
	agg.UpdatedAt = e.now()
	if err := e.repo.UpdateAggregate(ctx, agg); err != nil {
		return nil, agg, fmt.Errorf("update aggregate: %w", err)
	}
	e.invalidate(ctx, agg)
	return report, agg, nil
}

func (e *Engine) reconcileItem(ctx context.Context, agg storage.Aggregate, existing map[int64]bool, patch ItemPatch) (ReportEntry, error) {
	if patch.ID != nil && existing[*patch.ID] {
		if _, err := e.mergeItem(ctx, agg, *patch.ID, patch); err != nil {
			return ReportEntry{}, err
		}
		return ReportEntry{ID: *patch.ID}, nil
	}
	id, err := e.createItem(ctx, agg, patch)
	if err != nil {
		return ReportEntry{}, err
	}
	return ReportEntry{ID: id, Created: true}, nil
}

// MergeItem is the single-item update path used by the nested item
// endpoints. Same field and tag rules as a matched item inside Reconcile.
func (e *Engine) MergeItem(ctx context.Context, agg storage.Aggregate, itemID int64, patch ItemPatch) (storage.Item, error) {
	if err := validateItemPatches([]ItemPatch{patch}); err != nil {
		return storage.Item{}, err
	}
	item, err := e.mergeItem(ctx, agg, itemID, patch)
	if err != nil {
		return storage.Item{}, err
	}
	e.invalidate(ctx, agg)
	return item, nil
}

// DeleteItem removes one item from the aggregate.
func (e *Engine) DeleteItem(ctx context.Context, agg storage.Aggregate, itemID int64) error {
	if err := e.repo.DeleteItem(ctx, agg.ID, itemID); err != nil {
		return err
	}
	e.invalidate(ctx, agg)
	return nil
}

// Delete removes the aggregate; the store cascades to its items.
func (e *Engine) Delete(ctx context.Context, agg storage.Aggregate) error {
	if err := e.repo.DeleteAggregate(ctx, agg.ID); err != nil {
		return err
	}
	e.invalidate(ctx, agg)
	return nil
}

// Instantiate stamps a new task out of a template for any authenticated
// principal. Items are copied by name, description, and planned date only:
// status resets to in-process and tags are not carried over.
func (e *Engine) Instantiate(ctx context.Context, template storage.Aggregate, owner string) (storage.Aggregate, error) {
	now := e.now()
	taskID, err := e.repo.CreateAggregate(ctx, storage.Aggregate{
		Kind:        string(model.KindTask),
		Name:        template.Name,
		Description: template.Description,
		Owner:       owner,
		TemplateID:  &template.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return storage.Aggregate{}, fmt.Errorf("instantiate template %d: %w", template.ID, err)
	}
	items, err := e.repo.ListItems(ctx, storage.ItemListFilter{AggregateID: template.ID})
	if err != nil {
		return storage.Aggregate{}, fmt.Errorf("list template items: %w", err)
	}
	for _, item := range items {
		if _, err := e.repo.CreateItem(ctx, storage.Item{
			AggregateID: taskID,
			Name:        item.Name,
			Description: item.Description,
			Status:      string(model.StatusInProcess),
			PlannedDate: item.PlannedDate,
		}); err != nil {
			return storage.Aggregate{}, fmt.Errorf("copy template item %d: %w", item.ID, err)
		}
	}
	return e.repo.GetAggregate(ctx, string(model.KindTask), taskID)
}

// Promote copies a task into a new template owned by the task's owner.
// Unlike instantiation this keeps item statuses and tag names; the owner is
// the same principal, so the registry resolves to the same tag rows.
func (e *Engine) Promote(ctx context.Context, task storage.Aggregate) (storage.Aggregate, error) {
	now := e.now()
	templateID, err := e.repo.CreateAggregate(ctx, storage.Aggregate{
		Kind:        string(model.KindTemplate),
		Name:        task.Name,
		Description: task.Description,
		Owner:       task.Owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return storage.Aggregate{}, fmt.Errorf("promote task %d: %w", task.ID, err)
	}
	items, err := e.repo.ListItems(ctx, storage.ItemListFilter{AggregateID: task.ID})
	if err != nil {
		return storage.Aggregate{}, fmt.Errorf("list task items: %w", err)
	}
	for _, item := range items {
		itemID, err := e.repo.CreateItem(ctx, storage.Item{
			AggregateID: templateID,
			Name:        item.Name,
			Description: item.Description,
			Status:      item.Status,
			PlannedDate: item.PlannedDate,
		})
		if err != nil {
			return storage.Aggregate{}, fmt.Errorf("copy task item %d: %w", item.ID, err)
		}
		names, err := e.repo.ItemTagNames(ctx, item.ID)
		if err != nil {
			return storage.Aggregate{}, fmt.Errorf("read item tags: %w", err)
		}
		if len(names) > 0 {
			resolved, err := e.tags.Resolve(ctx, task.Owner, names)
			if err != nil {
				return storage.Aggregate{}, err
			}
			if err := e.repo.SetItemTags(ctx, itemID, tags.IDs(resolved)); err != nil {
				return storage.Aggregate{}, fmt.Errorf("attach tags: %w", err)
			}
		}
	}
	template, err := e.repo.GetAggregate(ctx, string(model.KindTemplate), templateID)
	if err != nil {
		return storage.Aggregate{}, err
	}
	e.invalidate(ctx, template)
	return template, nil
}

func (e *Engine) mergeItem(ctx context.Context, agg storage.Aggregate, itemID int64, patch ItemPatch) (storage.Item, error) {
	item, err := e.repo.GetItem(ctx, agg.ID, itemID)
	if err != nil {
		return storage.Item{}, err
	}
	if patch.Name != nil {
		item.Name = *patch.Name
	}
	if patch.Description != nil {
		item.Description = *patch.Description
	}
	if patch.Status != nil {
		item.Status = string(*patch.Status)
	}
	if patch.PlannedDate.Set {
		item.PlannedDate = patch.PlannedDate.Date
	}
	if err := e.repo.UpdateItem(ctx, item); err != nil {
		return storage.Item{}, fmt.Errorf("update item %d: %w", itemID, err)
	}
	if err := e.applyTags(ctx, agg.Owner, item.ID, patch.TagsInput); err != nil {
		return storage.Item{}, err
	}
	return item, nil
}

func (e *Engine) createItem(ctx context.Context, agg storage.Aggregate, patch ItemPatch) (int64, error) {
	item := storage.Item{
		AggregateID: agg.ID,
		Name:        model.DefaultItemName,
		Status:      string(model.StatusInProcess),
	}
	if patch.Name != nil {
		item.Name = *patch.Name
	}
	if patch.Description != nil {
		item.Description = *patch.Description
	}
	if patch.Status != nil {
		item.Status = string(*patch.Status)
	}
	if patch.PlannedDate.Set {
		item.PlannedDate = patch.PlannedDate.Date
	}
	id, err := e.repo.CreateItem(ctx, item)
	if err != nil {
		return 0, fmt.Errorf("create item: %w", err)
	}
	if err := e.applyTags(ctx, agg.Owner, id, patch.TagsInput); err != nil {
		return 0, err
	}
	return id, nil
}

// applyTags replaces (never unions) the item's tag set when tagsInput is
// present, and leaves it alone when absent.
func (e *Engine) applyTags(ctx context.Context, owner string, itemID int64, tagsInput *[]string) error {
	if tagsInput == nil {
		return nil
	}
	resolved, err := e.tags.Resolve(ctx, owner, *tagsInput)
	if err != nil {
		return err
	}
	if err := e.repo.SetItemTags(ctx, itemID, tags.IDs(resolved)); err != nil {
		return fmt.Errorf("set item tags: %w", err)
	}
	return nil
}

func (e *Engine) snapshotItemIDs(ctx context.Context, aggregateID int64) (map[int64]bool, error) {
	ids, err := e.repo.ListItemIDs(ctx, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("snapshot item ids: %w", err)
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

func (e *Engine) invalidate(ctx context.Context, agg storage.Aggregate) {
	if e.inval == nil || agg.Kind != string(model.KindTemplate) {
		return
	}
	e.inval.InvalidateTemplate(ctx, agg.ID)
}

// validateItemPatches runs every check that can fail before any row is
// touched, so a rejected payload leaves no partial state.
func validateItemPatches(patches []ItemPatch) error {
	for _, patch := range patches {
		if patch.Status != nil && !patch.Status.IsValid() {
			return fmt.Errorf("%w: %q", model.ErrInvalidStatus, *patch.Status)
		}
		if patch.Name != nil {
			if err := model.ValidateName(*patch.Name); err != nil {
				return err
			}
		}
		if patch.TagsInput != nil {
			for _, name := range *patch.TagsInput {
				if err := model.ValidateTagName(name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
