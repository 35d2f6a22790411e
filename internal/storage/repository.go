package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("storage: not found")

type Repository interface {
	CreateAggregate(ctx context.Context, in Aggregate) (int64, error)
	GetAggregate(ctx context.Context, kind string, id int64) (Aggregate, error)
	// GetOwnedAggregate scopes the lookup to an owner; a foreign row reads
	// as ErrNotFound so existence never leaks across tenants.
	GetOwnedAggregate(ctx context.Context, kind string, id int64, owner string) (Aggregate, error)
	UpdateAggregate(ctx context.Context, in Aggregate) error
	DeleteAggregate(ctx context.Context, id int64) error
	ListAggregates(ctx context.Context, filter AggregateListFilter) ([]Aggregate, error)

	CreateItem(ctx context.Context, in Item) (int64, error)
	GetItem(ctx context.Context, aggregateID, id int64) (Item, error)
	UpdateItem(ctx context.Context, in Item) error
	DeleteItem(ctx context.Context, aggregateID, id int64) error
	ListItems(ctx context.Context, filter ItemListFilter) ([]Item, error)
	ListItemIDs(ctx context.Context, aggregateID int64) ([]int64, error)
	ListItemStatuses(ctx context.Context, aggregateID int64) ([]ItemStatus, error)
	CountItems(ctx context.Context, filter ItemListFilter) (int, error)
	DeleteItems(ctx context.Context, aggregateID int64) error
	// BulkUpdateItemStatus applies every group inside one transaction;
	// a failure rolls back all of them.
	BulkUpdateItemStatus(ctx context.Context, aggregateID int64, groups []StatusGroup) error

	GetOrCreateTag(ctx context.Context, in Tag) (Tag, error)
	ListTags(ctx context.Context, filter TagListFilter) ([]Tag, error)
	SetItemTags(ctx context.Context, itemID int64, tagIDs []int64) error
	ItemTagNames(ctx context.Context, itemID int64) ([]string, error)
	TagNamesForItems(ctx context.Context, itemIDs []int64) (map[int64][]string, error)
}
