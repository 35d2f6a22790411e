package api

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/sandeepkv93/trackd/internal/model"
	"github.com/sandeepkv93/trackd/internal/reconcile"
	"github.com/sandeepkv93/trackd/internal/storage"
)

// optional wraps a payload field whose absence and explicit null must be
// told apart. UnmarshalJSON only runs for keys present in the document, so
// set is the presence bit.
type optional[T any] struct {
	set   bool
	value T
}

func (o *optional[T]) UnmarshalJSON(data []byte) error {
	o.set = true
	return json.Unmarshal(data, &o.value)
}

type itemPayload struct {
	ID          *int64            `json:"id"`
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	Status      *string           `json:"status"`
	PlannedDate optional[*string] `json:"planned_date"`
	TagsInput   *[]string         `json:"tags_input"`
}

func (p itemPayload) toPatch() (reconcile.ItemPatch, error) {
	patch := reconcile.ItemPatch{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		TagsInput:   p.TagsInput,
	}
	if p.Status != nil {
		s := model.Status(*p.Status)
		patch.Status = &s
	}
	if p.PlannedDate.set {
		patch.PlannedDate.Set = true
		if p.PlannedDate.value != nil {
			t, err := model.ParseDate(*p.PlannedDate.value)
			if err != nil {
				return reconcile.ItemPatch{}, err
			}
			patch.PlannedDate.Date = &t
		}
	}
	return patch, nil
}

type aggregatePayload struct {
	Name        *string                 `json:"name"`
	Description *string                 `json:"description"`
	Items       optional[[]itemPayload] `json:"items"`
}

func (p aggregatePayload) toPatch() (reconcile.AggregatePatch, error) {
	patch := reconcile.AggregatePatch{Name: p.Name, Description: p.Description}
	if p.Items.set {
		items := make([]reconcile.ItemPatch, 0, len(p.Items.value))
		for _, item := range p.Items.value {
			converted, err := item.toPatch()
			if err != nil {
				return reconcile.AggregatePatch{}, err
			}
			items = append(items, converted)
		}
		patch.Items = &items
	}
	return patch, nil
}

func (p aggregatePayload) itemPatches() ([]reconcile.ItemPatch, error) {
	patch, err := p.toPatch()
	if err != nil {
		return nil, err
	}
	if patch.Items == nil {
		return nil, nil
	}
	return *patch.Items, nil
}

type aggregateView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type aggregateListView struct {
	aggregateView
	ItemsCount int `json:"items_count"`
}

type aggregateDetailView struct {
	aggregateView
	Items []itemView `json:"items"`
}

type itemView struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Tags        []string `json:"tags"`
	PlannedDate *string  `json:"planned_date"`
}

type tagView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// pagedView is the retrieve envelope; Next and Previous carry page numbers.
type pagedView struct {
	Count    int  `json:"count"`
	Next     *int `json:"next"`
	Previous *int `json:"previous"`
	Results  any  `json:"results"`
}

type updateView struct {
	Message      string           `json:"message"`
	UpdatedItems reconcile.Report `json:"updated_items"`
	Task         aggregateView    `json:"task"`
}

func viewAggregate(agg storage.Aggregate) aggregateView {
	return aggregateView{ID: agg.ID, Name: agg.Name, Description: agg.Description}
}

func viewAggregateList(aggs []storage.Aggregate) []aggregateListView {
	out := make([]aggregateListView, 0, len(aggs))
	for _, agg := range aggs {
		out = append(out, aggregateListView{aggregateView: viewAggregate(agg), ItemsCount: agg.ItemsCount})
	}
	return out
}

func viewItem(item storage.Item, tagNames []string) itemView {
	if tagNames == nil {
		tagNames = []string{}
	}
	sort.Strings(tagNames)
	view := itemView{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		Status:      item.Status,
		Tags:        tagNames,
	}
	if item.PlannedDate != nil {
		formatted := model.FormatDate(*item.PlannedDate)
		view.PlannedDate = &formatted
	}
	return view
}

func (s *Server) viewItems(ctx context.Context, items []storage.Item) ([]itemView, error) {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	names, err := s.repo.TagNamesForItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]itemView, 0, len(items))
	for _, item := range items {
		out = append(out, viewItem(item, names[item.ID]))
	}
	return out, nil
}

func (s *Server) viewOneItem(ctx context.Context, item storage.Item) (itemView, error) {
	names, err := s.repo.ItemTagNames(ctx, item.ID)
	if err != nil {
		return itemView{}, err
	}
	return viewItem(item, names), nil
}
