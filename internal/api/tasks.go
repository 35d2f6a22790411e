package api

import (
	"net/http"

	"github.com/sandeepkv93/trackd/internal/model"
	"github.com/sandeepkv93/trackd/internal/query"
	"github.com/sandeepkv93/trackd/internal/reconcile"
	"github.com/sandeepkv93/trackd/internal/status"
	"github.com/sandeepkv93/trackd/internal/storage"
)

// ownedTask loads a task scoped to the requesting principal. Foreign tasks
// read as not-found so their existence never leaks.
func (s *Server) ownedTask(r *http.Request) (storage.Aggregate, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return storage.Aggregate{}, err
	}
	return s.repo.GetOwnedAggregate(r.Context(), string(model.KindTask), id, principalFrom(r.Context()))
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	aggs, err := s.repo.ListAggregates(r.Context(), storage.AggregateListFilter{
		Kind:     string(model.KindTask),
		Owner:    principalFrom(r.Context()),
		Search:   query.Search(q),
		Ordering: query.Ordering(q, "-updated_at"),
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewAggregateList(aggs))
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	agg, err := s.createAggregate(r, model.KindTask)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, viewAggregate(agg))
}

// createAggregate is the shared create path for both kinds; name is the one
// required payload field.
func (s *Server) createAggregate(r *http.Request, kind model.Kind) (storage.Aggregate, error) {
	var payload aggregatePayload
	if err := decodeJSON(r, &payload); err != nil {
		return storage.Aggregate{}, err
	}
	if payload.Name == nil {
		return storage.Aggregate{}, errNameRequired
	}
	if err := model.ValidateName(*payload.Name); err != nil {
		return storage.Aggregate{}, err
	}
	items, err := payload.itemPatches()
	if err != nil {
		return storage.Aggregate{}, err
	}
	draft := reconcile.Draft{Name: *payload.Name, Items: items}
	if payload.Description != nil {
		draft.Description = *payload.Description
	}
	return s.engine.Create(r.Context(), kind, principalFrom(r.Context()), draft)
}

func (s *Server) handleTaskRetrieve(w http.ResponseWriter, r *http.Request) {
	task, err := s.ownedTask(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	envelope, err := s.itemsPage(r, task)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope)
}

// itemsPage builds the retrieve envelope: the aggregate with one page of its
// items, plus page navigation.
func (s *Server) itemsPage(r *http.Request, agg storage.Aggregate) (pagedView, error) {
	q := r.URL.Query()
	page := query.ItemsPage(q, s.pageSize)
	filter := storage.ItemListFilter{AggregateID: agg.ID, Date: query.DateBucket(q)}

	total, err := s.repo.CountItems(r.Context(), filter)
	if err != nil {
		return pagedView{}, err
	}
	filter.Limit = page.Limit()
	filter.Offset = page.Offset()
	items, err := s.repo.ListItems(r.Context(), filter)
	if err != nil {
		return pagedView{}, err
	}
	views, err := s.viewItems(r.Context(), items)
	if err != nil {
		return pagedView{}, err
	}
	return pagedView{
		Count:    total,
		Next:     page.Next(total),
		Previous: page.Previous(),
		Results:  aggregateDetailView{aggregateView: viewAggregate(agg), Items: views},
	}, nil
}

func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	task, err := s.ownedTask(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	var payload aggregatePayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	patch, err := payload.toPatch()
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	report, updated, err := s.engine.Reconcile(r.Context(), task, patch, reconcileMode(r))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updateView{
		Message:      "update successful",
		UpdatedItems: report,
		Task:         viewAggregate(updated),
	})
}

func reconcileMode(r *http.Request) reconcile.Mode {
	if r.Method == http.MethodPut {
		return reconcile.FullReplace
	}
	return reconcile.PartialMerge
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	task, err := s.ownedTask(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if err := s.engine.Delete(r.Context(), task); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTaskStatusGrouping(w http.ResponseWriter, r *http.Request) {
	task, err := s.ownedTask(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	grouping, err := status.Grouping(r.Context(), s.repo, task)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]map[model.Status][]int64{
		"id_task_and_current_status": grouping,
	})
}

func (s *Server) handleTaskStatusUpdate(w http.ResponseWriter, r *http.Request) {
	task, err := s.ownedTask(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	var payload struct {
		Updates []struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		} `json:"updates"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	updates := make([]status.Update, 0, len(payload.Updates))
	for _, update := range payload.Updates {
		updates = append(updates, status.Update{ID: update.ID, Status: model.Status(update.Status)})
	}
	result, err := status.Apply(r.Context(), s.repo, task, updates)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]int64{
		"updated":   result.Updated,
		"not_found": result.NotFound,
	})
}

func (s *Server) handleTaskSaveAsTemplate(w http.ResponseWriter, r *http.Request) {
	task, err := s.ownedTask(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	template, err := s.engine.Promote(r.Context(), task)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, viewAggregate(template))
}
