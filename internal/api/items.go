package api

import (
	"net/http"

	"github.com/sandeepkv93/trackd/internal/access"
	"github.com/sandeepkv93/trackd/internal/model"
	"github.com/sandeepkv93/trackd/internal/storage"
)

// taskItem resolves the nested task-item route: the parent task is
// owner-scoped, so both a foreign parent and a foreign item read as
// not-found.
func (s *Server) taskItem(r *http.Request) (storage.Aggregate, storage.Item, error) {
	taskID, err := pathID(r, "task_id")
	if err != nil {
		return storage.Aggregate{}, storage.Item{}, err
	}
	task, err := s.repo.GetOwnedAggregate(r.Context(), string(model.KindTask), taskID, principalFrom(r.Context()))
	if err != nil {
		return storage.Aggregate{}, storage.Item{}, err
	}
	itemID, err := pathID(r, "id")
	if err != nil {
		return storage.Aggregate{}, storage.Item{}, err
	}
	item, err := s.repo.GetItem(r.Context(), task.ID, itemID)
	if err != nil {
		return storage.Aggregate{}, storage.Item{}, err
	}
	return task, item, nil
}

// templateItem resolves the nested template-item route; the parent load is
// unscoped and gated by the read policy, write checks happen in the
// handlers.
func (s *Server) templateItem(r *http.Request) (storage.Aggregate, storage.Item, error) {
	templateID, err := pathID(r, "task_id")
	if err != nil {
		return storage.Aggregate{}, storage.Item{}, err
	}
	template, err := s.repo.GetAggregate(r.Context(), string(model.KindTemplate), templateID)
	if err != nil {
		return storage.Aggregate{}, storage.Item{}, err
	}
	if !access.CanRead(principalFrom(r.Context()), template) {
		return storage.Aggregate{}, storage.Item{}, storage.ErrNotFound
	}
	itemID, err := pathID(r, "id")
	if err != nil {
		return storage.Aggregate{}, storage.Item{}, err
	}
	item, err := s.repo.GetItem(r.Context(), template.ID, itemID)
	if err != nil {
		return storage.Aggregate{}, storage.Item{}, err
	}
	return template, item, nil
}

func (s *Server) handleTaskItemRetrieve(w http.ResponseWriter, r *http.Request) {
	_, item, err := s.taskItem(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeItem(w, r, item)
}

func (s *Server) handleTaskItemUpdate(w http.ResponseWriter, r *http.Request) {
	task, item, err := s.taskItem(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.mergeItem(w, r, task, item)
}

func (s *Server) handleTaskItemDelete(w http.ResponseWriter, r *http.Request) {
	task, item, err := s.taskItem(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.deleteItem(w, r, task, item)
}

func (s *Server) handleTemplateItemRetrieve(w http.ResponseWriter, r *http.Request) {
	_, item, err := s.templateItem(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeItem(w, r, item)
}

func (s *Server) handleTemplateItemUpdate(w http.ResponseWriter, r *http.Request) {
	template, item, err := s.templateItem(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if !access.CanWrite(principalFrom(r.Context()), template) {
		s.writeError(w, ErrCodeForbidden, "only the creator may modify a template")
		return
	}
	s.mergeItem(w, r, template, item)
}

func (s *Server) handleTemplateItemDelete(w http.ResponseWriter, r *http.Request) {
	template, item, err := s.templateItem(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if !access.CanWrite(principalFrom(r.Context()), template) {
		s.writeError(w, ErrCodeForbidden, "only the creator may delete a template item")
		return
	}
	s.deleteItem(w, r, template, item)
}

func (s *Server) writeItem(w http.ResponseWriter, r *http.Request, item storage.Item) {
	view, err := s.viewOneItem(r.Context(), item)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) mergeItem(w http.ResponseWriter, r *http.Request, agg storage.Aggregate, item storage.Item) {
	var payload itemPayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	patch, err := payload.toPatch()
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	merged, err := s.engine.MergeItem(r.Context(), agg, item.ID, patch)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeItem(w, r, merged)
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request, agg storage.Aggregate, item storage.Item) {
	if err := s.engine.DeleteItem(r.Context(), agg, item.ID); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
