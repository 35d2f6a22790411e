package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sandeepkv93/trackd/internal/access"
	"github.com/sandeepkv93/trackd/internal/cache"
	"github.com/sandeepkv93/trackd/internal/model"
	"github.com/sandeepkv93/trackd/internal/query"
	"github.com/sandeepkv93/trackd/internal/storage"
)

const templateListKey = "templates:list"

// templateCache is the read-through layer over the template list and detail
// endpoints. Cache failures degrade to a miss or a skipped write and are
// logged; they never fail the request. Invalidation runs synchronously on
// every template or template-item mutation, through the engine's invalidator
// hook.
type templateCache struct {
	store  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func newTemplateCache(store cache.Cache, ttl time.Duration, logger *slog.Logger) *templateCache {
	return &templateCache{store: store, ttl: ttl, logger: logger}
}

func templateDetailKey(templateID int64, page int) string {
	return fmt.Sprintf("templates:%d:page:%d", templateID, page)
}

func templateDetailPrefix(templateID int64) string {
	return fmt.Sprintf("templates:%d:", templateID)
}

func (c *templateCache) get(ctx context.Context, key string) ([]byte, bool) {
	blob, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache get", "key", key, "error", err)
		return nil, false
	}
	return blob, ok
}

func (c *templateCache) put(ctx context.Context, key string, blob []byte, ttl time.Duration) {
	if err := c.store.Set(ctx, key, blob, ttl); err != nil {
		c.logger.Warn("cache set", "key", key, "error", err)
	}
}

// InvalidateTemplate drops every cached page of the template and the shared
// list entry.
func (c *templateCache) InvalidateTemplate(ctx context.Context, templateID int64) {
	if err := c.store.ScanDelete(ctx, templateDetailPrefix(templateID)); err != nil {
		c.logger.Warn("cache invalidate detail", "template_id", templateID, "error", err)
	}
	if err := c.store.Delete(ctx, templateListKey); err != nil {
		c.logger.Warn("cache invalidate list", "error", err)
	}
}

// template loads a template by path id and gates it through the read
// policy. The load is unscoped, so the policy check is the one place
// visibility is decided.
func (s *Server) template(r *http.Request) (storage.Aggregate, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return storage.Aggregate{}, err
	}
	template, err := s.repo.GetAggregate(r.Context(), string(model.KindTemplate), id)
	if err != nil {
		return storage.Aggregate{}, err
	}
	if !access.CanRead(principalFrom(r.Context()), template) {
		return storage.Aggregate{}, storage.ErrNotFound
	}
	return template, nil
}

func (s *Server) handleTemplateList(w http.ResponseWriter, r *http.Request) {
	if blob, ok := s.templates.get(r.Context(), templateListKey); ok {
		s.writeRaw(w, blob)
		return
	}
	aggs, err := s.repo.ListAggregates(r.Context(), storage.AggregateListFilter{
		Kind: string(model.KindTemplate),
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	blob, err := json.Marshal(viewAggregateList(aggs))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.templates.put(r.Context(), templateListKey, blob, 0)
	s.writeRaw(w, blob)
}

func (s *Server) handleTemplateRetrieve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	q := r.URL.Query()
	page := query.ItemsPage(q, s.pageSize)

	// Date-filtered pages bypass the cache; the key space only covers the
	// unfiltered pagination.
	cacheable := query.DateBucket(q) == storage.DateAny
	key := templateDetailKey(id, page.Number)
	if cacheable {
		if blob, ok := s.templates.get(r.Context(), key); ok {
			s.writeRaw(w, blob)
			return
		}
	}

	template, err := s.template(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	envelope, err := s.itemsPage(r, template)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	blob, err := json.Marshal(envelope)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if cacheable {
		s.templates.put(r.Context(), key, blob, s.templates.ttl)
	}
	s.writeRaw(w, blob)
}

func (s *Server) handleTemplateCreate(w http.ResponseWriter, r *http.Request) {
	agg, err := s.createAggregate(r, model.KindTemplate)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, viewAggregate(agg))
}

func (s *Server) handleTemplateUpdate(w http.ResponseWriter, r *http.Request) {
	template, err := s.template(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if !access.CanWrite(principalFrom(r.Context()), template) {
		s.writeError(w, ErrCodeForbidden, "only the creator may modify a template")
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
	_, updated, err := s.engine.Reconcile(r.Context(), template, patch, reconcileMode(r))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewAggregate(updated))
}

func (s *Server) handleTemplateDelete(w http.ResponseWriter, r *http.Request) {
	template, err := s.template(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if !access.CanWrite(principalFrom(r.Context()), template) {
		s.writeError(w, ErrCodeForbidden, "only the creator may delete a template")
		return
	}
	if err := s.engine.Delete(r.Context(), template); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	template, err := s.template(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	principal := principalFrom(r.Context())
	if !access.CanInstantiate(principal) {
		s.writeError(w, ErrCodeUnauthorized, "authentication required")
		return
	}
	task, err := s.engine.Instantiate(r.Context(), template, principal)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, viewAggregate(task))
}
