package api

import (
	"net/http"

	"github.com/sandeepkv93/trackd/internal/storage"
)

func (s *Server) handleTagList(w http.ResponseWriter, r *http.Request) {
	tagRows, err := s.registry.List(r.Context(), principalFrom(r.Context()))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewTags(tagRows))
}

// handleTagCreate is idempotent: posting an existing name returns the same
// tag row.
func (s *Server) handleTagCreate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	tag, err := s.registry.GetOrCreate(r.Context(), principalFrom(r.Context()), payload.Name)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, tagView{ID: tag.ID, Name: tag.Name})
}

func viewTags(tagRows []storage.Tag) []tagView {
	out := make([]tagView, 0, len(tagRows))
	for _, tag := range tagRows {
		out = append(out, tagView{ID: tag.ID, Name: tag.Name})
	}
	return out
}
