// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jllopis/canvasrelay/pkg/errors"
	"github.com/jllopis/canvasrelay/pkg/session"
)

func (s *Server) sessions(w http.ResponseWriter, r *http.Request) *session.Store {
	if s.deps.Sessions == nil {
		s.writeError(w, r, errors.NewConfiguration("sessions"))
		return nil
	}
	return s.deps.Sessions
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	store := s.sessions(w, r)
	if store == nil {
		return
	}
	var body struct {
		State map[string]any `json:"state"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &body); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, store.Create(body.State))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	store := s.sessions(w, r)
	if store == nil {
		return
	}
	sess, err := store.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	store := s.sessions(w, r)
	if store == nil {
		return
	}
	var body struct {
		State map[string]any `json:"state"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := store.UpdateState(chi.URLParam(r, "id"), body.State)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleEnqueueCommand(w http.ResponseWriter, r *http.Request) {
	store := s.sessions(w, r)
	if store == nil {
		return
	}
	var cmd session.Command
	if err := decodeBody(w, r, &cmd); err != nil {
		s.writeError(w, r, err)
		return
	}
	queued, err := store.Enqueue(chi.URLParam(r, "id"), cmd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, queued)
}

// handleDrainCommands hands the pending commands to the front-end, which
// polls this endpoint.
func (s *Server) handleDrainCommands(w http.ResponseWriter, r *http.Request) {
	store := s.sessions(w, r)
	if store == nil {
		return
	}
	cmds, err := store.Drain(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": cmds})
}
