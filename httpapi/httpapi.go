// Package httpapi exposes an Engine over HTTP (spec §6): point
// get/put/delete, bulk put, and a bounded range scan, with write verbs
// rejected on a replica's public port (spec §4.7, §7 WriteOnReplica).
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/tigerwill90/fox"

	"github.com/intellect4all/triekv/common"
	"github.com/intellect4all/triekv/engine"
)

// Role selects which write rules a Server enforces on the port it's
// mounted on: a replica's public port is read-only, its replication port
// accepts the write verbs forwarded by its primary.
type Role int

const (
	RolePublic Role = iota
	RoleReplication
)

// Server adapts an Engine to fox's router. One Engine backs two Servers
// on a replica (public, replication); a primary runs a single RolePublic
// Server on its one port.
type Server struct {
	eng  *engine.Engine
	role Role
}

// NewServer builds the fox router for the given role against eng.
func NewServer(eng *engine.Engine, role Role) (http.Handler, error) {
	s := &Server{eng: eng, role: role}

	f, err := fox.New()
	if err != nil {
		return nil, err
	}
	if err := f.Handle(http.MethodGet, "/kv/{key}", s.handleGet); err != nil {
		return nil, err
	}
	if err := f.Handle(http.MethodPost, "/kv/{key}", s.handlePut); err != nil {
		return nil, err
	}
	if err := f.Handle(http.MethodDelete, "/kv/{key}", s.handleDelete); err != nil {
		return nil, err
	}
	if err := f.Handle(http.MethodPost, "/bulk", s.handleBulk); err != nil {
		return nil, err
	}
	if err := f.Handle(http.MethodGet, "/bulk/range", s.handleRange); err != nil {
		return nil, err
	}
	if err := f.Handle(http.MethodGet, "/stats", s.handleStats); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Server) handleGet(c fox.Context) {
	key := c.Param("key")
	v, err := s.eng.Get(key)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Writer().WriteHeader(http.StatusOK)
	_, _ = c.Writer().Write(v)
}

func (s *Server) handlePut(c fox.Context) {
	if isWriteRejected(s) {
		writeError(c, common.ErrWriteOnReplica)
		return
	}

	key := c.Param("key")
	value, err := io.ReadAll(io.LimitReader(c.Request().Body, engine.DefaultMaxPageBytes))
	if err != nil {
		writeError(c, common.ErrIO)
		return
	}
	if err := s.eng.Put(key, value); err != nil {
		writeError(c, err)
		return
	}
	c.Writer().WriteHeader(http.StatusOK)
}

func (s *Server) handleDelete(c fox.Context) {
	if isWriteRejected(s) {
		writeError(c, common.ErrWriteOnReplica)
		return
	}

	key := c.Param("key")
	if err := s.eng.Delete(key); err != nil {
		writeError(c, err)
		return
	}
	c.Writer().WriteHeader(http.StatusOK)
}

func (s *Server) handleBulk(c fox.Context) {
	if isWriteRejected(s) {
		writeError(c, common.ErrWriteOnReplica)
		return
	}

	var body map[string]string
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		writeError(c, common.ErrInvalidKey)
		return
	}
	pairs := make([]common.KV, 0, len(body))
	for k, v := range body {
		pairs = append(pairs, common.KV{Key: k, Value: []byte(v)})
	}
	if err := s.eng.BulkPut(pairs); err != nil {
		writeError(c, err)
		return
	}
	c.Writer().WriteHeader(http.StatusOK)
}

func (s *Server) handleRange(c fox.Context) {
	q := c.Request().URL.Query()
	lo := q.Get("start_key")
	hi := q.Get("end_key")

	results, err := s.eng.Range(lo, hi, 0)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make(map[string]string, len(results))
	for _, kv := range results {
		out[kv.Key] = string(kv.Value)
	}
	c.Writer().Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(c.Writer()).Encode(out)
}

func (s *Server) handleStats(c fox.Context) {
	c.Writer().Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(c.Writer()).Encode(s.eng.Stats())
}

// isWriteRejected reports whether this Server must refuse a write: only a
// replica's public-port Server does (spec §4.7, §6).
func isWriteRejected(s *Server) bool {
	return s.role == RolePublic && s.eng.IsReplica()
}

func writeError(c fox.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrInvalidKey):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrValueTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrOverloaded):
		status = http.StatusServiceUnavailable
	case errors.Is(err, common.ErrWriteOnReplica):
		status = http.StatusMethodNotAllowed
	case errors.Is(err, common.ErrIO):
		status = http.StatusInternalServerError
		log.Error().Err(err).Msg("storage i/o error serving request")
	}
	http.Error(c.Writer(), err.Error(), status)
}
