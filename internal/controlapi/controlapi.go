// Package controlapi implements the router's management surface: a
// plain JSON-over-HTTP API mirroring the base daemon's ConnectRPC server
// in shape (thin handlers delegating straight to the domain type) but
// without depending on generated protobuf code, which the reference
// pack does not carry for this project.
package controlapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-signalmap/router/internal/router"
)

// Server is a thin HTTP adapter in front of a *router.Router. Each
// handler validates its request, delegates to the router, and encodes
// the result as JSON -- a thin adapter over the domain manager.
type Server struct {
	router *router.Router
	logger *slog.Logger
	mux    *http.ServeMux
}

// New constructs a Server wrapping r and returns its handler, ready to
// be served directly or wrapped in h2c.
func New(r *router.Router, logger *slog.Logger) *Server {
	s := &Server{
		router: r,
		logger: logger.With(slog.String("component", "controlapi")),
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.mux.ServeHTTP(w, req)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /v1/connections", s.handleListConnections)
	s.mux.HandleFunc("POST /v1/connections/outgoing", s.handleAddOutgoing)
	s.mux.HandleFunc("POST /v1/connections/incoming", s.handleAddIncoming)
	s.mux.HandleFunc("DELETE /v1/connections/incoming/{id}", s.handleRemoveIncoming)
	s.mux.HandleFunc("POST /v1/connections/outgoing/remove", s.handleRemoveOutgoing)
	s.mux.HandleFunc("GET /v1/signals/{path...}", s.handleGetRouterSignal)
	s.mux.HandleFunc("GET /v1/links", s.handleListLinks)
	s.mux.HandleFunc("GET /v1/links/watch", s.handleWatchLinkEvents)
	s.mux.HandleFunc("POST /v1/query", s.handleSendQuery)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleListConnections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.router.Connections())
}

type addOutgoingRequest struct {
	Sources    []string `json:"sources"`
	Dest       string   `json:"dest"`
	DestType   string   `json:"dest_type"`
	DestLength int      `json:"dest_length"`
	Expression string   `json:"expression"`
}

func (s *Server) handleAddOutgoing(w http.ResponseWriter, req *http.Request) {
	var body addOutgoingRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if len(body.DestType) != 1 {
		writeError(w, http.StatusBadRequest, errors.New("dest_type must be a single character"))
		return
	}

	sources := make([]*router.LocalSignal, 0, len(body.Sources))
	for _, path := range body.Sources {
		sig := s.router.LookupSignal(path)
		if sig == nil {
			writeError(w, http.StatusNotFound, fmt.Errorf("unknown local signal %q", path))
			return
		}
		sources = append(sources, sig)
	}

	conn, err := s.router.AddOutgoingConnection(req.Context(), sources, body.Dest, body.DestType[0], body.DestLength, body.Expression)
	if err != nil {
		writeError(w, statusForRouterErr(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, router.SummarizeConnection(conn))
}

type incomingSourceRequest struct {
	Local  string `json:"local,omitempty"`
	Device string `json:"device,omitempty"`
	Signal string `json:"signal,omitempty"`
	Type   string `json:"type,omitempty"`
	Length int    `json:"length,omitempty"`
}

type addIncomingRequest struct {
	Dest       string                  `json:"dest"`
	Sources    []incomingSourceRequest `json:"sources"`
	Expression string                  `json:"expression"`
}

func (s *Server) handleAddIncoming(w http.ResponseWriter, req *http.Request) {
	var body addIncomingRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	dest := s.router.LookupSignal(body.Dest)
	if dest == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown local signal %q", body.Dest))
		return
	}

	sources := make([]router.IncomingSource, 0, len(body.Sources))
	for _, src := range body.Sources {
		if src.Local != "" {
			sig := s.router.LookupSignal(src.Local)
			if sig == nil {
				writeError(w, http.StatusNotFound, fmt.Errorf("unknown local signal %q", src.Local))
				return
			}
			sources = append(sources, router.IncomingSource{Local: sig})
			continue
		}
		if len(src.Type) != 1 {
			writeError(w, http.StatusBadRequest, errors.New("remote source type must be a single character"))
			return
		}
		sources = append(sources, router.IncomingSource{
			Device: src.Device, Signal: src.Signal, Type: src.Type[0], Length: src.Length,
		})
	}

	conn, err := s.router.AddIncomingConnection(req.Context(), dest, sources, body.Expression)
	if err != nil {
		writeError(w, statusForRouterErr(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, router.SummarizeConnection(conn))
}

func (s *Server) handleRemoveIncoming(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseInt(req.PathValue("id"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse id: %w", err))
		return
	}
	conn := s.router.FindIncomingConnectionByID(int32(id))
	if conn == nil {
		writeError(w, http.StatusNotFound, router.ErrConnectionNotFound)
		return
	}
	if err := s.router.RemoveConnection(conn); err != nil {
		writeError(w, statusForRouterErr(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type removeOutgoingRequest struct {
	Local      string   `json:"local"`
	SourceRefs []string `json:"source_refs"`
	Dest       string   `json:"dest"`
}

// handleRemoveOutgoing looks up an OUTGOING connection the same way the
// admin protocol addresses one without a negotiated id: by its anchoring
// local source signal, the names of its other sources (if any), and its
// destination path.
func (s *Server) handleRemoveOutgoing(w http.ResponseWriter, req *http.Request) {
	var body removeOutgoingRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	sig := s.router.LookupSignal(body.Local)
	if sig == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown local signal %q", body.Local))
		return
	}
	conn := s.router.FindOutgoingConnection(sig, body.SourceRefs, body.Dest)
	if conn == nil {
		writeError(w, http.StatusNotFound, router.ErrConnectionNotFound)
		return
	}
	if err := s.router.RemoveConnection(conn); err != nil {
		writeError(w, statusForRouterErr(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListLinks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.router.Links())
}

type sendQueryRequest struct {
	Signal string `json:"signal,omitempty"`
}

type sendQueryResponse struct {
	Queried int `json:"queried"`
}

// handleSendQuery issues a query-request for signal (or every local
// signal, if signal is empty) and reports how many links were queried.
func (s *Server) handleSendQuery(w http.ResponseWriter, req *http.Request) {
	var body sendQueryRequest
	if req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
			return
		}
	}

	tt := s.router.Now()
	if body.Signal == "" {
		n := s.router.QueryAll(req.Context(), tt)
		writeJSON(w, http.StatusOK, sendQueryResponse{Queried: n})
		return
	}

	sig := s.router.LookupSignal(body.Signal)
	if sig == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown local signal %q", body.Signal))
		return
	}
	n := s.router.SendQuery(req.Context(), sig, tt)
	writeJSON(w, http.StatusOK, sendQueryResponse{Queried: n})
}

func (s *Server) handleGetRouterSignal(w http.ResponseWriter, req *http.Request) {
	path := "/" + req.PathValue("path")
	summary := s.router.RouterSignalByPath(path)
	if summary == nil {
		writeError(w, http.StatusNotFound, router.ErrSignalNotFound)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleWatchLinkEvents streams newline-delimited JSON LinkEvent values
// until the client disconnects, playing the role of the base daemon's
// server-streaming WatchSessionEvents RPC without a generated streaming
// transport.
func (s *Server) handleWatchLinkEvents(w http.ResponseWriter, req *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	ch, unsubscribe := s.router.SubscribeLinkEvents()
	defer unsubscribe()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for {
		select {
		case <-req.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if err := enc.Encode(ev); err != nil {
				s.logger.Warn("watch link events encode failed", slog.String("error", err.Error()))
				return
			}
			flusher.Flush()
		}
	}
}

func statusForRouterErr(err error) int {
	switch {
	case errors.Is(err, router.ErrNoSources),
		errors.Is(err, router.ErrTooManySources),
		errors.Is(err, router.ErrBadSignalName),
		errors.Is(err, router.ErrDeviceNameTooLong):
		return http.StatusBadRequest
	case errors.Is(err, router.ErrConnectionNotFound),
		errors.Is(err, router.ErrSignalNotFound),
		errors.Is(err, router.ErrLinkNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}
