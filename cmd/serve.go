package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jsphweid/metalign/batch"
	"github.com/jsphweid/metalign/config"
	"github.com/jsphweid/metalign/constants"
	"github.com/jsphweid/metalign/joint"
	"github.com/jsphweid/metalign/metrics"
	"github.com/jsphweid/metalign/model"
	"github.com/jsphweid/metalign/results"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
)

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the session API",
	Long:  `Serves an HTTP API where clients stream note batches into alignment sessions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		router := NewRouter(searchConfig, prometheus.NewRegistry())
		slog.Info("listening", "addr", serveAddr)
		return http.ListenAndServe(serveAddr, router)
	},
}

// session is one streaming search. Its mutex serialises the coordinator
// calls.
type session struct {
	mu        sync.Mutex
	search    *joint.Coordinator
	nextID    int
	exhausted bool
}

type server struct {
	cfg      config.SearchConfig
	observer *metrics.Observer

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewRouter returns the session API. Metrics are registered on reg and served
// at /metrics.
func NewRouter(cfg config.SearchConfig, reg *prometheus.Registry) http.Handler {
	s := &server{
		cfg:      cfg,
		observer: metrics.NewObserver(reg),
		sessions: make(map[string]*session),
	}

	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/sessions", s.handleCreate).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}", s.handleDelete).Methods(http.MethodDelete)
	router.HandleFunc("/sessions/{id}/batches", s.handleBatches).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/close", s.handleClose).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/hypotheses", s.handleHypotheses).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("could not write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, model.ErrorResponse{Error: err.Error()})
}

func (s *server) lookup(w http.ResponseWriter, r *http.Request) (string, *session, bool) {
	id := mux.Vars(r)["id"]
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no session %q", id))
	}
	return id, sess, ok
}

func (s *server) handleCreate(w http.ResponseWriter, r *http.Request) {
	id := uuid.New().String()
	sess := &session{
		search: NewSearch(s.cfg, nil,
			joint.WithObserver(s.observer),
			joint.WithLogger(slog.Default().With("session", id))),
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	slog.Debug("session created", "session", id)
	writeJSON(w, http.StatusCreated, model.SessionResponse{SessionId: id})
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// toNotes assigns session-wide note IDs to the request notes.
func (sess *session) toNotes(inputs []model.NoteInput) []model.NoteEvent {
	res := make([]model.NoteEvent, len(inputs))
	for i, in := range inputs {
		n := model.NoteEvent{
			ID:       sess.nextID + i,
			Onset:    in.Onset,
			Offset:   model.OpenOffset,
			Pitch:    in.Pitch,
			Velocity: in.Velocity,
			Voice:    model.NoVoice,
		}
		if in.Offset != nil {
			n.Offset = *in.Offset
		}
		if in.Voice != nil {
			n.Voice = *in.Voice
		}
		res[i] = n
	}
	return res
}

func (s *server) handleBatches(w http.ResponseWriter, r *http.Request) {
	id, sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var body model.BatchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("could not decode request body: %w", err))
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.search.Closed() {
		writeError(w, http.StatusConflict, joint.ErrClosed)
		return
	}
	notes := sess.toNotes(body.Notes)
	sess.nextID += len(notes)
	batches := batch.FromNotes(notes)
	if err := batch.Validate(batches); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	for _, b := range batches {
		err := sess.search.Step(r.Context(), b)
		if errors.Is(err, joint.ErrBeamExhausted) {
			sess.exhausted = true
			break
		}
		if errors.Is(err, batch.ErrInvalidBatch) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, s.response(id, sess, topParam(r)))
}

func (s *server) handleClose(w http.ResponseWriter, r *http.Request) {
	id, sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	err := sess.search.Close(r.Context())
	if errors.Is(err, joint.ErrBeamExhausted) {
		sess.exhausted = true
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s.response(id, sess, topParam(r)))
}

func (s *server) handleHypotheses(w http.ResponseWriter, r *http.Request) {
	id, sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	writeJSON(w, http.StatusOK, s.response(id, sess, topParam(r)))
}

func (s *server) response(id string, sess *session, top int) model.HypothesesResponse {
	return model.HypothesesResponse{
		SessionId: id,
		Closed:    sess.search.Closed(),
		Exhausted: sess.exhausted,
		Results:   results.FromHypotheses(sess.search.Hypotheses(), top),
	}
}

func topParam(r *http.Request) int {
	top, err := strconv.Atoi(r.URL.Query().Get("top"))
	if err != nil || top < 0 {
		return constants.DefaultTopHypotheses
	}
	return top
}
