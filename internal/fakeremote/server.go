package fakeremote

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/five82/tripsync/internal/export"
	"github.com/five82/tripsync/internal/itinerary"
)

// Options configures a Server.
type Options struct {
	// Prefix is the API root, "/api" by default.
	Prefix string
	// Token, when set, is required as a bearer token on every call.
	Token string
	// ShareBase is the root of generated share links.
	ShareBase string
	Logger    *zap.Logger
}

// Server holds the fake service state.
type Server struct {
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	records  map[string]itinerary.Record
	profile  json.RawMessage
	settings json.RawMessage
	down     bool
	failWith int
	calls    []string
	nextID   int
}

// New returns an empty Server.
func New(opts Options) *Server {
	if opts.Prefix == "" {
		opts.Prefix = "/api"
	}
	opts.Prefix = "/" + strings.Trim(opts.Prefix, "/")
	if opts.ShareBase == "" {
		opts.ShareBase = "https://trips.example.test/s/"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{opts: opts, logger: logger.Named("fakeremote"), records: map[string]itinerary.Record{}}
}

// Handler returns the HTTP handler: outage simulation, then CORS, then routes.
func (s *Server) Handler() http.Handler {
	p := s.opts.Prefix
	router := httprouter.New()
	router.HandleMethodNotAllowed = true

	router.HEAD(p+"/", s.health)
	router.GET(p+"/", s.health)
	router.GET(p+"/itineraries", s.guard(s.list))
	router.POST(p+"/itineraries", s.guard(s.create))
	router.GET(p+"/itineraries/:id", s.guard(s.get))
	router.PUT(p+"/itineraries/:id", s.guard(s.update))
	router.DELETE(p+"/itineraries/:id", s.guard(s.remove))
	router.POST(p+"/itineraries/:id/share", s.guard(s.share))
	router.GET(p+"/itineraries/:id/pdf", s.guard(s.pdf))
	router.PUT(p+"/user/profile", s.guard(s.putProfile))
	router.PUT(p+"/user/settings", s.guard(s.putSettings))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(router)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		down := s.down
		s.calls = append(s.calls, r.Method+" "+r.URL.Path)
		s.mu.Unlock()

		if down {
			dropConnection(w)
			return
		}
		corsHandler.ServeHTTP(w, r)
	})
}

// SetDown makes the service drop every connection (true) or serve again.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

// FailWith answers every API call with status (0 restores normal service).
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	s.failWith = status
	s.mu.Unlock()
}

// Seed replaces the stored itineraries.
func (s *Server) Seed(records ...itinerary.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]itinerary.Record, len(records))
	for _, r := range records {
		s.records[r.ID] = r.Clone()
	}
}

// Records returns the stored itineraries sorted by id.
func (s *Server) Records() []itinerary.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Record returns one stored itinerary.
func (s *Server) Record(id string) (itinerary.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	return r.Clone(), ok
}

// Profile returns the last profile written.
func (s *Server) Profile() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(json.RawMessage(nil), s.profile...)
}

// Settings returns the last settings written.
func (s *Server) Settings() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(json.RawMessage(nil), s.settings...)
}

// Calls returns "METHOD /path" for every request received, in order.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// ResetCalls clears the call log.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}

func (s *Server) guard(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s.mu.Lock()
		fail := s.failWith
		s.mu.Unlock()
		if fail != 0 {
			respondWithError(w, fail, "injected failure")
			return
		}
		if s.opts.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.opts.Token {
			respondWithError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		next(w, r, ps)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.mu.Lock()
	records := s.sortedLocked()
	s.mu.Unlock()
	respondWithJSON(w, http.StatusOK, records)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rec, ok := s.Record(ps.ByName("id"))
	if !ok {
		respondWithError(w, http.StatusNotFound, "itinerary not found")
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

// create stores the posted record. Posting an id that already exists
// overwrites it so replayed creates are idempotent.
func (s *Server) create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(rec.Title) == "" {
		respondWithError(w, http.StatusUnprocessableEntity, "title required")
		return
	}

	s.mu.Lock()
	if rec.ID == "" {
		s.nextID++
		rec.ID = fmt.Sprintf("srv-%d", s.nextID)
	}
	if rec.SavedAt == "" {
		rec.SavedAt = time.Now().UTC().Format(time.RFC3339)
	}
	s.records[rec.ID] = rec.Clone()
	s.mu.Unlock()

	s.logger.Debug("created itinerary", zap.String("id", rec.ID))
	respondWithJSON(w, http.StatusCreated, rec)
}

// update upserts: a PUT for an unknown id creates it.
func (s *Server) update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	rec.ID = ps.ByName("id")

	s.mu.Lock()
	s.records[rec.ID] = rec.Clone()
	s.mu.Unlock()
	respondWithJSON(w, http.StatusOK, rec)
}

// remove answers 204 whether or not the id existed.
func (s *Server) remove(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.mu.Lock()
	delete(s.records, ps.ByName("id"))
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) share(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if _, ok := s.Record(id); !ok {
		respondWithError(w, http.StatusNotFound, "itinerary not found")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{
		"url":       s.opts.ShareBase + id,
		"expiresAt": time.Now().Add(7 * 24 * time.Hour).UTC().Format(time.RFC3339),
	})
}

func (s *Server) pdf(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rec, ok := s.Record(ps.ByName("id"))
	if !ok {
		respondWithError(w, http.StatusNotFound, "itinerary not found")
		return
	}
	doc, err := export.PDF(rec, export.Options{})
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename="+export.FileName(rec))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (s *Server) putProfile(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	raw, ok := readJSON(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	s.profile = raw
	s.mu.Unlock()
	respondWithJSON(w, http.StatusOK, raw)
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	raw, ok := readJSON(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	s.settings = raw
	s.mu.Unlock()
	respondWithJSON(w, http.StatusOK, raw)
}

func (s *Server) sortedLocked() []itinerary.Record {
	out := make([]itinerary.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func readJSON(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil || !json.Valid(body) {
		respondWithError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	return body, true
}

func decodeRecord(w http.ResponseWriter, r *http.Request) (itinerary.Record, bool) {
	body, ok := readJSON(w, r)
	if !ok {
		return itinerary.Record{}, false
	}
	rec, err := itinerary.Decode(body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid itinerary")
		return itinerary.Record{}, false
	}
	return rec, true
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"message": message})
}

// dropConnection closes the underlying connection without writing a
// response, which clients observe as a transport error.
func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic(http.ErrAbortHandler)
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		panic(http.ErrAbortHandler)
	}
	_ = conn.Close()
}
