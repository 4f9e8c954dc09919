// Package remotetest provides an in-memory CouchDB stand-in for tests. It
// implements the subset of the HTTP API the sync engine uses.
package remotetest

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

type Request struct {
	Method string
	Path   string
}

type Server struct {
	*httptest.Server

	mu          sync.Mutex
	dbs         map[string]map[string]map[string]any
	revs        map[string]int
	unavailable bool
	conflicts   map[string]bool
	failPuts    map[string]int
	latency     time.Duration
	requests    []Request
}

func NewServer() *Server {
	s := &Server{
		dbs:       make(map[string]map[string]map[string]any),
		revs:      make(map[string]int),
		conflicts: make(map[string]bool),
		failPuts:  make(map[string]int),
	}

	r := mux.NewRouter()
	r.Use(s.middleware)
	r.HandleFunc("/", s.root).Methods(http.MethodGet)
	r.HandleFunc("/{db}", s.headDB).Methods(http.MethodHead)
	r.HandleFunc("/{db}", s.getDB).Methods(http.MethodGet)
	r.HandleFunc("/{db}", s.putDB).Methods(http.MethodPut)
	r.HandleFunc("/{db}/_all_docs", s.allDocs).Methods(http.MethodGet)
	r.HandleFunc("/{db}/{id}", s.getDoc).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/{db}/{id}", s.putDoc).Methods(http.MethodPut)
	r.HandleFunc("/{db}/{id}", s.deleteDoc).Methods(http.MethodDelete)

	s.Server = httptest.NewServer(r)
	return s
}

// SetLatency delays every response by d.
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// SetAvailable toggles whether the server answers requests. While
// unavailable every request gets a 503.
func (s *Server) SetAvailable(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = !available
}

// ForceConflict makes every PUT of db/id answer 409 until cleared.
func (s *Server) ForceConflict(db, id string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts[db+"/"+id] = on
}

// FailPuts makes the next n PUTs of db/id answer 500.
func (s *Server) FailPuts(db, id string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPuts[db+"/"+id] = n
}

// CreateDB creates db directly, bypassing HTTP.
func (s *Server) CreateDB(db string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dbs[db]; !ok {
		s.dbs[db] = make(map[string]map[string]any)
	}
}

// Seed stores doc in db, creating the database if needed, and returns the
// assigned revision.
func (s *Server) Seed(db string, doc map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dbs[db]; !ok {
		s.dbs[db] = make(map[string]map[string]any)
	}
	id, _ := doc["_id"].(string)
	return s.store(db, id, doc)
}

// Doc returns a copy of the stored document, or nil.
func (s *Server) Doc(db, id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.dbs[db][id]
	if !ok {
		return nil
	}
	return copyDoc(doc)
}

func (s *Server) HasDB(db string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dbs[db]
	return ok
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// CountRequests counts recorded requests with the given method and path.
func (s *Server) CountRequests(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path})
		unavailable := s.unavailable
		latency := s.latency
		s.mu.Unlock()

		if latency > 0 {
			time.Sleep(latency)
		}

		if unavailable {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "server is down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"couchdb": "Welcome",
		"version": "3.3.3",
		"vendor":  map[string]any{"name": "remotetest"},
	})
}

func (s *Server) headDB(w http.ResponseWriter, r *http.Request) {
	if !s.HasDB(mux.Vars(r)["db"]) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getDB(w http.ResponseWriter, r *http.Request) {
	db := mux.Vars(r)["db"]
	s.mu.Lock()
	docs, ok := s.dbs[db]
	count := len(docs)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Database does not exist.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"db_name": db, "doc_count": count})
}

func (s *Server) putDB(w http.ResponseWriter, r *http.Request) {
	db := mux.Vars(r)["db"]
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dbs[db]; ok {
		writeError(w, http.StatusPreconditionFailed, "file_exists", "The database could not be created, the file already exists.")
		return
	}
	s.dbs[db] = make(map[string]map[string]any)
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func (s *Server) getDoc(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.mu.Lock()
	docs, dbOK := s.dbs[vars["db"]]
	doc, ok := docs[vars["id"]]
	if ok {
		doc = copyDoc(doc)
	}
	s.mu.Unlock()

	if !dbOK {
		writeError(w, http.StatusNotFound, "not_found", "Database does not exist.")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "missing")
		return
	}
	w.Header().Set("ETag", strconv.Quote(doc["_rev"].(string)))
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) putDoc(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	db, id := vars["db"], vars["id"]

	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.dbs[db]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Database does not exist.")
		return
	}
	key := db + "/" + id
	if s.conflicts[key] {
		writeError(w, http.StatusConflict, "conflict", "Document update conflict.")
		return
	}
	if s.failPuts[key] > 0 {
		s.failPuts[key]--
		writeError(w, http.StatusInternalServerError, "internal", "injected failure")
		return
	}

	rev, _ := body["_rev"].(string)
	if existing, exists := docs[id]; exists {
		if rev != existing["_rev"] {
			writeError(w, http.StatusConflict, "conflict", "Document update conflict.")
			return
		}
	} else if rev != "" {
		writeError(w, http.StatusConflict, "conflict", "Document update conflict.")
		return
	}

	newRev := s.store(db, id, body)
	w.Header().Set("ETag", strconv.Quote(newRev))
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": id, "rev": newRev})
}

func (s *Server) deleteDoc(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	db, id := vars["db"], vars["id"]
	rev := r.URL.Query().Get("rev")

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.dbs[db][id]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "missing")
		return
	}
	if existing["_rev"] != rev {
		writeError(w, http.StatusConflict, "conflict", "Document update conflict.")
		return
	}
	delete(s.dbs[db], id)
	s.revs[db+"/"+id]++
	newRev := fmt.Sprintf("%d-deleted", s.revs[db+"/"+id])
	w.Header().Set("ETag", strconv.Quote(newRev))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id, "rev": newRev})
}

func (s *Server) allDocs(w http.ResponseWriter, r *http.Request) {
	db := mux.Vars(r)["db"]
	q := r.URL.Query()
	includeDocs := q.Get("include_docs") == "true"
	skip, _ := strconv.Atoi(q.Get("skip"))
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = -1
	}

	s.mu.Lock()
	docs, ok := s.dbs[db]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	total := len(ids)
	if skip > len(ids) {
		skip = len(ids)
	}
	ids = ids[skip:]
	if limit >= 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	rows := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		doc := docs[id]
		row := map[string]any{
			"id":    id,
			"key":   id,
			"value": map[string]any{"rev": doc["_rev"]},
		}
		if includeDocs {
			row["doc"] = copyDoc(doc)
		}
		rows = append(rows, row)
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Database does not exist.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_rows": total,
		"offset":     skip,
		"rows":       rows,
	})
}

// decodeBody reads a JSON request body. The couchdb driver gzips request
// bodies by default.
func decodeBody(r *http.Request, v any) error {
	var body io.Reader = r.Body
	if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return err
		}
		defer zr.Close()
		body = zr
	}
	return json.NewDecoder(body).Decode(v)
}

// store must be called with s.mu held.
func (s *Server) store(db, id string, body map[string]any) string {
	key := db + "/" + id
	s.revs[key]++
	rev := fmt.Sprintf("%d-%s", s.revs[key], strings.ReplaceAll(id, "/", ""))
	doc := copyDoc(body)
	doc["_id"] = id
	doc["_rev"] = rev
	s.dbs[db][id] = doc
	return rev
}

func copyDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, reason string) {
	writeJSON(w, status, map[string]string{"error": code, "reason": reason})
}
