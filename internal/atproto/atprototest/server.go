// Package atprototest provides an in-process fake of the AppView, PLC
// directory and PDS endpoints the reader talks to.
package atprototest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/mithrel/whtreader/internal/atproto"
	"github.com/mithrel/whtreader/pkg/api"
)

// Entry is a blog record served from a fake repository.
type Entry struct {
	RKey       string
	Title      string
	Content    string
	CreatedAt  string
	Visibility string
}

// URI returns the at:// URI the fake assigns to e in did's repository.
func (e Entry) URI(did string) string {
	return "at://" + did + "/" + api.EntryCollection + "/" + e.RKey
}

type author struct {
	did         string
	handle      string
	displayName string
	avatar      string
}

// Server is a fake network. All setters are safe to call while requests are
// in flight.
type Server struct {
	*httptest.Server

	// PageSize caps the number of records per listRecords page.
	PageSize int

	mu           sync.Mutex
	authors      map[string]*author // by did
	handles      map[string]string  // handle -> did
	entries      map[string][]Entry // by did
	assets       map[string][]byte  // by name
	failPage     map[string]int     // did -> 1-based page that returns 500
	failProfile  map[string]bool
	listRequests map[string]int
}

// NewServer starts a fake. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		PageSize:     2,
		authors:      make(map[string]*author),
		handles:      make(map[string]string),
		entries:      make(map[string][]Entry),
		assets:       make(map[string][]byte),
		failPage:     make(map[string]int),
		failProfile:  make(map[string]bool),
		listRequests: make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /xrpc/app.bsky.actor.getProfile", s.handleGetProfile)
	mux.HandleFunc("GET /xrpc/com.atproto.identity.resolveHandle", s.handleResolveHandle)
	mux.HandleFunc("GET /xrpc/com.atproto.repo.listRecords", s.handleListRecords)
	mux.HandleFunc("GET /plc/{did}", s.handleDIDDocument)
	mux.HandleFunc("GET /assets/{name}", s.handleAsset)
	s.Server = httptest.NewServer(mux)
	return s
}

// Options returns client options pointing every endpoint at the fake.
func (s *Server) Options() atproto.Options {
	return atproto.Options{
		AppViewURL: s.URL,
		PLCURL:     s.URL + "/plc",
		HTTPClient: s.Client(),
	}
}

// AddAuthor registers a profile. When avatar is non-nil it is served as an
// asset and linked from the profile.
func (s *Server) AddAuthor(did, handle, displayName string, avatar []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &author{did: did, handle: handle, displayName: displayName}
	if avatar != nil {
		name := "avatar-" + handle
		s.assets[name] = avatar
		a.avatar = s.URL + "/assets/" + name
	}
	s.authors[did] = a
	s.handles[handle] = did
}

// SetDisplayName changes a registered author's display name.
func (s *Server) SetDisplayName(did, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.authors[did]; ok {
		a.displayName = displayName
	}
}

// SetEntries replaces the records in did's repository.
func (s *Server) SetEntries(did string, entries ...Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[did] = append([]Entry(nil), entries...)
}

// FailListPage makes the given 1-based listRecords page for did fail with a
// 500. Zero clears the failure.
func (s *Server) FailListPage(did string, page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPage[did] = page
}

// FailProfile makes getProfile for did fail with a 500.
func (s *Server) FailProfile(did string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failProfile[did] = fail
}

// AddAsset serves data under /assets/name and returns its URL.
func (s *Server) AddAsset(name string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[name] = data
	return s.URL + "/assets/" + name
}

// ListRequests reports how many listRecords pages were requested for did.
func (s *Server) ListRequests(did string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listRequests[did]
}

func (s *Server) lookup(actor string) *author {
	if did, ok := s.handles[actor]; ok {
		actor = did
	}
	return s.authors[actor]
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.lookup(r.URL.Query().Get("actor"))
	if a == nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "Profile not found")
		return
	}
	if s.failProfile[a.did] {
		writeError(w, http.StatusInternalServerError, "InternalServerError", "profile lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"did":         a.did,
		"handle":      a.handle,
		"displayName": a.displayName,
		"avatar":      a.avatar,
	})
}

func (s *Server) handleResolveHandle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	did, ok := s.handles[r.URL.Query().Get("handle")]
	if !ok {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "Unable to resolve handle")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"did": did})
}

func (s *Server) handleDIDDocument(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	did := r.PathValue("did")
	if s.authors[did] == nil {
		writeError(w, http.StatusNotFound, "NotFound", "DID not registered")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id": did,
		"service": []map[string]string{{
			"id":              "#atproto_pds",
			"type":            "AtprotoPersonalDataServer",
			"serviceEndpoint": s.URL,
		}},
	})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := r.URL.Query()
	a := s.lookup(q.Get("repo"))
	if a == nil {
		writeError(w, http.StatusBadRequest, "RepoNotFound", "Could not find repo")
		return
	}
	if q.Get("collection") != api.EntryCollection {
		writeJSON(w, http.StatusOK, map[string]any{"records": []any{}})
		return
	}
	s.listRequests[a.did]++

	offset := 0
	if c := q.Get("cursor"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "bad cursor")
			return
		}
		offset = n
	}
	size := s.PageSize
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l < size {
		size = l
	}
	page := offset/size + 1
	if s.failPage[a.did] == page {
		writeError(w, http.StatusInternalServerError, "InternalServerError", fmt.Sprintf("page %d unavailable", page))
		return
	}

	all := s.entries[a.did]
	end := min(offset+size, len(all))
	records := make([]map[string]any, 0, end-offset)
	for _, e := range all[offset:end] {
		value := map[string]any{
			"$type":   api.EntryCollection,
			"content": e.Content,
		}
		if e.Title != "" {
			value["title"] = e.Title
		}
		if e.CreatedAt != "" {
			value["createdAt"] = e.CreatedAt
		}
		if e.Visibility != "" {
			value["visibility"] = e.Visibility
		}
		records = append(records, map[string]any{
			"uri":   e.URI(a.did),
			"cid":   "bafy" + e.RKey,
			"value": value,
		})
	}
	resp := map[string]any{"records": records}
	if end < len(all) {
		resp["cursor"] = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	data, ok := s.assets[r.PathValue("name")]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, name, message string) {
	writeJSON(w, status, map[string]string{"error": name, "message": message})
}
