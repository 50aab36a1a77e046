// Package server exposes the nudge RPC every worker process answers:
// idempotent, side-effect-free-to-call endpoints that exist purely to cut
// the latency between "something changed" and "the relevant worker notices"
// down from a poll interval to an HTTP round trip. Every handler just calls
// the worker's own Trigger-equivalent and returns; all real work still
// happens on the worker's own goroutine.
package server

import (
	"log/slog"
	"net/http"
	"strconv"
)

// Crawler is the subset of *crawler.Crawler the nudge RPC needs.
type Crawler interface {
	ProcessRepo(repoID int64, sha, ref string)
}

// Scheduler is the subset of *scheduler.Scheduler the nudge RPC needs.
type Scheduler interface {
	NudgeScheduler()
}

// Agents is the subset of the agent-nudging surface the nudge RPC needs,
// keyed by platform so `/process_builds` can fan out to both.
type Agents interface {
	NudgeLinux()
	NudgeWindows()
}

// Server answers the nudge RPC on behalf of whichever workers are running
// in this process; any of Crawler/Scheduler/Agents may be nil when this
// process only runs a subset of workers (see cmd/'s per-worker subcommands).
type Server struct {
	crawler   Crawler
	scheduler Scheduler
	agents    Agents
	addr      string
}

// New builds a Server. Pass nil for any worker not running in this process;
// its endpoints then respond 503.
func New(addr string, crawler Crawler, scheduler Scheduler, agents Agents) *Server {
	return &Server{addr: addr, crawler: crawler, scheduler: scheduler, agents: agents}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.addr }

// Handler builds the mux, exported separately from ListenAndServe so tests
// can exercise it with httptest without binding a real socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /process_repo/{id}", s.handleProcessRepo)
	mux.HandleFunc("POST /process_commits", s.handleProcessCommits)
	mux.HandleFunc("POST /process_builds", s.handleProcessBuilds)
	return mux
}

// ListenAndServe blocks serving the nudge RPC until the listener fails or
// is closed by the caller shutting down the *http.Server it wraps.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}
	slog.Info("Nudge RPC listening", "addr", s.addr)
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleProcessRepo(w http.ResponseWriter, r *http.Request) {
	if s.crawler == nil {
		http.Error(w, "crawler not running in this process", http.StatusServiceUnavailable)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid repo id", http.StatusBadRequest)
		return
	}
	s.crawler.ProcessRepo(id, r.URL.Query().Get("sha"), r.URL.Query().Get("ref"))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleProcessCommits(w http.ResponseWriter, _ *http.Request) {
	if s.scheduler == nil {
		http.Error(w, "scheduler not running in this process", http.StatusServiceUnavailable)
		return
	}
	s.scheduler.NudgeScheduler()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleProcessBuilds(w http.ResponseWriter, _ *http.Request) {
	if s.agents == nil {
		http.Error(w, "agent not running in this process", http.StatusServiceUnavailable)
		return
	}
	s.agents.NudgeLinux()
	s.agents.NudgeWindows()
	w.WriteHeader(http.StatusOK)
}
