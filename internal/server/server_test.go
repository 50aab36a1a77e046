package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeCrawler struct {
	repoID   int64
	sha, ref string
	calls    int
}

func (f *fakeCrawler) ProcessRepo(repoID int64, sha, ref string) {
	f.repoID, f.sha, f.ref = repoID, sha, ref
	f.calls++
}

type fakeScheduler struct{ calls int }

func (f *fakeScheduler) NudgeScheduler() { f.calls++ }

type fakeAgents struct{ linux, windows int }

func (f *fakeAgents) NudgeLinux()   { f.linux++ }
func (f *fakeAgents) NudgeWindows() { f.windows++ }

func TestProcessRepoParsesPathAndQuery(t *testing.T) {
	c := &fakeCrawler{}
	s := New(":0", c, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/process_repo/42?sha=abc123&ref=refs/heads/main", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if c.calls != 1 || c.repoID != 42 || c.sha != "abc123" || c.ref != "refs/heads/main" {
		t.Fatalf("unexpected crawler call: %+v", c)
	}
}

func TestProcessRepoRejectsNonNumericID(t *testing.T) {
	s := New(":0", &fakeCrawler{}, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/process_repo/not-a-number", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestProcessCommitsNudgesScheduler(t *testing.T) {
	sched := &fakeScheduler{}
	s := New(":0", nil, sched, nil)
	req := httptest.NewRequest(http.MethodPost, "/process_commits", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || sched.calls != 1 {
		t.Fatalf("status=%d calls=%d", rec.Code, sched.calls)
	}
}

func TestProcessBuildsNudgesBothPlatforms(t *testing.T) {
	agents := &fakeAgents{}
	s := New(":0", nil, nil, agents)
	req := httptest.NewRequest(http.MethodPost, "/process_builds", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || agents.linux != 1 || agents.windows != 1 {
		t.Fatalf("status=%d linux=%d windows=%d", rec.Code, agents.linux, agents.windows)
	}
}

func TestUnwiredWorkerReturns503(t *testing.T) {
	s := New(":0", nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/process_commits", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
