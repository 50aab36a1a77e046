package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/buildforge/buildforge/internal/model"
)

// httpTimeout bounds a nudge POST; nudges are fire-and-forget latency
// shortcuts, never required for correctness, so a slow peer is logged and
// dropped rather than blocking the caller.
const httpTimeout = 5 * time.Second

// HTTPNudger calls another worker process's nudge RPC over HTTP. It
// implements crawler.Nudger, scheduler.AgentNudger, and watchdog.AgentNudger
// simultaneously so standalone subcommands (`buildforge crawler`, `buildforge
// scheduler`, `buildforge watchdog`) can reach peers run in other processes.
type HTTPNudger struct {
	SchedulerAddr    string
	AgentLinuxAddr   string
	AgentWindowsAddr string

	client *http.Client
}

// NewHTTPNudger builds an HTTPNudger; any address left empty makes the
// corresponding nudge a no-op.
func NewHTTPNudger(schedulerAddr, agentLinuxAddr, agentWindowsAddr string) *HTTPNudger {
	return &HTTPNudger{
		SchedulerAddr:    schedulerAddr,
		AgentLinuxAddr:   agentLinuxAddr,
		AgentWindowsAddr: agentWindowsAddr,
		client:           &http.Client{Timeout: httpTimeout},
	}
}

// NudgeScheduler implements crawler.Nudger.
func (n *HTTPNudger) NudgeScheduler() {
	n.post(n.SchedulerAddr, "/process_commits")
}

// NudgeAgent implements scheduler.AgentNudger and watchdog.AgentNudger.
func (n *HTTPNudger) NudgeAgent(platform model.Platform) {
	addr := n.AgentLinuxAddr
	if platform == model.PlatformWindows {
		addr = n.AgentWindowsAddr
	}
	n.post(addr, "/process_builds")
}

func (n *HTTPNudger) post(addr, path string) {
	if addr == "" {
		return
	}
	resp, err := n.client.Post("http://"+addr+path, "application/octet-stream", nil)
	if err != nil {
		slog.Warn("Nudging peer failed", "addr", addr, "path", path, "error", err)
		return
	}
	resp.Body.Close()
}
