package crawler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// pushPayload is the minimal shape a webhook push event must carry: which
// Repo it targets, the sha that landed, and the ref it landed on. RepoID is
// resolved by the caller's webhook provider integration (out of scope
// here); this handler only verifies the signature and hands the triple to
// the crawler.
type pushPayload struct {
	RepoID int64  `json:"repo_id"`
	SHA    string `json:"sha"`
	Ref    string `json:"ref"`
}

// WebhookHandler returns an http.Handler that verifies an inbound push
// notification's HMAC-SHA256 signature (header "X-Hub-Signature-256",
// "sha256=<hex>") against secret, then enqueues the sha/ref onto the
// crawler exactly as a manual ProcessRepo call would. An empty secret
// disables ingestion entirely -- returning 404 rather than accepting
// unsigned pushes.
func (c *Crawler) WebhookHandler(secret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secret == "" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "reading body", http.StatusBadRequest)
			return
		}

		if !validSignature(secret, body, r.Header.Get("X-Hub-Signature-256")) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		var payload pushPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if payload.RepoID == 0 || payload.SHA == "" || payload.Ref == "" {
			http.Error(w, "missing repo_id, sha or ref", http.StatusBadRequest)
			return
		}

		c.ProcessRepo(payload.RepoID, payload.SHA, payload.Ref)
		slog.Info("Accepted webhook push", "repo_id", payload.RepoID, "sha", payload.SHA, "ref", payload.Ref)
		w.WriteHeader(http.StatusAccepted)
	})
}

func validSignature(secret string, body []byte, header string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := mac.Sum(nil)
	return hmac.Equal(got, want)
}
