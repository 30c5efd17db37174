package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/shadecommander/dispatcher/internal/auth"
	"github.com/shadecommander/dispatcher/internal/frame"
	"github.com/shadecommander/dispatcher/internal/idempotency"
	"github.com/shadecommander/dispatcher/internal/link"
	"github.com/shadecommander/dispatcher/internal/retry"
	"github.com/shadecommander/dispatcher/internal/scene"
	"github.com/shadecommander/dispatcher/internal/shadestore"
)

// API holds every collaborator the HTTP facade dispatches into. The facade
// itself sits outside spec.md's module boundary (spec.md §1's "out-of-scope
// collaborators"), but it is the only way an operator reaches C1-C5.
type API struct {
	directory   shadestore.Directory
	linkOwner   *link.Owner
	scheduler   *retry.Scheduler
	executor    *scene.Executor
	sceneStore  scene.Store
	idempotency *idempotency.Store
	dashboard   *DashboardService
	wsHub       *DashboardHub
}

func NewAPI(dir shadestore.Directory, lo *link.Owner, sched *retry.Scheduler, exec *scene.Executor, sceneStore scene.Store, idem *idempotency.Store) *API {
	api := &API{
		directory:   dir,
		linkOwner:   lo,
		scheduler:   sched,
		executor:    exec,
		sceneStore:  sceneStore,
		idempotency: idem,
	}
	api.dashboard = NewDashboardService(lo, sched, exec)
	api.wsHub = NewDashboardHub(api.dashboard.Snapshot)
	return api
}

// responseRecorder buffers a handler's response so withIdempotency can
// replay it verbatim on a retried request.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return r.ResponseWriter.Write(b)
}

func (a *API) withIdempotency(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Shade-Idempotency-Key")
		if key == "" {
			next(w, r)
			return
		}

		if resp, found := a.idempotency.Get(r.Context(), key); found {
			w.WriteHeader(resp.StatusCode)
			w.Write(resp.Body)
			return
		}

		rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next(rec, r)

		a.idempotency.Set(r.Context(), key, idempotency.Response{
			StatusCode: rec.statusCode,
			Body:       rec.body,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// --- send_shade_command (spec.md §4.4, §6) ---

type sendShadeCommandRequest struct {
	ShadeID int64  `json:"shade_id"`
	Action  string `json:"action"` // "u"|"d"|"s"
}

func (a *API) handleSendShadeCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sendShadeCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	action, ok := shadestore.ParseAction(req.Action)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown action %q", req.Action), http.StatusBadRequest)
		return
	}

	// Synchronous existence and encodability checks (spec.md §4.4: "the
	// shade id must exist in the directory at enqueue time"; spec.md §7:
	// NotFound and ActionNotConfigured are surfaced before any task is
	// enqueued). The transmission itself still looks the record up again
	// per burst pulse, since it could change between now and then.
	rec, err := a.directory.Lookup(r.Context(), req.ShadeID)
	if err != nil {
		if errors.Is(err, shadestore.ErrNotFound) {
			http.Error(w, "shade not found", http.StatusNotFound)
			return
		}
		http.Error(w, "directory unavailable", http.StatusServiceUnavailable)
		return
	}
	if _, err := frame.Encode(rec, action); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	taskID := a.scheduler.EnqueueShade(req.ShadeID, action)
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": string(taskID)})
}

func (a *API) handleCancelShadeCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Path: /shades/{shade_id}/cancel
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 3 {
		http.Error(w, "invalid shade id", http.StatusBadRequest)
		return
	}
	shadeID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		http.Error(w, "invalid shade id", http.StatusBadRequest)
		return
	}

	cancelled := a.scheduler.CancelShade(shadeID)
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// --- execute_scene (spec.md §4.5, §6) ---

type executeSceneRequest struct {
	RetryCount     *int `json:"retry_count"`
	TimeoutSeconds *int `json:"timeout_seconds"`
	DryRun         bool `json:"dry_run"`
}

func (a *API) handleExecuteScene(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Path: /scenes/{name}/execute
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 3 {
		http.Error(w, "invalid scene name", http.StatusBadRequest)
		return
	}
	name := parts[2]

	var req executeSceneRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	overrides := scene.Overrides{
		RetryCount:     req.RetryCount,
		TimeoutSeconds: req.TimeoutSeconds,
		DryRun:         req.DryRun,
	}

	taskID, plan, err := a.executor.EnqueueScene(r.Context(), name, overrides)
	if err != nil {
		switch {
		case errors.Is(err, scene.ErrSceneNotFound):
			http.Error(w, "scene not found", http.StatusNotFound)
		case errors.Is(err, scene.ErrSceneInvalid):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			log.Printf("api: enqueue scene %s: %v", name, err)
			http.Error(w, "scene store unavailable", http.StatusServiceUnavailable)
		}
		return
	}

	if overrides.DryRun {
		writeJSON(w, http.StatusOK, map[string]any{"dry_run": true, "plan": plan})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"task_id": taskID, "plan": plan})
}

func (a *API) handleListScenes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	scenes, err := a.sceneStore.List(r.Context())
	if err != nil {
		log.Printf("api: list scenes: %v", err)
		http.Error(w, "scene store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, scenes)
}

func (a *API) handleGetScene(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// Path: /scenes/{name}
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 3 {
		http.Error(w, "invalid scene name", http.StatusBadRequest)
		return
	}
	def, err := a.sceneStore.Get(r.Context(), parts[2])
	if err != nil {
		if errors.Is(err, scene.ErrSceneNotFound) {
			http.Error(w, "scene not found", http.StatusNotFound)
			return
		}
		http.Error(w, "scene store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (a *API) handleRecentScenes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, a.executor.Log().Recent(20))
}

// --- introspection (spec.md §6) ---

func (a *API) handleListShades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	shades, err := a.directory.ListAll(r.Context())
	if err != nil {
		http.Error(w, "directory unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, shades)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, a.scheduler.Stats())
}

func (a *API) handleLinkHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, a.linkOwner.Health())
}

func (a *API) handleLinkReconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := a.linkOwner.Reconnect(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, a.linkOwner.Health())
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, a.dashboard.Snapshot())
}

func (a *API) handleDashboardStream(w http.ResponseWriter, r *http.Request) {
	a.wsHub.ServeWS(w, r)
}

// --- auth token issuance, for operator tooling ---

func (a *API) handleIssueToken(validator *auth.Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Subject string `json:"subject"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subject == "" {
			http.Error(w, "subject is required", http.StatusBadRequest)
			return
		}
		token, err := validator.Issue(req.Subject)
		if err != nil {
			http.Error(w, "failed to issue token", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}
