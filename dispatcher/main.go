// Command dispatcher runs the RF shade command dispatcher: the HTTP facade,
// the retry scheduler's zombie sweep, and the serial link owner all share
// this one process (spec.md §9: "single dispatcher process").
package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shadecommander/dispatcher/internal/auth"
	"github.com/shadecommander/dispatcher/internal/idempotency"
	"github.com/shadecommander/dispatcher/internal/link"
	"github.com/shadecommander/dispatcher/internal/middleware"
	"github.com/shadecommander/dispatcher/internal/retry"
	"github.com/shadecommander/dispatcher/internal/scene"
	"github.com/shadecommander/dispatcher/internal/shadestore"
	"github.com/shadecommander/dispatcher/internal/transmit"

	"github.com/redis/go-redis/v9"
)

const zombieSweepInterval = 1 * time.Minute

func main() {
	cfg := loadConfig()
	ctx := context.Background()

	directory := buildDirectory(ctx, cfg)
	linkOwner := link.NewOwner(link.OpenSerialPort, candidatePathsFor(cfg))

	transmitter := &transmit.RFTransmitter{Directory: directory, LinkOwner: linkOwner}

	sched := retry.NewScheduler(transmitter, cfg.RetrySchedule)
	sched.StartZombieSweep(ctx, zombieSweepInterval)
	defer sched.Stop()

	sceneStore := buildSceneStore(ctx, cfg)
	executor := scene.NewExecutor(sceneStore, sched, transmitter)

	idemStore, redisClient := buildIdempotencyStore(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	validator := auth.NewValidator(cfg.JWTSecret, "shade-dispatcher")

	api := NewAPI(directory, linkOwner, sched, executor, sceneStore, idemStore)
	go api.wsHub.Run(ctx)

	authed := middleware.Auth(validator)

	// /healthz surfaces link state and bound port rather than a bare "ok",
	// matching original_source's routers/health.py (SPEC_FULL.md §12).
	http.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, linkOwner.Health())
	})

	http.Handle("/metrics", promhttp.Handler())

	http.Handle("/auth/token", authed(http.HandlerFunc(api.handleIssueToken(validator))))

	http.Handle("/shades", authed(http.HandlerFunc(api.handleListShades)))
	http.Handle("/shades/command", authed(api.withIdempotency(api.handleSendShadeCommand)))
	http.Handle("/shades/", authed(http.HandlerFunc(api.handleCancelShadeCommand)))

	http.Handle("/scenes", authed(http.HandlerFunc(api.handleListScenes)))
	http.Handle("/scenes/recent", authed(http.HandlerFunc(api.handleRecentScenes)))
	http.Handle("/scenes/", authed(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/execute") {
			api.withIdempotency(api.handleExecuteScene)(w, r)
			return
		}
		api.handleGetScene(w, r)
	})))

	http.Handle("/tasks/stats", authed(http.HandlerFunc(api.handleStats)))

	http.Handle("/link/health", authed(http.HandlerFunc(api.handleLinkHealth)))
	http.Handle("/link/reconnect", authed(http.HandlerFunc(api.handleLinkReconnect)))

	http.Handle("/dashboard", authed(http.HandlerFunc(api.handleDashboard)))
	http.Handle("/dashboard/stream", authed(http.HandlerFunc(api.handleDashboardStream)))

	handler := middleware.CORS(http.DefaultServeMux)

	log.Printf("shade dispatcher listening on %s", cfg.HTTPAddr)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, handler))
}

// buildDirectory wires a PostgresDirectory when SHADE_DB_DSN is set,
// otherwise falls back to an empty in-memory fixture for local development.
func buildDirectory(ctx context.Context, cfg Config) shadestore.Directory {
	if cfg.DBDSN == "" {
		log.Println("SHADE_DB_DSN not set; using an empty in-memory shade directory")
		return shadestore.NewMemoryDirectory()
	}
	dir, err := shadestore.NewPostgresDirectory(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatalf("connecting to shade directory: %v", err)
	}
	return dir
}

// buildSceneStore wires RedisSceneStore when SHADE_SCENE_STORE_REDIS_ADDR
// is set, otherwise a file-backed store rooted at SHADE_SCENE_DIR.
func buildSceneStore(ctx context.Context, cfg Config) scene.Store {
	if cfg.SceneRedisAddr == "" {
		log.Printf("using file-backed scene store at %s", cfg.SceneDir)
		return scene.NewFileSceneStore(cfg.SceneDir)
	}
	store, err := scene.NewRedisSceneStore(ctx, cfg.SceneRedisAddr, "", 0)
	if err != nil {
		log.Fatalf("connecting to scene store: %v", err)
	}
	return store
}

// buildIdempotencyStore wires a Redis-backed cache when a scene Redis
// address is configured (reusing the same instance), otherwise an
// in-process map. The returned client, if any, belongs to the caller to
// close.
func buildIdempotencyStore(cfg Config) (*idempotency.Store, *redis.Client) {
	if cfg.SceneRedisAddr == "" {
		log.Println("using in-memory idempotency cache (ephemeral)")
		return idempotency.NewStore(nil), nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.SceneRedisAddr})
	return idempotency.NewStore(&idempotency.RedisBackend{Client: client}), client
}

func candidatePathsFor(cfg Config) func() []string {
	if cfg.SerialPort != "" {
		return func() []string { return []string{cfg.SerialPort} }
	}
	return link.CandidatePaths
}
