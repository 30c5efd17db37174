package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is read once at startup from the environment, the same way
// control_plane/main.go reads its tunables (os.Getenv plus fmt.Sscanf for
// numeric overrides) rather than a flags/config library.
type Config struct {
	HTTPAddr string

	DBDSN string // empty -> MemoryDirectory fixture

	SerialPort string // empty -> probe every candidate path; set -> probe only this path

	SceneRedisAddr string // empty -> FileSceneStore
	SceneDir       string

	JWTSecret string

	RetrySchedule []time.Duration

	SceneTimeoutCeiling int
}

func loadConfig() Config {
	cfg := Config{
		HTTPAddr:             getenvDefault("SHADE_HTTP_ADDR", ":8089"),
		DBDSN:                os.Getenv("SHADE_DB_DSN"),
		SerialPort:           os.Getenv("SHADE_SERIAL_PORT"),
		SceneRedisAddr:       os.Getenv("SHADE_SCENE_STORE_REDIS_ADDR"),
		SceneDir:             getenvDefault("SHADE_SCENE_DIR", "./scenes"),
		JWTSecret:            os.Getenv("SHADE_JWT_SECRET"),
		SceneTimeoutCeiling:  300,
	}

	if cfg.JWTSecret == "" {
		fmt.Println("WARNING: SHADE_JWT_SECRET not set. Using an insecure default for local development only.")
		cfg.JWTSecret = "insecure-default-secret-for-local-dev-only"
	}

	if v := os.Getenv("SHADE_SCENE_TIMEOUT_CEILING_S"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 && n <= 300 {
			cfg.SceneTimeoutCeiling = n
		}
	}

	cfg.RetrySchedule = parseSchedule(os.Getenv("SHADE_RETRY_SCHEDULE_MS"))

	return cfg
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parseSchedule parses "0,650,1500" into burst offsets; an empty or
// malformed value falls back to retry.DefaultSchedule (resolved by the
// caller passing nil through).
func parseSchedule(raw string) []time.Duration {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		ms, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil
		}
		out = append(out, time.Duration(ms)*time.Millisecond)
	}
	return out
}
