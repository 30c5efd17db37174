package scene

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Store is the external scene document store (spec.md §4.5, §6: "Scene
// definitions live in an external store keyed by name").
type Store interface {
	Get(ctx context.Context, name string) (*Definition, error)
	List(ctx context.Context) ([]*Definition, error)
}

// FileSceneStore reads one JSON document per scene from a directory, keyed
// by file name, matching spec.md §6's store format verbatim.
type FileSceneStore struct {
	dir string
}

// NewFileSceneStore builds a store rooted at dir.
func NewFileSceneStore(dir string) *FileSceneStore {
	return &FileSceneStore{dir: dir}
}

func (f *FileSceneStore) Get(_ context.Context, name string) (*Definition, error) {
	path := filepath.Join(f.dir, name+".json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrSceneNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scene: reading %s: %w", path, err)
	}
	return decodeDefinition(name, data)
}

func (f *FileSceneStore) List(ctx context.Context) ([]*Definition, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("scene: listing %s: %w", f.dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, strings.TrimSuffix(e.Name(), ".json"))
		}
	}
	sort.Strings(names)

	var out []*Definition
	for _, name := range names {
		def, err := f.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

// RedisSceneStore stores one JSON document per scene under
// "shade:scene:<name>", grounded on control_plane/store/redis.go's client
// wiring and JSON marshal discipline.
type RedisSceneStore struct {
	client *redis.Client
}

// NewRedisSceneStore connects to addr and verifies it with a ping.
func NewRedisSceneStore(ctx context.Context, addr, password string, db int) (*RedisSceneStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("scene: connecting to redis: %w", err)
	}
	return &RedisSceneStore{client: client}, nil
}

func sceneKey(name string) string {
	return "shade:scene:" + name
}

func (r *RedisSceneStore) Get(ctx context.Context, name string) (*Definition, error) {
	val, err := r.client.Get(ctx, sceneKey(name)).Result()
	if err == redis.Nil {
		return nil, ErrSceneNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scene: redis get %s: %w", name, err)
	}
	return decodeDefinition(name, []byte(val))
}

func (r *RedisSceneStore) List(ctx context.Context) ([]*Definition, error) {
	var names []string
	iter := r.client.Scan(ctx, 0, sceneKey("*"), 0).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), sceneKey("")))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scene: redis scan: %w", err)
	}
	sort.Strings(names)

	var out []*Definition
	for _, name := range names {
		def, err := r.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

// Put stores a scene document, used by administrative tooling and tests.
func (r *RedisSceneStore) Put(ctx context.Context, def *Definition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, sceneKey(def.Name), data, 0).Err()
}

func decodeDefinition(name string, data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSceneInvalid, err)
	}
	if def.Name == "" {
		def.Name = name
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}
