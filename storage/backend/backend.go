// Package backend builds a storage.Store from configuration.
package backend

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/giantswarm/crm-oauth/storage"
	"github.com/giantswarm/crm-oauth/storage/bolt"
	"github.com/giantswarm/crm-oauth/storage/file"
	"github.com/giantswarm/crm-oauth/storage/memory"
	"github.com/giantswarm/crm-oauth/storage/redis"
)

// Type names a storage backend
type Type string

const (
	// TypeFile stores tokens.json and states.json in a directory
	TypeFile Type = "file"
	// TypeBolt stores records in an embedded bbolt database
	TypeBolt Type = "bolt"
	// TypeRedis stores records in Redis
	TypeRedis Type = "redis"
	// TypeMemory keeps records in process memory
	TypeMemory Type = "memory"
)

// DefaultDir is the data directory used when Config.Dir is empty
const DefaultDir = "."

// Config selects and configures a backend
type Config struct {
	// Type is the backend to build (default TypeFile)
	Type Type

	// Dir is the data directory for the file and bolt backends
	Dir string

	// Redis configures the redis backend
	Redis redis.Config
}

// Types returns the supported backend names
func Types() []Type {
	return []Type{TypeFile, TypeBolt, TypeRedis, TypeMemory}
}

// ParseType parses a backend name; the empty string selects TypeFile
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TypeFile, nil
	case TypeFile, TypeBolt, TypeRedis, TypeMemory:
		return t, nil
	default:
		return "", fmt.Errorf("unsupported storage type %q (valid: file, bolt, redis, memory)", s)
	}
}

// New creates the configured store
func New(cfg Config, opts ...storage.Option) (storage.Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = DefaultDir
	}

	switch cfg.Type {
	case TypeFile, "":
		return file.New(dir, opts...)
	case TypeBolt:
		return bolt.Open(filepath.Join(dir, bolt.DefaultFileName), opts...)
	case TypeRedis:
		return redis.New(cfg.Redis, opts...)
	case TypeMemory:
		return memory.New(opts...), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
