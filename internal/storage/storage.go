// Package storage provides the persistence facility the mapping store is
// kept in: a small key-value interface where each key holds one serialized
// document.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed backend
var ErrClosed = errors.New("storage: backend closed")

// Backend is a persistent key-value facility
type Backend interface {
	// Get returns the value stored under key. found is false if the key
	// has never been written.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set replaces the value stored under key
	Set(ctx context.Context, key string, value []byte) error

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error

	// Close releases any resources
	Close() error
}

// Backend type names accepted by New
const (
	TypeMemory = "memory"
	TypeFile   = "file"
	TypeRedis  = "redis"
)

// Options selects and parameterizes a backend
type Options struct {
	Type string

	// FilePath is the document file used by the file backend
	FilePath string

	// Redis connection settings
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// New opens the backend described by opts
func New(opts Options) (Backend, error) {
	switch opts.Type {
	case TypeMemory:
		return NewMemoryBackend(), nil
	case TypeFile, "":
		return NewFileBackend(opts.FilePath)
	case TypeRedis:
		return NewRedisBackend(opts.RedisAddress, opts.RedisPassword, opts.RedisDB, opts.RedisPrefix)
	default:
		return nil, &UnknownTypeError{Type: opts.Type}
	}
}

// UnknownTypeError reports an unsupported backend type
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("storage: unknown backend type %q", e.Type)
}
