// Package store persists engine checkpoints as JSON documents addressed by
// slash-separated keys such as "checkpoint/<plan id>".
//
// Backends share one contract: Save overwrites, Load reports a missing key as
// (false, nil), and Delete of a missing key succeeds.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/Iron-Ham/ensemble/internal/errors"
)

// Store is a JSON document store.
type Store interface {
	Save(ctx context.Context, key string, v any) error
	Load(ctx context.Context, key string, v any) (bool, error)
	Delete(ctx context.Context, key string) error
	// List returns the keys under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// ErrInvalidKey is returned for keys that are empty, absolute, or that
// contain "." or ".." segments.
var ErrInvalidKey = errors.New("invalid store key")

// CheckpointKey returns the key a plan's checkpoint is saved under.
func CheckpointKey(planID string) string {
	return "checkpoint/" + planID
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	if path.Clean(key) != key {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func encode(key string, v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	return data, nil
}

func decode(key string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func hasPrefix(key, prefix string) bool {
	return prefix == "" || strings.HasPrefix(key, prefix)
}
