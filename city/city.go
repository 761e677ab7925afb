// Package city normalizes free-text city names so that matching is resilient
// to user-entered variation ("NYC", "New York City", "new york, NY").
//
// The alias table is a maintained, append-only data asset, not an algorithm:
// it ships embedded in the binary and can be refreshed from a bucket object
// without touching matching code.
package city

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"

	_ "embed"
)

//go:embed aliases.json
var embeddedAliases []byte

// Canonicalizer maps free-text city names to canonical keys.
type Canonicalizer struct {
	mu      sync.RWMutex
	aliases map[string]string // stripped alias token -> canonical key
}

// New returns a canonicalizer loaded with the embedded alias table.
func New() *Canonicalizer {
	aliases, err := parseAliases(embeddedAliases)
	if err != nil {
		// The embedded table is validated by tests; a parse failure here is a
		// build defect, not a runtime condition.
		panic(fmt.Sprintf("embedded alias table: %v", err))
	}
	return &Canonicalizer{aliases: aliases}
}

// Canonicalize normalizes a free-text city name. Non-alphanumeric characters
// are stripped, the remainder is lowercased, and known aliases collapse to
// their canonical key. An unknown city canonicalizes to itself; empty input
// returns the empty string.
func (c *Canonicalizer) Canonicalize(raw string) string {
	token := strip(raw)
	if token == "" {
		return ""
	}

	c.mu.RLock()
	canonical, ok := c.aliases[token]
	c.mu.RUnlock()

	if ok {
		return canonical
	}
	return token
}

// LoadBucket replaces the alias table with the contents of a bucket object.
// On any failure the previously loaded table stays in effect.
func (c *Canonicalizer) LoadBucket(ctx context.Context, client *storage.Client, bucket, object string, logger *slog.Logger) error {
	var data []byte

	err := retry.Do(
		func() error {
			r, openErr := client.Bucket(bucket).Object(object).NewReader(ctx)
			if openErr != nil {
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					return retry.Unrecoverable(fmt.Errorf("open alias object: %w", openErr))
				}
				return fmt.Errorf("open alias object: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					logger.Warn("Failed to close alias reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read alias object: %w", readErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			logger.Info("Retrying alias table load after error", "attempt", n, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("load alias table after retries: %w", err)
	}

	aliases, err := parseAliases(data)
	if err != nil {
		return fmt.Errorf("parse alias table: %w", err)
	}

	c.mu.Lock()
	c.aliases = aliases
	c.mu.Unlock()

	logger.Info("City alias table loaded", "bucket", bucket, "object", object, "tokens", len(aliases))
	return nil
}

// parseAliases builds the lookup from a canonical-key -> alias-list document.
// Canonical keys map to themselves so a user entering the canonical name hits
// the table too.
func parseAliases(data []byte) (map[string]string, error) {
	var table map[string][]string
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("unmarshal aliases: %w", err)
	}

	aliases := make(map[string]string, len(table)*4)
	for canonical, list := range table {
		key := strip(canonical)
		if key == "" {
			return nil, fmt.Errorf("canonical key %q strips to empty", canonical)
		}
		aliases[key] = key
		for _, alias := range list {
			token := strip(alias)
			if token == "" {
				continue
			}
			aliases[token] = key
		}
	}
	return aliases, nil
}

// strip removes everything that is not an ASCII letter or digit and
// lowercases the remainder.
func strip(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z' || c >= '0' && c <= '9':
			b = append(b, c)
		case c >= 'A' && c <= 'Z':
			b = append(b, c+'a'-'A')
		}
	}
	return string(b)
}
