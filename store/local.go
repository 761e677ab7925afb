package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"unihousing-notifier/pkg/housing"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Local mode mirrors the collection layout as one directory per collection
// with one pretty-printed JSON file per document.

func (s *Store) localDir(collection string) string {
	return filepath.Join(s.localPath, collection)
}

func (s *Store) localFile(collection, id string) string {
	return filepath.Join(s.localPath, collection, id+".json")
}

func (s *Store) writeLocal(collection, id string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	dir := s.localDir(collection)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create local collection dir: %w", err)
	}
	if err := os.WriteFile(s.localFile(collection, id), data, 0o600); err != nil {
		return fmt.Errorf("write to local storage: %w", err)
	}
	return nil
}

func (s *Store) readLocal(collection, id string, v any) error {
	data, err := os.ReadFile(s.localFile(collection, id))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return fmt.Errorf("read from local storage: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}
	return nil
}

func (s *Store) readLocalMap(collection, id string) (map[string]any, error) {
	var data map[string]any
	if err := s.readLocal(collection, id, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) deleteLocal(collection, id string) error {
	if err := os.Remove(s.localFile(collection, id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete from local storage: %w", err)
	}
	return nil
}

func (s *Store) localExists(collection, id string) bool {
	_, err := os.Stat(s.localFile(collection, id))
	return err == nil
}

// localIDs lists the document IDs present in a local collection directory.
func (s *Store) localIDs(collection string) ([]string, error) {
	entries, err := os.ReadDir(s.localDir(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read local collection dir: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

func (s *Store) localAlerts() ([]*housing.Alert, error) {
	ids, err := s.localIDs(colAlerts)
	if err != nil {
		return nil, err
	}

	var alerts []*housing.Alert
	for _, id := range ids {
		var alert housing.Alert
		if err := s.readLocal(colAlerts, id, &alert); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			s.logger.Warn("Failed to load alert", "id", id, "error", err)
			continue
		}
		alert.ID = id
		alerts = append(alerts, &alert)
	}
	return alerts, nil
}

func (s *Store) localListings() ([]*housing.Listing, error) {
	ids, err := s.localIDs(colListings)
	if err != nil {
		return nil, err
	}

	var listings []*housing.Listing
	for _, id := range ids {
		data, err := s.readLocalMap(colListings, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			s.logger.Warn("Failed to load listing", "id", id, "error", err)
			continue
		}
		listings = append(listings, listingFromData(id, data))
	}
	return listings, nil
}
