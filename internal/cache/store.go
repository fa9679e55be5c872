// Package cache is the on-disk JSON store behind the public API: listing
// pages and records written by the sync pass, read verbatim by the
// serving layer.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/ACMILabs/acmi-api/internal/domain"
	"github.com/ACMILabs/acmi-api/internal/logger"
)

// ErrCacheMiss marks a read of a record or page that is not cached, or an
// unparsable id/page argument. The serving layer maps it to a 404.
var ErrCacheMiss = errors.New("not in cache")

// recordFilePattern matches numerically-named record files, excluding
// index pages and lookup tables.
var recordFilePattern = regexp.MustCompile(`^[0-9]+\.json$`)

const audioLabelsFile = "audio_labels.json"

// Store reads and writes the cache directory tree, one subdirectory per
// resource.
type Store struct {
	root       string
	publicBase string
	log        logger.Interface
}

// New creates a store rooted at jsonRoot. Pagination links are rewritten
// against publicBase so cached pages never leak upstream addresses.
func New(jsonRoot, publicBase string, log logger.Interface) *Store {
	return &Store{root: jsonRoot, publicBase: publicBase, log: log}
}

// SaveIndexPage persists one listing page, rewriting its next and previous
// links to the public endpoint. Page 1 is index.json with a null previous;
// the last page keeps a null next.
func (s *Store) SaveIndexPage(resource domain.Resource, page *domain.Page, pageNumber int) error {
	endpoint := fmt.Sprintf("%s/%s/", s.publicBase, resource)

	filename := "index.json"
	if pageNumber > 1 {
		if page.Next != nil {
			next := fmt.Sprintf("%s?page=%d", endpoint, pageNumber+1)
			page.Next = &next
		}
		previous := fmt.Sprintf("%s?page=%d", endpoint, pageNumber-1)
		page.Previous = &previous
		filename = fmt.Sprintf("index_page_%d.json", pageNumber)
	} else {
		if page.Next != nil {
			next := endpoint + "?page=2"
			page.Next = &next
		}
		page.Previous = nil
	}

	if err := s.write(resource, filename, page); err != nil {
		return err
	}
	s.log.Debug("Saved index page", "resource", resource, "file", filename)
	return nil
}

// SaveRecord persists one record as {id}.json.
func (s *Store) SaveRecord(resource domain.Resource, record domain.Record) error {
	id, ok := record.ID()
	if !ok {
		return fmt.Errorf("record for %s has no id", resource)
	}
	return s.write(resource, fmt.Sprintf("%d.json", id), record)
}

// ReadIndexPage returns the cached bytes of a listing page. An empty page
// argument or "1" reads index.json; otherwise index_page_N.json. A missing
// file, a non-numeric argument or a page below 1 is a cache miss.
func (s *Store) ReadIndexPage(resource domain.Resource, pageArg string) (json.RawMessage, error) {
	filename := "index.json"
	if pageArg != "" {
		page, err := strconv.Atoi(pageArg)
		if err != nil || page < 1 {
			return nil, ErrCacheMiss
		}
		if page > 1 {
			filename = fmt.Sprintf("index_page_%d.json", page)
		}
	}
	return s.read(resource, filename)
}

// ReadRecord returns the cached bytes of one record. A non-numeric id or a
// missing file is a cache miss.
func (s *Store) ReadRecord(resource domain.Resource, idArg string) (json.RawMessage, error) {
	id, err := strconv.Atoi(idArg)
	if err != nil {
		return nil, ErrCacheMiss
	}
	return s.read(resource, fmt.Sprintf("%d.json", id))
}

// DeleteRecord removes one cached record file.
func (s *Store) DeleteRecord(resource domain.Resource, id int) error {
	path := filepath.Join(s.root, string(resource), fmt.Sprintf("%d.json", id))
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete cached record: %w", err)
	}
	return nil
}

// RecordFiles lists the paths of every numerically-named record file for
// the resource, in directory order. Index pages and lookup tables are not
// records.
func (s *Store) RecordFiles(resource domain.Resource) ([]string, error) {
	dir := filepath.Join(s.root, string(resource))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s records: %w", resource, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !recordFilePattern.MatchString(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}

// LoadRecord parses one record file into its generic form.
func (s *Store) LoadRecord(path string) (domain.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record file: %w", err)
	}
	var record domain.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parse record file %s: %w", path, err)
	}
	return record, nil
}

// SaveAudioLabels persists the label-id to audio-id lookup used by the
// labels listing endpoint.
func (s *Store) SaveAudioLabels(labels map[string]int) error {
	return s.write(domain.Audio, audioLabelsFile, labels)
}

// AudioByLabel resolves a label id to the cached audio record it belongs
// to. Unknown labels and missing records are cache misses.
func (s *Store) AudioByLabel(labelID string) (json.RawMessage, error) {
	data, err := s.read(domain.Audio, audioLabelsFile)
	if err != nil {
		return nil, err
	}
	var labels map[string]int
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("parse audio labels: %w", err)
	}
	audioID, ok := labels[labelID]
	if !ok {
		return nil, ErrCacheMiss
	}
	return s.read(domain.Audio, fmt.Sprintf("%d.json", audioID))
}

func (s *Store) write(resource domain.Resource, filename string, value any) error {
	dir := filepath.Join(s.root, string(resource))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", resource, filename, err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		return fmt.Errorf("write %s/%s: %w", resource, filename, err)
	}
	return nil
}

func (s *Store) read(resource domain.Resource, filename string) (json.RawMessage, error) {
	data, err := os.ReadFile(filepath.Join(s.root, string(resource), filename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("read %s/%s: %w", resource, filename, err)
	}
	return data, nil
}
