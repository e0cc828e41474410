package asset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const manifestName = "manifest.json"

// ManifestWriteError signals a storage failure while committing an asset.
// The asset stays undiscoverable, no partial state is exposed.
type ManifestWriteError struct {
	ID  string
	Err error
}

func (e *ManifestWriteError) Error() string {
	return fmt.Sprintf("manifest write failed for %s: %v", e.ID, e.Err)
}

func (e *ManifestWriteError) Unwrap() error {
	return e.Err
}

// Store persists manifests as create-once, read-many JSON documents keyed
// by asset id, one directory per asset under the media root.
type StoreCtx struct {
	logger zerolog.Logger
	root   string
}

func NewStore(root string) *StoreCtx {
	return &StoreCtx{
		logger: log.With().Str("module", "asset").Str("submodule", "store").Logger(),
		root:   root,
	}
}

// Root returns the media root directory.
func (s *StoreCtx) Root() string {
	return s.root
}

// Dir returns the directory holding all artifacts of an asset.
func (s *StoreCtx) Dir(id string) string {
	return filepath.Join(s.root, id)
}

// Write commits the manifest. This is the single commit point for an
// asset: before this write nothing is visible to readers, after it the
// asset is immutable and discoverable. Writing twice for the same id is
// an error.
func (s *StoreCtx) Write(m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return &ManifestWriteError{ID: m.ID, Err: err}
	}

	path := filepath.Join(s.Dir(m.ID), manifestName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return &ManifestWriteError{ID: m.ID, Err: err}
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return &ManifestWriteError{ID: m.ID, Err: err}
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return &ManifestWriteError{ID: m.ID, Err: err}
	}

	s.logger.Info().Str("id", m.ID).Int("variants", len(m.Variants)).Msg("manifest committed")
	return nil
}

// Load reads the manifest for an asset id, if committed.
func (s *StoreCtx) Load(id string) (*Manifest, error) {
	if !ValidID(id) {
		return nil, os.ErrNotExist
	}

	data, err := os.ReadFile(filepath.Join(s.Dir(id), manifestName))
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{}
	if err := json.Unmarshal(data, manifest); err != nil {
		return nil, fmt.Errorf("unable to parse manifest %s: %w", id, err)
	}

	return manifest, nil
}

// Remove deletes the whole asset directory. This is both the deletion
// path and the rollback path on partial pipeline failure.
func (s *StoreCtx) Remove(id string) error {
	return os.RemoveAll(s.Dir(id))
}

// Listing is the catalog entry for one committed asset.
type Listing struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	CreatedAt      string   `json:"createdAt"`
	CreatedAtEpoch float64  `json:"createdAtEpoch"`
	Resolutions    []string `json:"resolutions"`
}

// List enumerates all committed assets, newest first. Unreadable or
// unparseable manifests are skipped.
func (s *StoreCtx) List() []Listing {
	listings := []Listing{}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return listings
	}
	for _, entry := range entries {
		if !entry.IsDir() || !ValidID(entry.Name()) {
			continue
		}

		manifest, err := s.Load(entry.Name())
		if err != nil {
			continue
		}

		title := manifest.Source.Filename
		if title == "" {
			title = manifest.ID
		}

		resolutions := lo.Uniq(lo.Map(manifest.Variants, func(v Variant, _ int) string {
			return fmt.Sprintf("%dp", v.Height)
		}))

		listings = append(listings, Listing{
			ID:             manifest.ID,
			Title:          title,
			CreatedAt:      manifest.CreatedAt,
			CreatedAtEpoch: manifest.CreatedAtEpoch,
			Resolutions:    resolutions,
		})
	}

	sort.Slice(listings, func(i, j int) bool {
		return listings[i].CreatedAtEpoch > listings[j].CreatedAtEpoch
	})

	return listings
}
