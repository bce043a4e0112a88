package similarity

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/matsen/refy/internal/embedding"
)

// indexFile is the GOB layout of a saved index.
type indexFile struct {
	Version     int
	ModelName   string
	Kind        embedding.Kind
	Fingerprint string
	CreatedAt   time.Time
	IDs         []string
	Vectors     []embedding.Vector
}

// Save persists the index to path using GOB encoding.
func (idx *Index) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	// Write to a temp file first, then rename for atomicity
	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	file := indexFile{
		Version:     CurrentIndexVersion,
		ModelName:   idx.ModelName,
		Kind:        idx.Kind,
		Fingerprint: idx.Fingerprint,
		CreatedAt:   idx.CreatedAt,
		IDs:         idx.ids,
		Vectors:     idx.vectors,
	}
	if err := gob.NewEncoder(f).Encode(&file); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("encoding index: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Load reads an index written by Save.
// Returns ErrUnsupportedVersion if the index was created with an incompatible format.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrIndexNotFound
		}
		return nil, fmt.Errorf("opening index file: %w", err)
	}
	defer f.Close()

	var file indexFile
	if err := gob.NewDecoder(f).Decode(&file); err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}

	if file.Version != CurrentIndexVersion {
		return nil, fmt.Errorf("%w: got %d, want %d (rebuild with 'refy index build')",
			ErrUnsupportedVersion, file.Version, CurrentIndexVersion)
	}

	idx, err := newIndex(file.IDs, file.Vectors, file.Kind, file.ModelName, false)
	if err != nil {
		return nil, fmt.Errorf("restoring index: %w", err)
	}
	idx.Fingerprint = file.Fingerprint
	idx.CreatedAt = file.CreatedAt
	return idx, nil
}

// Size returns the size of the index file in bytes.
func Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrIndexNotFound
		}
		return 0, err
	}
	return info.Size(), nil
}
