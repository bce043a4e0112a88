package embedding

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CurrentModelVersion is the model file format version.
// Increment this when making breaking changes to the stored model layout.
const CurrentModelVersion = 1

// Model kinds as recorded in model files.
const (
	KindNameTFIDF   = "tfidf"
	KindNameDoc2Vec = "doc2vec"
)

// modelFile is the on-disk envelope for a fitted model.
type modelFile struct {
	Version   int
	Kind      string
	Name      string
	CreatedAt time.Time
	TFIDF     *tfidfState
	Doc2Vec   *doc2vecState
}

// ModelInfo describes a stored model without the model weights.
type ModelInfo struct {
	Version   int       `json:"version"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveModel writes a fitted TF-IDF or Doc2Vec model to path using GOB
// encoding. The file is written to a temp path first and renamed.
func SaveModel(path string, m Model) error {
	file := modelFile{Version: CurrentModelVersion, Name: m.Name(), CreatedAt: time.Now()}
	switch mm := m.(type) {
	case *TFIDF:
		file.Kind = KindNameTFIDF
		file.TFIDF = mm.state()
	case *Doc2Vec:
		file.Kind = KindNameDoc2Vec
		file.Doc2Vec = mm.state()
	default:
		return fmt.Errorf("%w: %T cannot be saved", ErrUnknownKind, m)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating model directory: %w", err)
	}

	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if err := gob.NewEncoder(f).Encode(&file); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("encoding model: %w", err)
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

// LoadModel reads a model written by SaveModel.
// Returns ErrModelNotFound if the file does not exist.
func LoadModel(path string) (Model, ModelInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ModelInfo{}, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return nil, ModelInfo{}, fmt.Errorf("opening model file: %w", err)
	}
	defer f.Close()

	var file modelFile
	if err := gob.NewDecoder(f).Decode(&file); err != nil {
		return nil, ModelInfo{}, fmt.Errorf("decoding model: %w", err)
	}
	info := ModelInfo{Version: file.Version, Kind: file.Kind, Name: file.Name, CreatedAt: file.CreatedAt}

	if file.Version != CurrentModelVersion {
		return nil, info, fmt.Errorf("%w: got %d, want %d (refit with 'refy model fit')",
			ErrUnsupportedVersion, file.Version, CurrentModelVersion)
	}

	var m Model
	switch {
	case file.Kind == KindNameTFIDF && file.TFIDF != nil:
		m, err = tfidfFromState(file.TFIDF)
	case file.Kind == KindNameDoc2Vec && file.Doc2Vec != nil:
		m, err = doc2vecFromState(file.Doc2Vec)
	default:
		return nil, info, fmt.Errorf("%w: %q", ErrUnknownKind, file.Kind)
	}
	if err != nil {
		return nil, info, fmt.Errorf("restoring %s model: %w", file.Kind, err)
	}
	return m, info, nil
}
