package main

import (
	"errors"

	"github.com/matsen/refy/internal/bibtex"
	"github.com/matsen/refy/internal/catalog"
	"github.com/matsen/refy/internal/config"
	"github.com/matsen/refy/internal/embedding"
	"github.com/matsen/refy/internal/logging"
	"github.com/matsen/refy/internal/paper"
	"github.com/matsen/refy/internal/similarity"
)

// Exit codes. An empty suggestion list is not an error: it exits 0 with a
// "no matches" notice, so code 4 is unused.
const (
	ExitSuccess       = 0 // Success
	ExitError         = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError   = 2 // Configuration error, or catalog / index not found
	ExitDataError     = 3 // Data error (catalog mismatch, malformed input, empty library)
	ExitModelNotFound = 5 // Embedding model not found
	ExitIndexStale    = 6 // Index does not match the catalog or model
)

// errCatalogNotFound is returned when the configured catalog does not exist.
var errCatalogNotFound = errors.New("catalog not found")

// exitCodeFor maps an error to the process exit code.
func exitCodeFor(err error) int {
	var mismatch *catalog.DataMismatchError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, logging.ErrInvalidLevel),
		errors.Is(err, logging.ErrInvalidFormat),
		errors.Is(err, similarity.ErrIndexNotFound),
		errors.Is(err, errCatalogNotFound):
		return ExitConfigError
	case errors.As(err, &mismatch),
		errors.Is(err, bibtex.ErrSyntax),
		errors.Is(err, paper.ErrEmptyLibrary),
		errors.Is(err, embedding.ErrEmptyCorpus):
		return ExitDataError
	case errors.Is(err, embedding.ErrModelNotFound):
		return ExitModelNotFound
	case errors.Is(err, similarity.ErrStaleIndex),
		errors.Is(err, similarity.ErrKindMismatch),
		errors.Is(err, similarity.ErrUnsupportedVersion),
		errors.Is(err, embedding.ErrUnsupportedVersion):
		return ExitIndexStale
	}
	return ExitError
}
