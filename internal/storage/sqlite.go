package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/matsen/refy/internal/catalog"
	"github.com/matsen/refy/internal/paper"
	_ "modernc.org/sqlite"
)

// Metadata keys written on import.
const (
	MetaImportedAt = "imported_at"
	MetaSource     = "source"
)

// DB wraps a SQLite catalog database.
type DB struct {
	db *sql.DB
}

// selectPaperFields contains the standard field list for SELECT queries.
const selectPaperFields = `id, doi, url, title, year, authors_json, fields_json, abstract`

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates the database schema if it doesn't exist. The papers
// seq column is the catalog insertion order.
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS papers (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			doi TEXT,
			url TEXT,
			title TEXT NOT NULL,
			year INTEGER NOT NULL DEFAULT 0,
			authors_json TEXT NOT NULL,
			fields_json TEXT NOT NULL,
			abstract TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_papers_doi ON papers(doi) WHERE doi IS NOT NULL AND doi != '';

		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`

	_, err := db.Exec(schema)
	return err
}

// ImportStats summarizes an import.
type ImportStats struct {
	Imported   int // rows added
	Dropped    int // records rejected by the filter
	Duplicates int // records whose ID was already stored
}

// ImportRecords appends the records that pass f. Records whose ID is already
// stored are skipped, so the first occurrence wins.
func (d *DB) ImportRecords(records []Record, f Filter, source string) (ImportStats, error) {
	var stats ImportStats

	tx, err := d.db.Begin()
	if err != nil {
		return stats, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO papers (id, doi, url, title, year, authors_json, fields_json, abstract)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return stats, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if !f.Keep(r) {
			stats.Dropped++
			continue
		}

		authors, err := json.Marshal(nonNil(r.Authors))
		if err != nil {
			return stats, fmt.Errorf("encoding authors for %s: %w", r.ID, err)
		}
		fields, err := json.Marshal(nonNil(r.FieldOfStudy))
		if err != nil {
			return stats, fmt.Errorf("encoding fields for %s: %w", r.ID, err)
		}

		res, err := stmt.Exec(
			r.ID, nullableStringValue(r.DOI), nullableStringValue(r.URL), r.Title, r.Year,
			string(authors), string(fields), r.Abstract,
		)
		if err != nil {
			return stats, fmt.Errorf("inserting %s: %w", r.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return stats, fmt.Errorf("inserting %s: %w", r.ID, err)
		}
		if n == 0 {
			stats.Duplicates++
			continue
		}
		stats.Imported++
	}

	if err := setMeta(tx, MetaImportedAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return stats, err
	}
	if source != "" {
		if err := setMeta(tx, MetaSource, source); err != nil {
			return stats, err
		}
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("committing import: %w", err)
	}
	return stats, nil
}

// RebuildFromJSONL clears the database and imports a JSONL catalog file.
func (d *DB) RebuildFromJSONL(path string, f Filter) (ImportStats, error) {
	records, err := ReadCatalogJSONL(path)
	if err != nil {
		return ImportStats{}, fmt.Errorf("reading JSONL: %w", err)
	}
	if err := d.Clear(); err != nil {
		return ImportStats{}, err
	}
	return d.ImportRecords(records, f, path)
}

// Clear removes all papers and metadata.
func (d *DB) Clear() error {
	if _, err := d.db.Exec("DELETE FROM papers"); err != nil {
		return fmt.Errorf("clearing papers table: %w", err)
	}
	// Restart row numbering so a rebuilt catalog keeps its file order.
	if _, err := d.db.Exec("DELETE FROM sqlite_sequence WHERE name = 'papers'"); err != nil {
		return fmt.Errorf("resetting row sequence: %w", err)
	}
	if _, err := d.db.Exec("DELETE FROM metadata"); err != nil {
		return fmt.Errorf("clearing metadata table: %w", err)
	}
	return nil
}

// LoadCatalog reads every stored paper in insertion order and builds a
// catalog from them.
func (d *DB) LoadCatalog() (*catalog.Catalog, error) {
	rows, err := d.db.Query(`SELECT ` + selectPaperFields + ` FROM papers ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}
	defer rows.Close()

	var papers []paper.Paper
	abstracts := make(map[string]string)
	for rows.Next() {
		p, abstract, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, p)
		abstracts[p.ID] = abstract
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}

	return catalog.New(papers, abstracts)
}

// GetPaper returns a stored paper by ID, or nil if absent.
func (d *DB) GetPaper(id string) (*Record, error) {
	row := d.db.QueryRow(`SELECT `+selectPaperFields+` FROM papers WHERE id = ?`, id)
	p, abstract, err := scanPaper(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r := NewRecord(p, abstract)
	return &r, nil
}

// Count returns the total number of stored papers.
func (d *DB) Count() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM papers").Scan(&count)
	return count, err
}

// Meta returns a metadata value, or "" if unset.
func (d *DB) Meta(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func setMeta(tx *sql.Tx, key, value string) error {
	if _, err := tx.Exec("INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)", key, value); err != nil {
		return fmt.Errorf("writing metadata %s: %w", key, err)
	}
	return nil
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPaper(s scanner) (paper.Paper, string, error) {
	var p paper.Paper
	var doi, url sql.NullString
	var authorsJSON, fieldsJSON, abstract string

	if err := s.Scan(&p.ID, &doi, &url, &p.Title, &p.Year, &authorsJSON, &fieldsJSON, &abstract); err != nil {
		return p, "", err
	}
	p.DOI = doi.String
	p.URL = url.String
	p.Source = paper.SourceCatalog

	if err := json.Unmarshal([]byte(authorsJSON), &p.Authors); err != nil {
		return p, "", fmt.Errorf("parsing authors JSON for %s: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &p.FieldOfStudy); err != nil {
		return p, "", fmt.Errorf("parsing fields JSON for %s: %w", p.ID, err)
	}
	if len(p.FieldOfStudy) == 0 {
		p.FieldOfStudy = nil
	}
	return p, abstract, nil
}

// nullableStringValue converts a string to sql.NullString, treating empty as NULL.
func nullableStringValue(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
