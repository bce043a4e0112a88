package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matsen/refy/internal/config"
	"github.com/matsen/refy/internal/embedding"
	"github.com/matsen/refy/internal/similarity"
	"github.com/matsen/refy/internal/storage"
)

func TestQueryText(t *testing.T) {
	tests := []struct {
		name    string
		stdin   string
		args    []string
		want    string
		wantErr bool
	}{
		{name: "joins args", args: []string{"protein", "folding"}, want: "protein folding"},
		{name: "reads stdin", stdin: "from stdin\n", args: []string{"-"}, want: "from stdin\n"},
		{name: "no args", wantErr: true},
		{name: "blank args", args: []string{"  "}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := queryText(strings.NewReader(tt.stdin), tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("queryText() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("queryText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQueryFlags_Query(t *testing.T) {
	saved := cfg
	t.Cleanup(func() { cfg = saved })
	cfg = config.Default()
	cfg.MinSimilarity = 0.1

	t.Run("defaults from config", func(t *testing.T) {
		q, err := (&queryFlags{minSimilarity: -2}).query()
		if err != nil {
			t.Fatalf("query() error = %v", err)
		}
		if q.N != cfg.Suggestions || q.TopK != cfg.TopK || q.MinSimilarity != 0.1 {
			t.Errorf("query() = %+v, want config defaults", q)
		}
	})

	t.Run("flags override", func(t *testing.T) {
		q, err := (&queryFlags{n: 5, topK: 7, minSimilarity: 0, since: 2000, to: 2010}).query()
		if err != nil {
			t.Fatalf("query() error = %v", err)
		}
		if q.N != 5 || q.TopK != 7 || q.MinSimilarity != 0 || q.Since != 2000 || q.To != 2010 {
			t.Errorf("query() = %+v", q)
		}
	})

	t.Run("since after to", func(t *testing.T) {
		if _, err := (&queryFlags{minSimilarity: -2, since: 2020, to: 2010}).query(); err == nil {
			t.Error("query() error = nil, want error")
		}
	})
}

const testCatalog = `{"id":"P1","title":"Folding pathways of small proteins","authors":["Gary Stacey","Ada Lovelace"],"year":2021,"doi":"10.1/p1","abstract":"We run molecular dynamics simulations to study protein folding pathways."}
{"id":"P2","title":"Enhancers and gene regulation","authors":["Stacey, Gary"],"year":2019,"abstract":"Transcription factors bind enhancers and control gene regulation in development."}
{"id":"P3","title":"Convolutional networks for images","year":2020,"abstract":"Deep neural networks classify image data with convolutional layers."}
{"id":"P4","title":"Untitled"}
`

const testLibrary = `@article{Mine2018,
  title = {Simulating how proteins fold},
  author = {Doe, Jane},
  year = {2018},
  abstract = {Molecular dynamics simulations of protein folding.}
}
`

// runRefy executes the root command with args and returns its stdout.
func runRefy(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSuggestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("REFY_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("REFY_LOG_LEVEL", "error")
	savedCfg, savedLogger := cfg, logger
	t.Cleanup(func() { cfg, logger = savedCfg, savedLogger })

	catalogFile := filepath.Join(dir, "papers.jsonl")
	libFile := filepath.Join(dir, "library.bib")
	if err := os.WriteFile(catalogFile, []byte(testCatalog), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(libFile, []byte(testLibrary), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := runRefy(t, "catalog", "import", catalogFile)
	if err != nil {
		t.Fatalf("catalog import error = %v", err)
	}
	var imported CatalogImportResult
	if err := json.Unmarshal([]byte(out), &imported); err != nil {
		t.Fatalf("decoding import result: %v\n%s", err, out)
	}
	if imported.Imported != 3 || imported.Dropped != 1 {
		t.Errorf("import = %+v, want 3 imported, 1 dropped", imported)
	}

	if _, err := runRefy(t, "model", "fit"); err != nil {
		t.Fatalf("model fit error = %v", err)
	}

	out, err = runRefy(t, "index", "build")
	if err != nil {
		t.Fatalf("index build error = %v", err)
	}
	var built IndexBuildResult
	if err := json.Unmarshal([]byte(out), &built); err != nil {
		t.Fatalf("decoding build result: %v\n%s", err, out)
	}
	if built.Rows != 3 {
		t.Errorf("index rows = %d, want 3", built.Rows)
	}

	out, err = runRefy(t, "index", "check")
	if err != nil {
		t.Fatalf("index check error = %v", err)
	}
	var checked IndexCheckResult
	if err := json.Unmarshal([]byte(out), &checked); err != nil {
		t.Fatalf("decoding check result: %v\n%s", err, out)
	}
	if checked.Status != "ok" {
		t.Errorf("index status = %q, want ok", checked.Status)
	}

	out, err = runRefy(t, "suggest", libFile)
	if err != nil {
		t.Fatalf("suggest error = %v", err)
	}
	var resp SuggestResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decoding suggestions: %v\n%s", err, out)
	}
	if len(resp.Suggestions) != 1 || resp.Suggestions[0].ID != "P1" {
		t.Fatalf("suggestions = %+v, want only P1", resp.Suggestions)
	}
	if resp.Suggestions[0].Rank != 1 || resp.Suggestions[0].Score <= 0 {
		t.Errorf("P1 = %+v, want rank 1 with positive score", resp.Suggestions[0])
	}
	if resp.QueriesUsed != 1 {
		t.Errorf("queries_used = %d, want 1", resp.QueriesUsed)
	}
}

func TestQueryAuthor(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("REFY_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("REFY_LOG_LEVEL", "error")
	savedCfg, savedLogger := cfg, logger
	t.Cleanup(func() {
		cfg, logger = savedCfg, savedLogger
		queryAuthors = nil
		queryFlagSet = queryFlags{minSimilarity: -2}
	})

	catalogFile := filepath.Join(dir, "papers.jsonl")
	if err := os.WriteFile(catalogFile, []byte(testCatalog), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := runRefy(t, "catalog", "import", catalogFile); err != nil {
		t.Fatalf("catalog import error = %v", err)
	}

	tests := []struct {
		name  string
		args  []string
		want  []string
		empty bool
	}{
		{name: "hit", args: []string{"--author", "gary stacey"}, want: []string{"P1", "P2"}},
		{name: "year filter", args: []string{"--author", "Gary Stacey", "--since", "2020"}, want: []string{"P1"}},
		{name: "miss", args: []string{"--author", "Grace Hopper"}, empty: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queryAuthors = nil
			queryFlagSet = queryFlags{minSimilarity: -2}
			save := filepath.Join(dir, tt.name+".csv")
			args := append([]string{"query", "--save", save}, tt.args...)
			out, err := runRefy(t, args...)
			if err != nil {
				t.Fatalf("query --author error = %v", err)
			}
			var resp SuggestResponse
			if err := json.Unmarshal([]byte(out), &resp); err != nil {
				t.Fatalf("decoding suggestions: %v\n%s", err, out)
			}
			if resp.Mode != "author" {
				t.Errorf("mode = %q, want author", resp.Mode)
			}

			var got []string
			for _, s := range resp.Suggestions {
				got = append(got, s.ID)
			}
			if tt.empty {
				if len(got) != 0 || resp.Notice == "" {
					t.Errorf("suggestions = %v notice = %q, want none with a notice", got, resp.Notice)
				}
			} else if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("suggestions = %v, want %v", got, tt.want)
			}

			data, err := os.ReadFile(save)
			if err != nil {
				t.Fatalf("reading saved CSV: %v", err)
			}
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if lines[0] != "rank,score,id,title,year,doi_or_url" || len(lines) != len(got)+1 {
				t.Errorf("saved CSV = %q, want header and %d rows", data, len(got))
			}
		})
	}
}

func TestSuggest_MissingIndex(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("REFY_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("REFY_LOG_LEVEL", "error")
	savedCfg, savedLogger := cfg, logger
	t.Cleanup(func() { cfg, logger = savedCfg, savedLogger })

	catalogFile := filepath.Join(dir, "papers.jsonl")
	libFile := filepath.Join(dir, "library.bib")
	if err := os.WriteFile(catalogFile, []byte(testCatalog), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(libFile, []byte(testLibrary), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := runRefy(t, "catalog", "import", catalogFile); err != nil {
		t.Fatalf("catalog import error = %v", err)
	}

	_, err := runRefy(t, "suggest", libFile)
	if err == nil {
		t.Fatal("suggest without an index succeeded, want error")
	}
	if code := exitCodeFor(err); code != ExitConfigError {
		t.Errorf("exit code = %d, want %d (err: %v)", code, ExitConfigError, err)
	}
}

func TestModelForIndex_RemoteEmbedsUpFront(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"embeddings":[[1,0],[0,1]]}`))
	}))
	t.Cleanup(server.Close)

	saved := cfg
	t.Cleanup(func() { cfg = saved })
	cfg = config.Default()
	cfg.OllamaURL = server.URL
	cfg.OllamaDimensions = 2
	cfg.OllamaRate = 0

	idx, err := similarity.FromVectors([]string{"P1"}, []embedding.Vector{embedding.NewDense([]float32{1, 0})},
		embedding.KindDense, embedding.RemotePrefix+"nomic-embed-text")
	if err != nil {
		t.Fatalf("FromVectors() error = %v", err)
	}

	model, err := modelForIndex(context.Background(), idx, []string{"first abstract", "second abstract"})
	if err != nil {
		t.Fatalf("modelForIndex() error = %v", err)
	}
	if model.Name() != idx.ModelName {
		t.Errorf("Name() = %q, want %q", model.Name(), idx.ModelName)
	}
	if calls != 1 {
		t.Fatalf("server calls = %d, want 1", calls)
	}

	if v := model.Embed("second abstract"); v.Dense[1] != 1 {
		t.Errorf("Embed(second abstract) = %v, want [0 1]", v.Dense)
	}
	model.Embed("first abstract")
	if calls != 1 {
		t.Errorf("Embed reached the server; calls = %d, want 1", calls)
	}
}

func TestCatalogShowAndExport(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("REFY_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("REFY_LOG_LEVEL", "error")
	savedCfg, savedLogger := cfg, logger
	t.Cleanup(func() { cfg, logger = savedCfg, savedLogger })

	catalogFile := filepath.Join(dir, "papers.jsonl")
	if err := os.WriteFile(catalogFile, []byte(testCatalog), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := runRefy(t, "catalog", "import", catalogFile); err != nil {
		t.Fatalf("catalog import error = %v", err)
	}

	out, err := runRefy(t, "catalog", "show", "P2")
	if err != nil {
		t.Fatalf("catalog show error = %v", err)
	}
	var shown storage.Record
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("decoding record: %v\n%s", err, out)
	}
	if shown.Title != "Enhancers and gene regulation" || shown.Year != 2019 || !strings.Contains(shown.Abstract, "enhancers") {
		t.Errorf("catalog show P2 = %+v", shown)
	}

	if _, err := runRefy(t, "catalog", "show", "P4"); err == nil {
		t.Error("catalog show of a dropped paper succeeded, want error")
	}

	exported := filepath.Join(dir, "export.jsonl")
	if _, err := runRefy(t, "catalog", "export", exported); err != nil {
		t.Fatalf("catalog export error = %v", err)
	}
	records, err := storage.ReadCatalogJSONL(exported)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if len(records) != 3 || records[0].ID != "P1" || len(records[0].Authors) != 2 {
		t.Errorf("exported records = %+v", records)
	}
}
