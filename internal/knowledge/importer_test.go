package knowledge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"frontdesk/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestParseQA(t *testing.T) {
	text := `
Intro line to ignore.

Q: What are your hours?
A: 9 to 5, Mon-Fri

Q: Do you validate parking?
A: Yes,
free for 2 hours.

Q: Orphan question without answer
`
	pairs := ParseQA(text)
	if len(pairs) != 2 {
		t.Fatalf("pairs = %d, want 2: %+v", len(pairs), pairs)
	}
	if pairs[0].Question != "What are your hours?" || pairs[0].Answer != "9 to 5, Mon-Fri" {
		t.Errorf("first pair = %+v", pairs[0])
	}
	if pairs[1].Answer != "Yes, free for 2 hours." {
		t.Errorf("multi-line answer = %q", pairs[1].Answer)
	}
}

func TestParseQA_Empty(t *testing.T) {
	if pairs := ParseQA("no markers here"); len(pairs) != 0 {
		t.Errorf("pairs = %+v, want none", pairs)
	}
}

func TestImportFile_JSON(t *testing.T) {
	store := openTestStore(t)
	im := NewImporter(store, nil)

	path := filepath.Join(t.TempDir(), "faq.json")
	content := `[{"question":"What are your hours?","answer":"9 to 5"},{"question":"","answer":"skipped"}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	n, err := im.ImportFile(path)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if n != 1 {
		t.Errorf("imported = %d, want 1 (empty question skipped)", n)
	}

	answer, ok, err := store.LookupAnswer("what are your hours?")
	if err != nil || !ok || answer != "9 to 5" {
		t.Errorf("lookup after import: answer=%q ok=%v err=%v", answer, ok, err)
	}
}

func TestImportFile_Text(t *testing.T) {
	store := openTestStore(t)
	im := NewImporter(store, nil)

	path := filepath.Join(t.TempDir(), "faq.txt")
	content := "Q: Do you allow pets?\nA: Service animals only.\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	n, err := im.ImportFile(path)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if n != 1 {
		t.Errorf("imported = %d, want 1", n)
	}
}

func TestImportURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><style>body{}</style></head><body>
			<p>Q: What are your hours?</p>
			<p>A: 9 to 5</p>
			<script>ignore()</script>
		</body></html>`))
	}))
	defer srv.Close()

	store := openTestStore(t)
	im := NewImporter(store, srv.Client())

	n, err := im.ImportURL(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("ImportURL: %v", err)
	}
	if n != 1 {
		t.Errorf("imported = %d, want 1", n)
	}
}

func TestImportURL_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	im := NewImporter(openTestStore(t), srv.Client())
	if _, err := im.ImportURL(context.Background(), srv.URL); err == nil {
		t.Error("expected an error for a 404 response")
	}
}

func TestImportURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>Q: q" + r.URL.Path + "\nA: a</body></html>"))
	}))
	defer srv.Close()

	store := openTestStore(t)
	im := NewImporter(store, srv.Client())

	n, err := im.ImportURLs(context.Background(), []string{srv.URL + "/one", srv.URL + "/two"})
	if err != nil {
		t.Fatalf("ImportURLs: %v", err)
	}
	if n != 2 {
		t.Errorf("imported = %d, want 2", n)
	}
}

func TestSeedDefaults(t *testing.T) {
	store := openTestStore(t)

	seeded, err := SeedDefaults(store)
	if err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	if !seeded {
		t.Fatal("empty store should be seeded")
	}

	answer, ok, err := store.LookupAnswer("What are your hours?")
	if err != nil || !ok {
		t.Fatalf("lookup after seed: ok=%v err=%v", ok, err)
	}
	if !strings.Contains(answer, "9 AM to 5 PM") {
		t.Errorf("seed answer = %q", answer)
	}

	// Second call is a no-op.
	seeded, err = SeedDefaults(store)
	if err != nil {
		t.Fatalf("second SeedDefaults: %v", err)
	}
	if seeded {
		t.Error("non-empty store must not be reseeded")
	}
}
