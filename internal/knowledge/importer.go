// Package knowledge seeds and bulk-loads the knowledge base from files and
// URLs, outside the resolve-driven learning path.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"frontdesk/internal/storage"
)

const maxURLFetchSize = 5 << 20 // 5MB

// Pair is a question/answer pair parsed from an import source.
type Pair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Store is the append surface the importer writes to.
type Store interface {
	InsertKnowledge(e storage.KnowledgeEntry) error
}

// SeedStore adds the emptiness check used by initial seeding.
type SeedStore interface {
	Store
	CountKnowledge() (int, error)
}

// SeedDefaults inserts the starter entry when the knowledge base is empty,
// and reports whether it did.
func SeedDefaults(store SeedStore) (bool, error) {
	n, err := store.CountKnowledge()
	if err != nil {
		return false, fmt.Errorf("checking knowledge base: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	err = store.InsertKnowledge(storage.KnowledgeEntry{
		ID:        uuid.New().String(),
		Question:  "What are your hours?",
		Answer:    "We are open 9 AM to 5 PM, Monday to Friday.",
		Source:    "seed",
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("seeding knowledge base: %w", err)
	}
	return true, nil
}

// Importer loads question/answer pairs into the knowledge base.
type Importer struct {
	store  Store
	client *http.Client
	logger *slog.Logger
}

// NewImporter creates an Importer. If client is nil a client with a 10s
// timeout is used.
func NewImporter(store Store, client *http.Client) *Importer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Importer{store: store, client: client, logger: slog.Default()}
}

// ImportFile imports pairs from a local file and returns how many entries
// were added. Supported formats: .json (array of {question, answer}), .pdf
// (text extraction then Q:/A: line parsing), anything else is treated as
// plain text in the Q:/A: line format.
func (im *Importer) ImportFile(path string) (int, error) {
	var pairs []Pair

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("reading file: %w", err)
		}
		if err := json.Unmarshal(data, &pairs); err != nil {
			return 0, fmt.Errorf("parsing JSON pairs: %w", err)
		}
	case ".pdf":
		text, err := pdfToText(path)
		if err != nil {
			return 0, fmt.Errorf("extracting PDF text: %w", err)
		}
		pairs = ParseQA(text)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("reading file: %w", err)
		}
		pairs = ParseQA(string(data))
	}

	return im.insertPairs(pairs, "import")
}

// ImportURL fetches a page, strips markup, and imports Q:/A: pairs found in
// the text.
func (im *Importer) ImportURL(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("invalid url: %w", err)
	}
	resp, err := im.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("url returned status %d", resp.StatusCode)
	}

	text, err := htmlToText(io.LimitReader(resp.Body, maxURLFetchSize))
	if err != nil {
		return 0, fmt.Errorf("extracting text: %w", err)
	}

	return im.insertPairs(ParseQA(text), "import")
}

// ImportURLs imports several pages concurrently and returns the total number
// of entries added.
func (im *Importer) ImportURLs(ctx context.Context, urls []string) (int, error) {
	var total atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, url := range urls {
		g.Go(func() error {
			n, err := im.ImportURL(gCtx, url)
			if err != nil {
				return fmt.Errorf("importing %s: %w", url, err)
			}
			total.Add(int64(n))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(total.Load()), err
	}
	return int(total.Load()), nil
}

func (im *Importer) insertPairs(pairs []Pair, source string) (int, error) {
	added := 0
	for _, p := range pairs {
		if p.Question == "" || p.Answer == "" {
			continue
		}
		err := im.store.InsertKnowledge(storage.KnowledgeEntry{
			ID:        uuid.New().String(),
			Question:  p.Question,
			Answer:    p.Answer,
			Source:    source,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return added, fmt.Errorf("inserting %q: %w", p.Question, err)
		}
		added++
	}
	im.logger.Info("knowledge imported", "entries", added)
	return added, nil
}

// ParseQA extracts pairs from text in the Q:/A: line format. An answer runs
// until the next Q: line; lines outside a pair are ignored.
func ParseQA(text string) []Pair {
	var pairs []Pair
	var question string
	var answer []string
	inAnswer := false

	flush := func() {
		if question != "" && len(answer) > 0 {
			pairs = append(pairs, Pair{Question: question, Answer: strings.Join(answer, " ")})
		}
		question = ""
		answer = nil
		inAnswer = false
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Q:"):
			flush()
			question = strings.TrimSpace(strings.TrimPrefix(line, "Q:"))
		case strings.HasPrefix(line, "A:"):
			if question != "" {
				inAnswer = true
				if a := strings.TrimSpace(strings.TrimPrefix(line, "A:")); a != "" {
					answer = append(answer, a)
				}
			}
		case inAnswer && line != "":
			answer = append(answer, line)
		}
	}
	flush()
	return pairs
}

func pdfToText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	body, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// htmlToText returns the visible text of an HTML document, one text node per
// line, skipping script and style content.
func htmlToText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				b.WriteString(text)
				b.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String(), nil
}
