package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"cloudpdf/internal/ai"
	"cloudpdf/internal/model"
	"cloudpdf/internal/pkg/logger"
	"cloudpdf/internal/storage"
	"cloudpdf/internal/storage/local"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type fakeThesisRepo struct {
	mu        sync.Mutex
	items     []model.Thesis
	createErr error
	searches  []string
	lists     int
}

func (r *fakeThesisRepo) Create(ctx context.Context, thesis *model.Thesis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	thesis.ID = uint(len(r.items) + 1)
	r.items = append(r.items, *thesis)
	return nil
}

func (r *fakeThesisRepo) ListAll(ctx context.Context) ([]model.Thesis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists++
	out := make([]model.Thesis, 0, len(r.items))
	for i := len(r.items) - 1; i >= 0; i-- {
		out = append(out, r.items[i])
	}
	return out, nil
}

func (r *fakeThesisRepo) ListByOwner(ctx context.Context, ownerID uint) ([]model.Thesis, error) {
	all, _ := r.ListAll(ctx)
	var out []model.Thesis
	for _, t := range all {
		if t.UserID != nil && *t.UserID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeThesisRepo) Search(ctx context.Context, ownerID *uint, query string) ([]model.Thesis, error) {
	r.mu.Lock()
	r.searches = append(r.searches, query)
	r.mu.Unlock()
	all, _ := r.ListAll(ctx)
	var out []model.Thesis
	for _, t := range all {
		if strings.Contains(strings.ToLower(t.Title), strings.ToLower(query)) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeThesisRepo) FindByID(ctx context.Context, id uint) (*model.Thesis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].ID == id {
			t := r.items[i]
			return &t, nil
		}
	}
	return nil, nil
}

type fakeExtractor struct {
	text  string
	err   error
	pages int
}

func (e *fakeExtractor) Extract(ctx context.Context, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	return e.text, e.err
}

func (e *fakeExtractor) PageCount(ctx context.Context, data []byte) (int, error) {
	return e.pages, nil
}

type fakeAnalyzer struct {
	mu       sync.Mutex
	verdict  string
	summary  string
	title    string
	err      error
	payloads []string
	calls    int
}

func (a *fakeAnalyzer) record(payload string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.payloads = append(a.payloads, payload)
}

func (a *fakeAnalyzer) Classify(ctx context.Context, payload string) (string, error) {
	a.record(payload)
	return strings.ToLower(a.verdict), a.err
}

func (a *fakeAnalyzer) Summarize(ctx context.Context, payload string) (string, error) {
	a.record(payload)
	return a.summary, nil
}

func (a *fakeAnalyzer) Title(ctx context.Context, payload string) (string, error) {
	a.record(payload)
	return a.title, nil
}

type fakeCollector struct {
	keys []string
	err  error
}

func (c *fakeCollector) Collect(ctx context.Context, key, reason string) error {
	c.keys = append(c.keys, key)
	return c.err
}

type failingStore struct {
	storage.FileStore
}

func (failingStore) Save(ctx context.Context, key string, r io.Reader) (int64, error) {
	return 0, errors.New("disk full")
}

type fixture struct {
	svc       *ThesisService
	repo      *fakeThesisRepo
	store     *local.Store
	dir       string
	extractor *fakeExtractor
	analyzer  *fakeAnalyzer
}

func newFixture(t *testing.T, cfg ThesisServiceConfig) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := local.New(dir)
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	f := &fixture{
		repo:      &fakeThesisRepo{},
		store:     store,
		dir:       dir,
		extractor: &fakeExtractor{text: "Chapter 1. Introduction to distributed consensus.", pages: 42},
		analyzer:  &fakeAnalyzer{verdict: "Yes", summary: "  A study of consensus.  ", title: " Consensus Revisited \n"},
	}
	f.svc = NewThesisService(ThesisDeps{
		Repo:      f.repo,
		Store:     f.store,
		Extractor: f.extractor,
		Analyzer:  f.analyzer,
		Logger:    logger.Discard(),
	}, cfg)
	return f
}

func (f *fixture) storedFiles(t *testing.T) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(f.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return files
}

func upload(data []byte, name string) UploadInput {
	return UploadInput{FileName: name, Size: int64(len(data)), Content: bytes.NewReader(data)}
}

func TestUploadPersistsThesis(t *testing.T) {
	f := newFixture(t, ThesisServiceConfig{})
	owner := uint(12)
	in := upload(samplePDF, "my thesis.pdf")
	in.OwnerID = &owner

	thesis, err := f.svc.Upload(context.Background(), in)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if thesis.ID == 0 {
		t.Fatalf("expected id to be assigned")
	}
	if thesis.Title != "Consensus Revisited" {
		t.Fatalf("unexpected title %q", thesis.Title)
	}
	if thesis.Summary == nil || *thesis.Summary != "A study of consensus." {
		t.Fatalf("unexpected summary %v", thesis.Summary)
	}
	if thesis.Content != f.extractor.text {
		t.Fatalf("content should be the full extracted text, got %q", thesis.Content)
	}
	if thesis.UserID == nil || *thesis.UserID != owner {
		t.Fatalf("expected owner %d, got %v", owner, thesis.UserID)
	}
	if thesis.PageCount != 42 {
		t.Fatalf("expected 42 pages, got %d", thesis.PageCount)
	}
	if !strings.HasPrefix(thesis.FilePath, "theses/") || !strings.HasSuffix(thesis.FilePath, "_my_thesis.pdf") {
		t.Fatalf("unexpected file path %q", thesis.FilePath)
	}

	stored, err := os.ReadFile(filepath.Join(f.dir, filepath.FromSlash(thesis.FilePath)))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if !bytes.Equal(stored, samplePDF) {
		t.Fatalf("stored bytes differ from upload")
	}
	if f.analyzer.calls != 3 {
		t.Fatalf("expected 3 analyzer calls, got %d", f.analyzer.calls)
	}
}

func TestUploadValidationHasNoSideEffects(t *testing.T) {
	tests := []struct {
		name  string
		input UploadInput
	}{
		{name: "missing file", input: UploadInput{FileName: "a.pdf"}},
		{name: "not a pdf", input: upload([]byte("just some plain text"), "a.pdf")},
		{name: "declared too large", input: UploadInput{FileName: "a.pdf", Size: 10<<20 + 1, Content: bytes.NewReader(samplePDF)}},
		{name: "body too large", input: UploadInput{FileName: "a.pdf", Size: 10, Content: bytes.NewReader(append(append([]byte{}, samplePDF...), make([]byte, 10<<20)...))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, ThesisServiceConfig{})
			_, err := f.svc.Upload(context.Background(), tt.input)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if files := f.storedFiles(t); len(files) != 0 {
				t.Fatalf("expected nothing stored, got %v", files)
			}
			if len(f.repo.items) != 0 || f.analyzer.calls != 0 {
				t.Fatalf("validation failure must not reach repository or analyzer")
			}
		})
	}
}

func TestUploadAcceptsExactlyMaxBytes(t *testing.T) {
	f := newFixture(t, ThesisServiceConfig{})
	data := make([]byte, 10<<20)
	copy(data, samplePDF)

	if _, err := f.svc.Upload(context.Background(), upload(data, "big.pdf")); err != nil {
		t.Fatalf("expected a 10 MiB upload to be accepted, got %v", err)
	}
}

func TestUploadEmptyTextReleasesStoredFile(t *testing.T) {
	f := newFixture(t, ThesisServiceConfig{})
	f.extractor.text = " \n\t "

	_, err := f.svc.Upload(context.Background(), upload(samplePDF, "scan.pdf"))
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if f.analyzer.calls != 0 {
		t.Fatalf("analyzer must not be called for empty text")
	}
	if files := f.storedFiles(t); len(files) != 0 {
		t.Fatalf("expected orphaned file to be deleted, got %v", files)
	}
}

func TestUploadExtractionFailureCountsAsEmpty(t *testing.T) {
	f := newFixture(t, ThesisServiceConfig{})
	f.extractor.err = errors.New("malformed xref")

	_, err := f.svc.Upload(context.Background(), upload(samplePDF, "broken.pdf"))
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestUploadNotAThesisCarriesVerdict(t *testing.T) {
	f := newFixture(t, ThesisServiceConfig{})
	collector := &fakeCollector{}
	f.svc.orphans = collector
	f.analyzer.verdict = "No, this is a Recipe"

	_, err := f.svc.Upload(context.Background(), upload(samplePDF, "cake.pdf"))
	var notThesis *NotAThesisError
	if !errors.As(err, &notThesis) {
		t.Fatalf("expected NotAThesisError, got %v", err)
	}
	if notThesis.AIResponse != "no, this is a recipe" {
		t.Fatalf("unexpected ai response %q", notThesis.AIResponse)
	}
	if !errors.Is(err, ErrNotAThesis) {
		t.Fatalf("expected errors.Is ErrNotAThesis")
	}
	if len(f.repo.items) != 0 {
		t.Fatalf("no record should be created")
	}
	if f.analyzer.calls != 1 {
		t.Fatalf("only the classifier should run, got %d calls", f.analyzer.calls)
	}
	if len(collector.keys) != 1 || !strings.HasPrefix(collector.keys[0], "theses/") {
		t.Fatalf("expected stored key to be collected, got %v", collector.keys)
	}
}

func TestUploadFallsBackToInlineDeleteWhenCollectorFails(t *testing.T) {
	f := newFixture(t, ThesisServiceConfig{})
	f.svc.orphans = &fakeCollector{err: errors.New("channel closed")}
	f.repo.createErr = errors.New("connection refused")

	_, err := f.svc.Upload(context.Background(), upload(samplePDF, "a.pdf"))
	if err == nil || errors.Is(err, ErrValidation) || errors.Is(err, ErrStorage) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if files := f.storedFiles(t); len(files) != 0 {
		t.Fatalf("expected inline delete, got %v", files)
	}
}

func TestUploadStorageFailure(t *testing.T) {
	f := newFixture(t, ThesisServiceConfig{})
	f.svc.store = failingStore{FileStore: f.store}

	_, err := f.svc.Upload(context.Background(), upload(samplePDF, "a.pdf"))
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if len(f.repo.items) != 0 || f.analyzer.calls != 0 {
		t.Fatalf("storage failure must stop the pipeline")
	}
}

func TestUploadTrimsPromptPayload(t *testing.T) {
	f := newFixture(t, ThesisServiceConfig{})
	f.extractor.text = strings.Repeat("é", 5000)

	thesis, err := f.svc.Upload(context.Background(), upload(samplePDF, "long.pdf"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	for _, p := range f.analyzer.payloads {
		if n := utf8.RuneCountInString(p); n != 3000 {
			t.Fatalf("expected 3000-character payload, got %d", n)
		}
	}
	if utf8.RuneCountInString(thesis.Content) != 5000 {
		t.Fatalf("content must keep the full text")
	}
}

func TestUploadTitleDefaultsAndTruncation(t *testing.T) {
	f := newFixture(t, ThesisServiceConfig{})
	f.analyzer.title = "   "
	f.analyzer.summary = ""

	thesis, err := f.svc.Upload(context.Background(), upload(samplePDF, "a.pdf"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if thesis.Title != ai.DefaultTitle || *thesis.Summary != ai.DefaultSummary {
		t.Fatalf("expected defaults, got %q / %q", thesis.Title, *thesis.Summary)
	}

	f.analyzer.title = strings.Repeat("t", 400)
	thesis, err = f.svc.Upload(context.Background(), upload(samplePDF, "b.pdf"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if utf8.RuneCountInString(thesis.Title) != model.MaxThesisTitleLength {
		t.Fatalf("expected title truncated to %d, got %d", model.MaxThesisTitleLength, len(thesis.Title))
	}
}

func TestUploadAnonymousOwner(t *testing.T) {
	f := newFixture(t, ThesisServiceConfig{AnonymousOwnerID: 9})
	thesis, err := f.svc.Upload(context.Background(), upload(samplePDF, "a.pdf"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if thesis.UserID == nil || *thesis.UserID != 9 {
		t.Fatalf("expected configured anonymous owner, got %v", thesis.UserID)
	}

	f = newFixture(t, ThesisServiceConfig{})
	thesis, err = f.svc.Upload(context.Background(), upload(samplePDF, "a.pdf"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if thesis.UserID != nil {
		t.Fatalf("expected NULL owner, got %d", *thesis.UserID)
	}
}

func TestListScopesAndSearch(t *testing.T) {
	f := newFixture(t, ThesisServiceConfig{})
	ctx := context.Background()
	alice, bob := uint(1), uint(2)

	for _, owner := range []*uint{&alice, &bob, &alice} {
		in := upload(samplePDF, "a.pdf")
		in.OwnerID = owner
		if _, err := f.svc.Upload(ctx, in); err != nil {
			t.Fatalf("Upload: %v", err)
		}
	}

	all, err := f.svc.List(ctx, nil, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("guest list: %d, %v", len(all), err)
	}
	if all[0].ID != 3 {
		t.Fatalf("expected newest first, got id %d", all[0].ID)
	}

	mine, err := f.svc.List(ctx, &alice, "")
	if err != nil || len(mine) != 2 {
		t.Fatalf("owner list: %d, %v", len(mine), err)
	}

	again, _ := f.svc.List(ctx, &alice, "")
	if len(again) != len(mine) || again[0].ID != mine[0].ID {
		t.Fatalf("listing twice without uploads should be stable")
	}

	none, err := f.svc.List(ctx, &bob, "no such title")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil result, got %v", none)
	}
	if len(f.repo.searches) != 1 || f.repo.searches[0] != "no such title" {
		t.Fatalf("expected search to reach repository, got %v", f.repo.searches)
	}
}

type memoryListCache struct {
	entries     map[string][]model.Thesis
	invalidated int
}

func (c *memoryListCache) key(ownerID *uint) string {
	if ownerID == nil {
		return "all"
	}
	return string(rune('0' + *ownerID))
}

func (c *memoryListCache) Get(ctx context.Context, ownerID *uint) ([]model.Thesis, bool, error) {
	v, ok := c.entries[c.key(ownerID)]
	return v, ok, nil
}

func (c *memoryListCache) Set(ctx context.Context, ownerID *uint, theses []model.Thesis) error {
	c.entries[c.key(ownerID)] = theses
	return nil
}

func (c *memoryListCache) Invalidate(ctx context.Context, ownerID *uint) error {
	c.invalidated++
	c.entries = map[string][]model.Thesis{}
	return nil
}

func TestListUsesCacheUntilUpload(t *testing.T) {
	f := newFixture(t, ThesisServiceConfig{})
	cache := &memoryListCache{entries: map[string][]model.Thesis{}}
	f.svc.cache = cache
	ctx := context.Background()

	if _, err := f.svc.List(ctx, nil, ""); err != nil {
		t.Fatalf("List: %v", err)
	}
	if _, err := f.svc.List(ctx, nil, ""); err != nil {
		t.Fatalf("List: %v", err)
	}
	if f.repo.lists != 1 {
		t.Fatalf("second list should be served from cache, repo hit %d times", f.repo.lists)
	}

	if _, err := f.svc.Upload(ctx, upload(samplePDF, "a.pdf")); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if cache.invalidated != 1 {
		t.Fatalf("upload should invalidate the cache")
	}
	list, _ := f.svc.List(ctx, nil, "")
	if len(list) != 1 {
		t.Fatalf("expected fresh list after upload, got %d", len(list))
	}
}

func TestDownloadRoundTrip(t *testing.T) {
	f := newFixture(t, ThesisServiceConfig{})
	ctx := context.Background()

	thesis, err := f.svc.Upload(ctx, upload(samplePDF, "a.pdf"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	dl, err := f.svc.Download(ctx, thesis.ID)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer dl.Body.Close()
	body, _ := io.ReadAll(dl.Body)
	if !bytes.Equal(body, samplePDF) {
		t.Fatalf("downloaded bytes differ from upload")
	}
	if dl.FileName != "Consensus Revisited.pdf" {
		t.Fatalf("unexpected file name %q", dl.FileName)
	}
}

func TestDownloadNotFound(t *testing.T) {
	f := newFixture(t, ThesisServiceConfig{})
	ctx := context.Background()

	if _, err := f.svc.Download(ctx, 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}

	thesis, err := f.svc.Upload(ctx, upload(samplePDF, "a.pdf"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := os.Remove(filepath.Join(f.dir, filepath.FromSlash(thesis.FilePath))); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := f.svc.Download(ctx, thesis.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing file, got %v", err)
	}
}

type existsCountingStore struct {
	storage.FileStore
	checks    int
	existsErr error
}

func (s *existsCountingStore) Exists(ctx context.Context, key string) (bool, error) {
	s.checks++
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.FileStore.Exists(ctx, key)
}

func TestDownloadChecksStoredObjectFirst(t *testing.T) {
	f := newFixture(t, ThesisServiceConfig{})
	ctx := context.Background()

	thesis, err := f.svc.Upload(ctx, upload(samplePDF, "a.pdf"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	counting := &existsCountingStore{FileStore: f.store}
	f.svc.store = counting
	dl, err := f.svc.Download(ctx, thesis.ID)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	dl.Body.Close()
	if counting.checks != 1 {
		t.Fatalf("expected one existence check, got %d", counting.checks)
	}

	counting.existsErr = errors.New("permission denied")
	_, err = f.svc.Download(ctx, thesis.ID)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected internal error when the store cannot be checked, got %v", err)
	}
}
