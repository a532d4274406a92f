package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"cloudpdf/internal/ai"
	"cloudpdf/internal/model"
	"cloudpdf/internal/storage"
)

const (
	thesisDir        = "theses"
	maxKeyAttempts   = 3
	cleanupTimeout   = 5 * time.Second
	defaultMaxBytes  = 10 << 20
	defaultPromptLen = 3000
)

type ThesisStore interface {
	Create(ctx context.Context, thesis *model.Thesis) error
	ListAll(ctx context.Context) ([]model.Thesis, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]model.Thesis, error)
	Search(ctx context.Context, ownerID *uint, query string) ([]model.Thesis, error)
	FindByID(ctx context.Context, id uint) (*model.Thesis, error)
}

type TextExtractor interface {
	Extract(ctx context.Context, r io.Reader) (string, error)
	PageCount(ctx context.Context, data []byte) (int, error)
}

type ThesisAnalyzer interface {
	Classify(ctx context.Context, payload string) (string, error)
	Summarize(ctx context.Context, payload string) (string, error)
	Title(ctx context.Context, payload string) (string, error)
}

type ThesisListCache interface {
	Get(ctx context.Context, ownerID *uint) ([]model.Thesis, bool, error)
	Set(ctx context.Context, ownerID *uint, theses []model.Thesis) error
	Invalidate(ctx context.Context, ownerID *uint) error
}

// OrphanCollector takes ownership of a stored key whose upload failed
// after the file was written.
type OrphanCollector interface {
	Collect(ctx context.Context, key, reason string) error
}

type ThesisServiceConfig struct {
	MaxBytes         int64
	PromptChars      int
	AnonymousOwnerID uint
}

type ThesisDeps struct {
	Repo      ThesisStore
	Store     storage.FileStore
	Extractor TextExtractor
	Analyzer  ThesisAnalyzer
	Cache     ThesisListCache
	Orphans   OrphanCollector
	Logger    logrus.FieldLogger
}

type ThesisService struct {
	repo      ThesisStore
	store     storage.FileStore
	extractor TextExtractor
	analyzer  ThesisAnalyzer
	cache     ThesisListCache
	orphans   OrphanCollector
	log       logrus.FieldLogger
	cfg       ThesisServiceConfig
	now       func() time.Time
}

type UploadInput struct {
	FileName string
	Size     int64
	Content  io.Reader
	OwnerID  *uint
}

// Download is an open stored file. The caller closes Body.
type Download struct {
	Thesis   *model.Thesis
	FileName string
	Body     io.ReadCloser
}

func NewThesisService(deps ThesisDeps, cfg ThesisServiceConfig) *ThesisService {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.PromptChars <= 0 {
		cfg.PromptChars = defaultPromptLen
	}
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ThesisService{
		repo:      deps.Repo,
		store:     deps.Store,
		extractor: deps.Extractor,
		analyzer:  deps.Analyzer,
		cache:     deps.Cache,
		orphans:   deps.Orphans,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Upload runs validate, store, extract, classify, describe and persist in
// that order. Nothing is stored when validation fails, and a stored file is
// released when any later step fails.
func (s *ThesisService) Upload(ctx context.Context, input UploadInput) (*model.Thesis, error) {
	data, err := s.readValid(input)
	if err != nil {
		return nil, err
	}

	key, err := s.save(ctx, input.FileName, data)
	if err != nil {
		return nil, err
	}

	thesis, err := s.process(ctx, key, data, input.OwnerID)
	if err != nil {
		s.release(ctx, key, err)
		return nil, err
	}
	return thesis, nil
}

func (s *ThesisService) readValid(input UploadInput) ([]byte, error) {
	if input.Content == nil || strings.TrimSpace(input.FileName) == "" {
		return nil, &ValidationError{Message: "The pdf field is required."}
	}
	tooLarge := &ValidationError{
		Message: fmt.Sprintf("The pdf must not be greater than %d kilobytes.", s.cfg.MaxBytes/1024),
	}
	if input.Size > s.cfg.MaxBytes {
		return nil, tooLarge
	}

	// The declared size comes from the client, so the read is bounded too.
	data, err := io.ReadAll(io.LimitReader(input.Content, s.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload failed: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxBytes {
		return nil, tooLarge
	}
	if len(data) == 0 {
		return nil, &ValidationError{Message: "The pdf field is required."}
	}
	if !mimetype.Detect(data).Is("application/pdf") {
		return nil, &ValidationError{Message: "The pdf must be a file of type: pdf."}
	}
	return data, nil
}

func (s *ThesisService) save(ctx context.Context, fileName string, data []byte) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key, err := storage.NewKey(thesisDir, fileName, s.now())
		if err != nil {
			return "", &ValidationError{Message: "The pdf field is required."}
		}
		_, err = s.store.Save(ctx, key, bytes.NewReader(data))
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, storage.ErrExists) {
			return "", fmt.Errorf("%w: %v", ErrStorage, err)
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w: %v", ErrStorage, lastErr)
}

func (s *ThesisService) process(ctx context.Context, key string, data []byte, callerID *uint) (*model.Thesis, error) {
	log := s.log.WithField("file_path", key)

	text := s.extractText(ctx, key, log)
	pageCount, err := s.extractor.PageCount(ctx, data)
	if err != nil {
		log.WithError(err).Warn("count pdf pages failed")
		pageCount = 0
	}

	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyContent
	}

	payload := truncateRunes(text, s.cfg.PromptChars)

	verdict, err := s.analyzer.Classify(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("classify thesis failed: %w", err)
	}
	if !ai.IsThesisVerdict(verdict) {
		return nil, &NotAThesisError{AIResponse: verdict}
	}

	var summary, title string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := s.analyzer.Summarize(gctx, payload)
		if err != nil {
			return fmt.Errorf("summarize thesis failed: %w", err)
		}
		summary = out
		return nil
	})
	g.Go(func() error {
		out, err := s.analyzer.Title(gctx, payload)
		if err != nil {
			return fmt.Errorf("generate title failed: %w", err)
		}
		title = out
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = ai.DefaultTitle
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		summary = ai.DefaultSummary
	}

	thesis := &model.Thesis{
		UserID:    s.ownerFor(callerID),
		Title:     truncateRunes(title, model.MaxThesisTitleLength),
		Summary:   &summary,
		Content:   text,
		FilePath:  key,
		PageCount: pageCount,
	}
	if err := s.repo.Create(ctx, thesis); err != nil {
		return nil, fmt.Errorf("create thesis failed: %w", err)
	}

	s.invalidate(ctx, thesis.UserID)
	log.WithFields(logrus.Fields{"thesis_id": thesis.ID, "pages": pageCount}).Info("thesis stored")
	return thesis, nil
}

// extractText reads the stored copy back so the record reflects exactly what
// was persisted. Failures degrade to empty text.
func (s *ThesisService) extractText(ctx context.Context, key string, log logrus.FieldLogger) string {
	rc, err := s.store.Open(ctx, key)
	if err != nil {
		log.WithError(err).Error("open stored pdf failed")
		return ""
	}
	defer rc.Close()

	text, err := s.extractor.Extract(ctx, rc)
	if err != nil {
		log.WithError(err).Error("pdf text extraction failed")
		return ""
	}
	return text
}

func (s *ThesisService) ownerFor(callerID *uint) *uint {
	if callerID != nil && *callerID != 0 {
		id := *callerID
		return &id
	}
	if s.cfg.AnonymousOwnerID != 0 {
		id := s.cfg.AnonymousOwnerID
		return &id
	}
	return nil
}

func (s *ThesisService) invalidate(ctx context.Context, ownerID *uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, ownerID); err != nil {
		s.log.WithError(err).Warn("invalidate thesis list cache failed")
	}
}

func (s *ThesisService) release(ctx context.Context, key string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	log := s.log.WithFields(logrus.Fields{"file_path": key, "reason": cause.Error()})
	if s.orphans != nil {
		err := s.orphans.Collect(ctx, key, cause.Error())
		if err == nil {
			return
		}
		log.WithError(err).Warn("queue orphaned file failed, deleting inline")
	}
	if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.WithError(err).Error("delete orphaned file failed")
	}
}

// List returns records newest first. A blank query lists everything visible
// to the caller: all records for guests, the caller's own otherwise.
func (s *ThesisService) List(ctx context.Context, ownerID *uint, query string) ([]model.Thesis, error) {
	if q := strings.TrimSpace(query); q != "" {
		theses, err := s.repo.Search(ctx, ownerID, q)
		if err != nil {
			return nil, fmt.Errorf("search theses failed: %w", err)
		}
		return nonNil(theses), nil
	}

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, ownerID)
		if err != nil {
			s.log.WithError(err).Warn("read thesis list cache failed")
		} else if ok {
			return nonNil(cached), nil
		}
	}

	var (
		theses []model.Thesis
		err    error
	)
	if ownerID == nil {
		theses, err = s.repo.ListAll(ctx)
	} else {
		theses, err = s.repo.ListByOwner(ctx, *ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list theses failed: %w", err)
	}
	theses = nonNil(theses)

	if s.cache != nil {
		if err := s.cache.Set(ctx, ownerID, theses); err != nil {
			s.log.WithError(err).Warn("write thesis list cache failed")
		}
	}
	return theses, nil
}

func (s *ThesisService) Download(ctx context.Context, id uint) (*Download, error) {
	thesis, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find thesis failed: %w", err)
	}
	if thesis == nil {
		return nil, ErrNotFound
	}

	exists, err := s.store.Exists(ctx, thesis.FilePath)
	if errors.Is(err, storage.ErrInvalidKey) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stat stored pdf failed: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	// The object can still vanish between the check and the open.
	body, err := s.store.Open(ctx, thesis.FilePath)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open stored pdf failed: %w", err)
	}

	return &Download{
		Thesis:   thesis,
		FileName: thesis.Title + ".pdf",
		Body:     body,
	}, nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func nonNil(theses []model.Thesis) []model.Thesis {
	if theses == nil {
		return []model.Thesis{}
	}
	return theses
}
