package document

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/frahmantamala/expenseflow/internal"
	"github.com/frahmantamala/expenseflow/internal/core/events"
	"github.com/frahmantamala/expenseflow/internal/ocr"
	"github.com/frahmantamala/expenseflow/internal/storage"
)

type RepositoryAPI interface {
	Create(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, id string) (*Document, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*Document, int64, error)
	// SaveExtraction stores the result only while the document is still
	// uploaded and reports whether it did.
	SaveExtraction(ctx context.Context, id string, ex Extraction, extractionError *string, processedAt time.Time) (bool, error)
	// LinkExpense sets expense_id only when it is still empty.
	LinkExpense(ctx context.Context, id string, userID, expenseID int64) (bool, error)
}

type Options struct {
	MaxUploadBytes  int64
	DefaultCurrency string
}

type Service struct {
	repo      RepositoryAPI
	blobs     storage.BlobStore
	extractor ocr.Extractor
	opts      Options
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, blobs storage.BlobStore, extractor ocr.Extractor, opts Options, logger *slog.Logger) *Service {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "USD"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		blobs:     blobs,
		extractor: extractor,
		opts:      opts,
		logger:    logger,
	}
}

func (s *Service) MaxUploadBytes() int64 {
	return s.opts.MaxUploadBytes
}

// Upload validates and stores the file, then extracts its fields unless
// the caller deferred processing.
func (s *Service) Upload(ctx context.Context, userID int64, in UploadInput) (*Document, error) {
	if len(in.Data) == 0 {
		return nil, internal.ErrInvalidFile
	}
	if int64(len(in.Data)) > s.opts.MaxUploadBytes {
		return nil, internal.ErrFileTooLarge
	}

	mtype := mimetype.Detect(in.Data)
	contentType := baseType(mtype.String())
	if !AllowedContentTypes[contentType] {
		s.logger.Warn("upload rejected: unsupported content", "user_id", userID, "content_type", contentType)
		return nil, internal.ErrUnsupportedFileType.WithDetails(map[string]string{"content_type": contentType})
	}

	id := uuid.NewString()
	doc := &Document{
		ID:          id,
		UserID:      userID,
		Filename:    cleanFilename(in.Filename, mtype.Extension()),
		ContentType: contentType,
		SizeBytes:   int64(len(in.Data)),
		StorageKey:  id + mtype.Extension(),
		Status:      StatusUploaded,
		UploadedAt:  time.Now().UTC(),
	}

	if _, err := s.blobs.Put(ctx, doc.StorageKey, bytes.NewReader(in.Data)); err != nil {
		return nil, internal.NewInternalError("failed to store document", err)
	}

	if err := s.repo.Create(ctx, doc); err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), doc.StorageKey); delErr != nil {
			s.logger.Error("failed to remove orphaned blob", "storage_key", doc.StorageKey, "error", delErr)
		}
		return nil, internal.NewInternalError("failed to save document", err)
	}

	s.logger.Info("document uploaded",
		"document_id", doc.ID,
		"user_id", userID,
		"content_type", contentType,
		"size_bytes", doc.SizeBytes)

	if !in.Process {
		return doc, nil
	}
	return s.extract(ctx, doc, in.Data)
}

// Process runs extraction for a document that is still uploaded.
func (s *Service) Process(ctx context.Context, userID int64, id string) (*Document, error) {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if doc.IsProcessed() {
		return nil, internal.ErrDocumentAlreadyProcessed
	}

	data, err := s.blobs.ReadAll(ctx, doc.StorageKey)
	if err != nil {
		s.logger.Error("failed to read stored document", "document_id", id, "error", err)
		data = nil
	}
	return s.extract(ctx, doc, data)
}

// extract never fails on OCR problems: the placeholder fields and the
// error text are stored instead.
func (s *Service) extract(ctx context.Context, doc *Document, data []byte) (*Document, error) {
	var (
		fields ocr.Fields
		err    error
	)
	if len(data) == 0 {
		fields, err = ocr.Placeholder(s.opts.DefaultCurrency), errors.New("stored file is missing or empty")
	} else {
		fields, err = ocr.Run(ctx, s.extractor, ocr.Input{
			Filename:    doc.Filename,
			ContentType: doc.ContentType,
			Data:        data,
		}, s.opts.DefaultCurrency)
	}

	var extractionError *string
	if err != nil {
		msg := err.Error()
		extractionError = &msg
		s.logger.Warn("extraction failed, storing placeholder fields", "document_id", doc.ID, "error", err)
	}

	extraction := ExtractionFromFields(fields)
	processedAt := time.Now().UTC()

	// the request may be gone by now; the result is still recorded
	saved, saveErr := s.repo.SaveExtraction(context.WithoutCancel(ctx), doc.ID, extraction, extractionError, processedAt)
	if saveErr != nil {
		return nil, internal.NewInternalError("failed to save extraction", saveErr)
	}
	if !saved {
		return nil, internal.ErrDocumentAlreadyProcessed
	}

	doc.Status = StatusProcessed
	doc.Extracted = &extraction
	doc.ExtractionError = extractionError
	doc.ProcessedAt = &processedAt

	s.logger.Info("document processed",
		"document_id", doc.ID,
		"source", extraction.Source,
		"amount", extraction.Amount.StringFixed(2),
		"confidence", extraction.Confidence)

	return doc, nil
}

// Get returns the caller's document; other users' documents are reported
// as missing.
func (s *Service) Get(ctx context.Context, userID int64, id string) (*Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, internal.ErrDocumentNotFound
	}

	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to load document", err)
	}
	if doc == nil || doc.UserID != userID {
		return nil, internal.ErrDocumentNotFound
	}
	return doc, nil
}

func (s *Service) List(ctx context.Context, userID int64, limit, offset int) ([]*Document, int64, error) {
	docs, total, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, internal.NewInternalError("failed to list documents", err)
	}
	if docs == nil {
		docs = []*Document{}
	}
	return docs, total, nil
}

// OpenFile returns the stored bytes of the caller's document.
func (s *Service) OpenFile(ctx context.Context, userID int64, id string) (*Document, io.ReadCloser, error) {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.blobs.Open(ctx, doc.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, internal.ErrDocumentNotFound.WithMessage("Document file not found")
		}
		return nil, nil, internal.NewInternalError("failed to open document", err)
	}
	return doc, rc, nil
}

// PrepareLink checks that the caller may attach the document to a new
// expense and returns its extracted fields (nil when unprocessed).
func (s *Service) PrepareLink(ctx context.Context, userID int64, id string) (*ocr.Fields, error) {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if doc.IsLinked() {
		return nil, internal.ErrDocumentAlreadyLinked
	}
	return doc.Fields(), nil
}

// HandleExpenseSubmitted links the submitted expense's document.
func (s *Service) HandleExpenseSubmitted(ctx context.Context, event events.Event) error {
	submitted, ok := event.(*events.ExpenseSubmittedEvent)
	if !ok || submitted.DocumentID == "" {
		return nil
	}

	linked, err := s.repo.LinkExpense(ctx, submitted.DocumentID, submitted.UserID, submitted.ExpenseID)
	if err != nil {
		return internal.NewInternalError("failed to link document", err)
	}
	if !linked {
		return internal.ErrDocumentAlreadyLinked
	}

	s.logger.Info("document linked to expense",
		"document_id", submitted.DocumentID,
		"expense_id", submitted.ExpenseID)
	return nil
}

// Subscribe registers the service's event handlers on the bus.
func (s *Service) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeExpenseSubmitted, s.HandleExpenseSubmitted)
}

func baseType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.TrimSpace(contentType)
}

func cleanFilename(name, ext string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "upload" + ext
	}
	if len(name) > 255 {
		start := len(name) - 255
		for start < len(name) && !utf8.RuneStart(name[start]) {
			start++
		}
		name = name[start:]
	}
	return name
}
