package document_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/expenseflow/internal"
	"github.com/frahmantamala/expenseflow/internal/core/database"
	"github.com/frahmantamala/expenseflow/internal/document"
	documentPostgres "github.com/frahmantamala/expenseflow/internal/document/postgres"
	"github.com/frahmantamala/expenseflow/internal/ocr"
	"github.com/frahmantamala/expenseflow/internal/storage"
	"github.com/frahmantamala/expenseflow/internal/transport"
)

type documentEnvelope struct {
	Success bool              `json:"success"`
	Data    document.Document `json:"data"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
}

func multipartBody(field, filename string, data []byte, extra map[string]string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		Expect(err).NotTo(HaveOccurred())
		_, _ = part.Write(data)
	}
	for k, v := range extra {
		Expect(mw.WriteField(k, v)).To(Succeed())
	}
	Expect(mw.Close()).To(Succeed())
	return body, mw.FormDataContentType()
}

var _ = Describe("Document Handler", func() {
	var router *chi.Mux

	withUser := func(id int64) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := internal.ContextWithUser(r.Context(), &internal.User{ID: id, Email: "u@example.com"})
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		}
	}

	BeforeEach(func() {
		db, err := database.OpenInMemory()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = database.Close(db) })

		service := document.NewService(
			documentPostgres.NewDocumentRepository(db),
			storage.NewMemoryStore(),
			ocr.NewMockExtractor("USD"),
			document.Options{MaxUploadBytes: 4096, DefaultCurrency: "USD"},
			quietLogger(),
		)
		handler := document.NewHandler(transport.NewBaseHandler(quietLogger()), service)

		router = chi.NewRouter()
		router.Use(withUser(5))
		router.Post("/documents/upload", handler.Upload)
		router.Get("/documents", handler.ListDocuments)
		router.Get("/documents/{id}", handler.GetDocument)
		router.Get("/documents/{id}/file", handler.GetDocumentFile)
		router.Post("/documents/{id}/process", handler.ProcessDocument)
	})

	upload := func(body *bytes.Buffer, contentType string) (*httptest.ResponseRecorder, documentEnvelope) {
		req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		var env documentEnvelope
		_ = json.Unmarshal(w.Body.Bytes(), &env)
		return w, env
	}

	It("uploads and extracts a receipt", func() {
		body, ct := multipartBody("file", "receipt.png", pngBytes, nil)
		w, env := upload(body, ct)

		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(env.Success).To(BeTrue())
		Expect(env.Data.ID).NotTo(BeEmpty())
		Expect(env.Data.Status).To(Equal(document.StatusProcessed))
		Expect(env.Data.Extracted.Amount.IsNegative()).To(BeFalse())
		Expect(env.Data.Extracted.Source).To(Equal(ocr.SourceMock))
	})

	It("defers extraction with process=false, then processes once", func() {
		body, ct := multipartBody("file", "invoice.pdf", pdfBytes, map[string]string{"process": "false"})
		w, env := upload(body, ct)
		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(env.Data.Status).To(Equal(document.StatusUploaded))

		req := httptest.NewRequest(http.MethodPost, "/documents/"+env.Data.ID+"/process", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusOK))

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/documents/"+env.Data.ID+"/process", nil))
		Expect(rec.Code).To(Equal(http.StatusConflict))
		Expect(rec.Body.String()).To(ContainSubstring("DOCUMENT_ALREADY_PROCESSED"))
	})

	It("answers 400 without a file", func() {
		body, ct := multipartBody("", "", nil, map[string]string{"note": "x"})
		w, env := upload(body, ct)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(env.Error.Code).To(Equal("INVALID_FILE"))
	})

	It("answers 413 for oversized files", func() {
		big := append(append([]byte{}, pngBytes...), make([]byte, 8192)...)
		body, ct := multipartBody("file", "big.png", big, nil)
		w, env := upload(body, ct)
		Expect(w.Code).To(Equal(http.StatusRequestEntityTooLarge))
		Expect(env.Error.Code).To(Equal("FILE_TOO_LARGE"))
	})

	It("answers 415 for unreadable formats", func() {
		body, ct := multipartBody("file", "notes.txt", []byte("plain text"), nil)
		w, _ := upload(body, ct)
		Expect(w.Code).To(Equal(http.StatusUnsupportedMediaType))
	})

	It("streams the file back with its content type", func() {
		body, ct := multipartBody("file", "invoice.pdf", pdfBytes, map[string]string{"process": "false"})
		_, env := upload(body, ct)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/"+env.Data.ID+"/file", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Content-Type")).To(Equal("application/pdf"))
		Expect(rec.Body.Bytes()).To(Equal(pdfBytes))
	})

	It("encodes non-ASCII filenames in the content disposition", func() {
		body, ct := multipartBody("file", "reçu \"mars\".pdf", pdfBytes, map[string]string{"process": "false"})
		_, env := upload(body, ct)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/"+env.Data.ID+"/file", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))

		disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
		Expect(err).NotTo(HaveOccurred())
		Expect(disposition).To(Equal("inline"))
		Expect(params["filename"]).To(Equal("reçu \"mars\".pdf"))
	})

	It("lists documents with page meta", func() {
		body, ct := multipartBody("file", "a.png", pngBytes, nil)
		_, _ = upload(body, ct)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents?limit=5", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))

		var env struct {
			Data document.DocumentsResponse `json:"data"`
			Meta transport.PageMeta         `json:"meta"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &env)).To(Succeed())
		Expect(env.Data.Documents).To(HaveLen(1))
		Expect(env.Meta.Total).To(Equal(int64(1)))
		Expect(env.Meta.Limit).To(Equal(5))
	})

	It("answers 404 for unknown ids", func() {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/3f1c1f43-2f0a-4d4e-9d55-1b5a2d2f0c11", nil))
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("requires a user in the context", func() {
		bare := chi.NewRouter()
		handler := document.NewHandler(transport.NewBaseHandler(quietLogger()), nil)
		bare.Get("/documents", handler.ListDocuments)

		rec := httptest.NewRecorder()
		bare.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents", nil).WithContext(context.Background()))
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})
})
