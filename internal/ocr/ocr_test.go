package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

func TestOCR(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "OCR Suite")
}

var pngInput = Input{Filename: "receipt.png", ContentType: "image/png", Data: []byte("fake-png")}

const sampleReceipt = `
  Corner Bistro
  123 Main Street
  Date: 03/15/2024
  Burger            12.50
  Fries              4.00
  Subtotal          16.50
  Tax                1.32
  TOTAL USD         17.82
`

type stubExtractor struct {
	name   string
	fields *Fields
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) Extract(ctx context.Context, _ Input) (*Fields, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.fields, s.err
}

var _ = Describe("ParseReceiptText", func() {
	It("reads merchant, total line, date and currency", func() {
		fields := ParseReceiptText(sampleReceipt)

		Expect(fields.Merchant).To(Equal("Corner Bistro"))
		Expect(fields.Amount.String()).To(Equal("17.82"))
		Expect(fields.Currency).To(Equal("USD"))
		Expect(fields.Date).NotTo(BeNil())
		Expect(fields.Date.Format("2006-01-02")).To(Equal("2024-03-15"))
	})

	It("falls back to the largest amount without a total line", func() {
		fields := ParseReceiptText("Hardware Store\n2 x screws 3.20\nhammer 1,024.99\n")
		Expect(fields.Amount.String()).To(Equal("1024.99"))
		Expect(fields.Currency).To(BeEmpty())
	})

	It("does not mistake dotted dates for amounts", func() {
		fields := ParseReceiptText("Bäckerei\n15.03.2024\nSumme 3,40 €\n")
		Expect(fields.Amount.String()).To(Equal("3.4"))
		Expect(fields.Date.Format("2006-01-02")).To(Equal("2024-03-15"))
		Expect(fields.Currency).To(Equal("EUR"))
	})

	It("reads day first dates when the month is out of range", func() {
		fields := ParseReceiptText("Shop\n25/12/2023\n")
		Expect(fields.Date.Format("2006-01-02")).To(Equal("2023-12-25"))
	})
})

var _ = Describe("Run", func() {
	It("returns placeholder fields and the error on failure", func() {
		failing := &stubExtractor{name: "x", err: errors.New("boom")}

		fields, err := Run(context.Background(), failing, pngInput, "EUR")
		Expect(err).To(MatchError("boom"))
		Expect(fields.Source).To(Equal(SourcePlaceholder))
		Expect(fields.Amount.IsZero()).To(BeTrue())
		Expect(fields.Currency).To(Equal("EUR"))
		Expect(fields.Confidence).To(BeZero())
	})

	It("clamps negative amounts and out of range confidence", func() {
		ex := &stubExtractor{name: "x", fields: &Fields{
			Amount:     decimal.NewFromFloat(-5.129),
			Currency:   "usd",
			Confidence: 3,
			Source:     "x",
		}}

		fields, err := Run(context.Background(), ex, pngInput, "EUR")
		Expect(err).NotTo(HaveOccurred())
		Expect(fields.Amount.IsZero()).To(BeTrue())
		Expect(fields.Currency).To(Equal("USD"))
		Expect(fields.Confidence).To(Equal(1.0))
	})

	It("uses the default currency when none was recognized", func() {
		ex := &stubExtractor{name: "x", fields: &Fields{Amount: decimal.NewFromFloat(9.999)}}

		fields, _ := Run(context.Background(), ex, pngInput, "GBP")
		Expect(fields.Currency).To(Equal("GBP"))
		Expect(fields.Amount.String()).To(Equal("10"))
	})

	It("replaces currency codes that are not ISO 4217", func() {
		ex := &stubExtractor{name: "x", fields: &Fields{Currency: "zzz"}}

		fields, _ := Run(context.Background(), ex, pngInput, "GBP")
		Expect(fields.Currency).To(Equal("GBP"))
	})

	It("cuts long merchants on a rune boundary", func() {
		merchant := strings.Repeat("a", 254) + "é Café"
		ex := &stubExtractor{name: "x", fields: &Fields{Merchant: merchant}}

		fields, _ := Run(context.Background(), ex, pngInput, "USD")
		Expect(utf8.ValidString(fields.Merchant)).To(BeTrue())
		Expect(len(fields.Merchant)).To(BeNumerically("<=", maxMerchantBytes))
		Expect(fields.Merchant).To(Equal(strings.Repeat("a", 254)))
	})
})

var _ = Describe("MockExtractor", func() {
	It("returns fixed demo fields", func() {
		fields, err := NewMockExtractor("USD").Extract(context.Background(), pngInput)
		Expect(err).NotTo(HaveOccurred())
		Expect(fields.Source).To(Equal(SourceMock))
		Expect(fields.Amount.String()).To(Equal("42.5"))
		Expect(fields.Confidence).To(Equal(mockConfidence))
	})
})

var _ = Describe("OllamaExtractor", func() {
	var (
		server   *httptest.Server
		received generateRequest
		answer   string
		status   int
	)

	BeforeEach(func() {
		status = http.StatusOK
		answer = `{"merchant":"Blue Bottle","amount":"$8.75","currency":"usd","date":"2024-02-01","confidence":0.92}`
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/api/generate"))
			Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(generateResponse{Response: answer, Done: true})
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("sends the image to the model and parses its json answer", func() {
		ex := NewOllamaExtractor(server.URL+"/", "llava", nil)

		fields, err := ex.Extract(context.Background(), pngInput)
		Expect(err).NotTo(HaveOccurred())

		Expect(received.Model).To(Equal("llava"))
		Expect(received.Format).To(Equal("json"))
		Expect(received.Stream).To(BeFalse())
		Expect(received.Images).To(HaveLen(1))

		Expect(fields.Merchant).To(Equal("Blue Bottle"))
		Expect(fields.Amount.String()).To(Equal("8.75"))
		Expect(fields.Currency).To(Equal("usd"))
		Expect(fields.Confidence).To(Equal(0.92))
		Expect(fields.Date.Format("2006-01-02")).To(Equal("2024-02-01"))
	})

	It("defaults the confidence and tolerates nulls", func() {
		answer = `{"merchant":null,"amount":12,"currency":null,"date":null}`
		fields, err := NewOllamaExtractor(server.URL, "llava", nil).Extract(context.Background(), pngInput)
		Expect(err).NotTo(HaveOccurred())
		Expect(fields.Amount.String()).To(Equal("12"))
		Expect(fields.Confidence).To(Equal(defaultModelConfidence))
		Expect(fields.Date).To(BeNil())
	})

	It("fails on a non-json answer", func() {
		answer = "I think this is a receipt"
		_, err := NewOllamaExtractor(server.URL, "llava", nil).Extract(context.Background(), pngInput)
		Expect(err).To(HaveOccurred())
	})

	It("fails on a server error", func() {
		status = http.StatusInternalServerError
		_, err := NewOllamaExtractor(server.URL, "llava", nil).Extract(context.Background(), pngInput)
		Expect(err).To(MatchError(ContainSubstring("unexpected status 500")))
	})

	It("refuses pdfs", func() {
		_, err := NewOllamaExtractor(server.URL, "llava", nil).Extract(context.Background(),
			Input{ContentType: "application/pdf", Data: []byte("%PDF")})
		Expect(errors.Is(err, ErrUnsupportedContent)).To(BeTrue())
	})
})

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t0\t0\t10\t10\t90\tCorner\n" +
	"5\t1\t1\t1\t1\t2\t0\t0\t10\t10\t80\tBistro\n" +
	"5\t1\t1\t1\t2\t1\t0\t0\t10\t10\t70\tTotal\n" +
	"5\t1\t1\t1\t2\t2\t0\t0\t10\t10\t60\t9.99\n"

var _ = Describe("TesseractExtractor", func() {
	It("rebuilds lines and the mean confidence from tsv", func() {
		text, confidence := parseTSV(sampleTSV)
		Expect(text).To(Equal("Corner Bistro\nTotal 9.99"))
		Expect(confidence).To(BeNumerically("~", 0.75, 0.0001))
	})

	It("runs the binary over stdin", func() {
		if runtime.GOOS == "windows" {
			Skip("shell script fake needs a unix shell")
		}

		dir := GinkgoT().TempDir()
		fixture := filepath.Join(dir, "out.tsv")
		Expect(os.WriteFile(fixture, []byte(sampleTSV), 0o644)).To(Succeed())

		script := filepath.Join(dir, "tesseract")
		Expect(os.WriteFile(script, []byte("#!/bin/sh\ncat > /dev/null\ncat "+fixture+"\n"), 0o755)).To(Succeed())

		fields, err := NewTesseractExtractor(script, "eng").Extract(context.Background(), pngInput)
		Expect(err).NotTo(HaveOccurred())
		Expect(fields.Source).To(Equal(SourceTesseract))
		Expect(fields.Merchant).To(Equal("Corner Bistro"))
		Expect(fields.Amount.String()).To(Equal("9.99"))
		Expect(fields.Confidence).To(BeNumerically("~", 0.75, 0.0001))
	})

	It("fails when the binary is missing", func() {
		_, err := NewTesseractExtractor(filepath.Join(GinkgoT().TempDir(), "nope"), "").Extract(context.Background(), pngInput)
		Expect(err).To(HaveOccurred())
		Expect(strings.HasPrefix(err.Error(), "tesseract:")).To(BeTrue())
	})
})

var _ = Describe("Chain", func() {
	It("returns the first success", func() {
		first := &stubExtractor{name: "a", err: errors.New("down")}
		second := &stubExtractor{name: "b", fields: &Fields{Merchant: "ok"}}
		third := &stubExtractor{name: "c", fields: &Fields{Merchant: "unused"}}

		fields, err := NewChain(first, second, third).Extract(context.Background(), pngInput)
		Expect(err).NotTo(HaveOccurred())
		Expect(fields.Merchant).To(Equal("ok"))
		Expect(third.calls.Load()).To(BeZero())
	})

	It("joins every failure", func() {
		_, err := NewChain(
			&stubExtractor{name: "a", err: errors.New("first down")},
			&stubExtractor{name: "b", err: errors.New("second down")},
		).Extract(context.Background(), pngInput)
		Expect(err).To(MatchError(ContainSubstring("first down")))
		Expect(err).To(MatchError(ContainSubstring("second down")))
	})
})

var _ = Describe("Pool", func() {
	It("runs extractions on the workers", func() {
		ex := &stubExtractor{name: "stub", fields: &Fields{Merchant: "pooled"}}
		pool := NewPool(ex, PoolConfig{MaxWorkers: 2, QueueSize: 4}, nil)
		defer pool.Shutdown()

		fields, err := pool.Extract(context.Background(), pngInput)
		Expect(err).NotTo(HaveOccurred())
		Expect(fields.Merchant).To(Equal("pooled"))
		Expect(pool.Name()).To(Equal("stub"))
	})

	It("applies the per job timeout", func() {
		ex := &stubExtractor{name: "slow", delay: time.Second}
		pool := NewPool(ex, PoolConfig{MaxWorkers: 1, QueueSize: 1, JobTimeout: 20 * time.Millisecond}, nil)
		defer pool.Shutdown()

		_, err := pool.Extract(context.Background(), pngInput)
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
	})

	It("rejects jobs when the queue is full", func() {
		ex := &stubExtractor{name: "slow", delay: 500 * time.Millisecond}
		pool := NewPool(ex, PoolConfig{MaxWorkers: 1, QueueSize: 1}, nil)
		defer pool.Shutdown()

		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			go func() {
				_, err := pool.Extract(context.Background(), pngInput)
				errs <- err
			}()
		}

		var full int
		for i := 0; i < 8; i++ {
			if errors.Is(<-errs, ErrQueueFull) {
				full++
			}
		}
		Expect(full).To(BeNumerically(">=", 1))
	})

	It("refuses work after shutdown", func() {
		pool := NewPool(&stubExtractor{name: "stub", fields: &Fields{}}, PoolConfig{}, nil)
		pool.Shutdown()
		pool.Shutdown()

		_, err := pool.Extract(context.Background(), pngInput)
		Expect(err).To(MatchError(ErrPoolClosed))
	})
})
