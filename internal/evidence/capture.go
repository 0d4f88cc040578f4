// Package evidence writes failure bundles for sessions that went wrong.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/flightscout/internal/config"
	"github.com/xkilldash9x/flightscout/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	screenshotFile = "screenshot.png"
	domFile        = "page.html"
	metadataFile   = "error.json"
)

// Metadata is the error.json document of a bundle.
type Metadata struct {
	SessionID  string    `json:"session_id"`
	CapturedAt time.Time `json:"captured_at"`
	StartedAt  time.Time `json:"started_at"`
	URL        string    `json:"url,omitempty"`
	Title      string    `json:"title,omitempty"`
	Error      string    `json:"error"`
	ErrorType  string    `json:"error_type"`
	Files      []string  `json:"files"`
	Problems   []string  `json:"problems,omitempty"`
}

// FileCapturer stores a screenshot, the DOM and error metadata per failed session.
type FileCapturer struct {
	dir        string
	captureDOM bool
	logger     *zap.Logger
	now        func() time.Time
}

var _ session.EvidenceHook = (*FileCapturer)(nil)

// NewFileCapturer resolves the evidence directory, expanding a leading ~.
func NewFileCapturer(cfg config.EvidenceConfig, logger *zap.Logger) (*FileCapturer, error) {
	dir, err := homedir.Expand(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("expanding evidence dir %q: %w", cfg.Dir, err)
	}
	return &FileCapturer{
		dir:        dir,
		captureDOM: cfg.CaptureDOM,
		logger:     logger.Named("evidence"),
		now:        time.Now,
	}, nil
}

// Dir is the resolved root directory.
func (c *FileCapturer) Dir() string { return c.dir }

// BundleDir is where the bundle for s is written.
func (c *FileCapturer) BundleDir(s *session.Session, at time.Time) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s-%s", at.UTC().Format("20060102T150405Z"), s.ID()))
}

// Capture reads the page first and then writes every file concurrently.
// A failed screenshot or DOM read is noted in the metadata and still returned.
func (c *FileCapturer) Capture(ctx context.Context, s *session.Session, cause error) error {
	at := c.now()
	bundle := c.BundleDir(s, at)
	page := s.Page()

	meta := Metadata{
		SessionID:  s.ID(),
		CapturedAt: at.UTC(),
		StartedAt:  s.StartedAt().UTC(),
		Error:      errString(cause),
		ErrorType:  fmt.Sprintf("%T", cause),
	}
	var problems []error

	shot, err := page.Screenshot(ctx)
	if err != nil {
		problems = append(problems, fmt.Errorf("screenshot: %w", err))
	}
	var dom string
	if c.captureDOM {
		if dom, err = page.HTML(ctx); err != nil {
			problems = append(problems, fmt.Errorf("dom: %w", err))
		} else {
			meta.Title = documentTitle(dom)
		}
	}
	if url, err := page.URL(ctx); err == nil {
		meta.URL = url
	}

	if err := os.MkdirAll(bundle, 0o755); err != nil {
		return errors.Join(append(problems, fmt.Errorf("creating %s: %w", bundle, err))...)
	}

	files := map[string][]byte{}
	if len(shot) > 0 {
		files[screenshotFile] = shot
	}
	if dom != "" {
		files[domFile] = []byte(dom)
	}
	for name := range files {
		meta.Files = append(meta.Files, name)
	}
	sort.Strings(meta.Files)
	meta.Files = append(meta.Files, metadataFile)
	for _, p := range problems {
		meta.Problems = append(meta.Problems, p.Error())
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		problems = append(problems, fmt.Errorf("encoding metadata: %w", err))
	} else {
		files[metadataFile] = metaBytes
	}

	var g errgroup.Group
	for name, data := range files {
		path := filepath.Join(bundle, name)
		g.Go(func() error {
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		problems = append(problems, err)
	}

	c.logger.Info("Failure evidence captured.",
		zap.String("bundle", bundle),
		zap.Strings("files", meta.Files),
		zap.Int("problems", len(problems)))
	return errors.Join(problems...)
}

// documentTitle returns the <title> of an HTML document, or "" when it has none.
func documentTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("head title").First().Text())
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
