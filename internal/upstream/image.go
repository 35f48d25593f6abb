package upstream

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relaylayer/llmcore/internal/model"
)

// MaxImageBytes is the §4.4.1 size bound on a fetched HTTP(S) image_url: a
// response whose body exceeds this is rejected rather than forwarded.
const MaxImageBytes = 5 * 1024 * 1024

const defaultImageFetchTimeout = 15 * time.Second

// ImageResolver fetches http(s) image_url sources, enforces the size bound,
// MIME-sniffs the body, and turns them into base64 sources in place —
// the step the Anthropic and Gemini converters assume has already run (the
// OpenAI converter forwards an unresolved URL as is).
// Grounded on the teacher's per-provider Request methods (internal/providers/*),
// which fetched their own inline attachments before building a request body.
type ImageResolver struct {
	client  *http.Client
	timeout time.Duration
}

// NewImageResolver builds a resolver with its own small client — image
// fetches are unauthenticated, unrelated to any provider instance, and
// shouldn't share the per-instance Executor's connection pool or timeouts.
func NewImageResolver(timeout time.Duration) *ImageResolver {
	if timeout <= 0 {
		timeout = defaultImageFetchTimeout
	}
	return &ImageResolver{
		client:  &http.Client{},
		timeout: timeout,
	}
}

// Resolve walks every message in req and replaces each http(s)
// model.ImageSourceURL block with a fetched, size-checked, MIME-sniffed
// model.ImageSourceBase64 block. data: URLs are left untouched — they were
// already decoded by the wire-shape parser. Resolution happens once per
// request, before the per-instance retry loop, since the image bytes don't
// depend on which instance eventually serves the request.
func (r *ImageResolver) Resolve(ctx context.Context, req *model.ChatRequest) error {
	for mi := range req.Messages {
		blocks := req.Messages[mi].Content.Blocks
		for bi := range blocks {
			b := &blocks[bi]
			if b.Kind != model.BlockImage || b.Image.Kind != model.ImageSourceURL {
				continue
			}
			resolved, err := r.fetch(ctx, b.Image.URL)
			if err != nil {
				return fmt.Errorf("resolve image url: %w", err)
			}
			b.Image = resolved
		}
	}
	return nil
}

func (r *ImageResolver) fetch(ctx context.Context, url string) (model.ImageSource, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.ImageSource{}, fmt.Errorf("build image request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return model.ImageSource{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.ImageSource{}, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	// Read one byte past the bound so an oversized body is detected instead
	// of silently truncated.
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return model.ImageSource{}, fmt.Errorf("read image body: %w", err)
	}
	if len(data) > MaxImageBytes {
		return model.ImageSource{}, fmt.Errorf("image %s exceeds %d byte limit", url, MaxImageBytes)
	}

	mime := http.DetectContentType(data)
	if ct := resp.Header.Get("Content-Type"); ct != "" && mime == "application/octet-stream" {
		// DetectContentType's sniff table doesn't cover every image format
		// (e.g. some WebP variants); fall back to a declared header only
		// when sniffing couldn't narrow it down.
		mime = ct
	}

	return model.ImageSource{
		Kind: model.ImageSourceBase64,
		MIME: mime,
		Data: base64.StdEncoding.EncodeToString(data),
	}, nil
}
