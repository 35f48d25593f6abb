package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/relaylayer/llmcore/internal/model"
)

func TestImageResolver_FetchesAndEncodes(t *testing.T) {
	const png = "\x89PNG\r\n\x1a\n" + "rest-of-file-does-not-matter"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(png))
	}))
	defer srv.Close()

	req := &model.ChatRequest{Messages: []model.Message{{
		Role: model.RoleUser,
		Content: model.MessageContent{IsBlocks: true, Blocks: []model.ContentBlock{
			{Kind: model.BlockImage, Image: model.ImageSource{Kind: model.ImageSourceURL, URL: srv.URL}},
		}},
	}}}

	r := NewImageResolver(2 * time.Second)
	if err := r.Resolve(context.Background(), req); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	img := req.Messages[0].Content.Blocks[0].Image
	if img.Kind != model.ImageSourceBase64 {
		t.Fatalf("Kind = %v, want ImageSourceBase64", img.Kind)
	}
	if img.MIME != "image/png" {
		t.Errorf("MIME = %q, want image/png", img.MIME)
	}
	if img.Data == "" {
		t.Error("Data is empty")
	}
}

func TestImageResolver_RejectsOversized(t *testing.T) {
	oversized := strings.Repeat("a", MaxImageBytes+1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(oversized))
	}))
	defer srv.Close()

	req := &model.ChatRequest{Messages: []model.Message{{
		Content: model.MessageContent{IsBlocks: true, Blocks: []model.ContentBlock{
			{Kind: model.BlockImage, Image: model.ImageSource{Kind: model.ImageSourceURL, URL: srv.URL}},
		}},
	}}}

	r := NewImageResolver(2 * time.Second)
	if err := r.Resolve(context.Background(), req); err == nil {
		t.Error("expected an error for an oversized image body")
	}
}

func TestImageResolver_RejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	req := &model.ChatRequest{Messages: []model.Message{{
		Content: model.MessageContent{IsBlocks: true, Blocks: []model.ContentBlock{
			{Kind: model.BlockImage, Image: model.ImageSource{Kind: model.ImageSourceURL, URL: srv.URL}},
		}},
	}}}

	r := NewImageResolver(2 * time.Second)
	if err := r.Resolve(context.Background(), req); err == nil {
		t.Error("expected an error for a non-200 fetch")
	}
}

func TestImageResolver_LeavesDataURLsAndTextUntouched(t *testing.T) {
	req := &model.ChatRequest{Messages: []model.Message{{
		Content: model.MessageContent{IsBlocks: true, Blocks: []model.ContentBlock{
			{Kind: model.BlockText, Text: "hello"},
			{Kind: model.BlockImage, Image: model.ImageSource{Kind: model.ImageSourceBase64, MIME: "image/jpeg", Data: "already-encoded"}},
		}},
	}}}

	r := NewImageResolver(2 * time.Second)
	if err := r.Resolve(context.Background(), req); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	img := req.Messages[0].Content.Blocks[1].Image
	if img.Data != "already-encoded" {
		t.Errorf("Data = %q, want unchanged", img.Data)
	}
}
