package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Capture kinds.
const (
	DebugHTTP = "http"
	DebugDOM  = "dom"
	DebugNet  = "net"
)

// DebugSink stores raw bodies for offline selector work. Save never fails
// the caller; problems are logged.
type DebugSink interface {
	Save(ctx context.Context, kind, sourceURL, body string)
}

// debugName is stable for a (url, body length) pair so re-fetches of a
// changed page do not overwrite each other.
func debugName(kind, sourceURL, body string) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d", sourceURL, len(body))))
	ext := ".html"
	if kind == DebugNet {
		ext = ".txt"
	}
	return kind + "_" + hex.EncodeToString(sum[:8]) + ext
}

type FileDebugSink struct {
	dir string
}

func NewFileDebugSink(dir string) (*FileDebugSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}
	return &FileDebugSink{dir: dir}, nil
}

func (s *FileDebugSink) Save(_ context.Context, kind, sourceURL, body string) {
	name := filepath.Join(s.dir, debugName(kind, sourceURL, body))
	if err := os.WriteFile(name, []byte(body), 0o644); err != nil {
		log.Printf("debug save failed: %v", err)
		return
	}
	log.Printf("saved %s -> %s :: %s", strings.ToUpper(kind), name, sourceURL)
}

type S3DebugSink struct {
	uploader *S3Uploader
	prefix   string
}

func NewS3DebugSink(uploader *S3Uploader, prefix string) *S3DebugSink {
	return &S3DebugSink{uploader: uploader, prefix: prefix}
}

func (s *S3DebugSink) Save(ctx context.Context, kind, sourceURL, body string) {
	key := path.Join(s.prefix, time.Now().UTC().Format("2006-01-02"), debugName(kind, sourceURL, body))
	contentType := "text/html; charset=utf-8"
	if kind == DebugNet {
		contentType = "text/plain; charset=utf-8"
	}
	if err := s.uploader.Upload(ctx, key, strings.NewReader(body), contentType); err != nil {
		log.Printf("debug upload failed: %v", err)
		return
	}
	log.Printf("saved %s -> %s :: %s", strings.ToUpper(kind), s.uploader.Location(key), sourceURL)
}
