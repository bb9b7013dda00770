package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

var (
	// ErrUnsupportedFormat is returned for file extensions outside the
	// supported set.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrDecode is returned when file content is not valid UTF-8 text.
	ErrDecode = errors.New("decode error")
)

type loaderFunc func(ctx context.Context, filePath string) ([]schema.Document, error)

// loaders maps a lowercase file extension to its loader. Dispatch goes
// through this table only; anything else fails with ErrUnsupportedFormat.
var loaders = map[string]loaderFunc{
	".pdf": loadPDF,
	".txt": loadText,
	".csv": loadCSV,
}

// Load reads the file at path and returns one or more documents with
// source metadata. PDF yields one document per page, CSV one per data
// row, TXT a single document.
func Load(ctx context.Context, filePath string) ([]schema.Document, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	load, ok := loaders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	docs, err := load(ctx, filePath)
	if err != nil {
		return nil, err
	}
	log.Info().Str("file", filepath.Base(filePath)).Int("documents", len(docs)).Msg("Loaded file")
	return docs, nil
}

// LoadFromBytes loads an in-memory upload through the same dispatch as
// Load, using the logical filename for both extension resolution and the
// source metadata of every returned document. The backing temp file is
// removed on all exit paths.
func LoadFromBytes(ctx context.Context, data []byte, filename string) ([]schema.Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := loaders[ext]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	tmp, err := os.CreateTemp("", "ragqa-upload-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing temp file: %w", err)
	}

	docs, err := Load(ctx, tmp.Name())
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].Metadata["source"] = filename
	}
	return docs, nil
}

func loadPDF(_ context.Context, filePath string) ([]schema.Document, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("reading pdf %s: %w", filepath.Base(filePath), err)
	}

	var docs []schema.Document
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extracting page %d of %s: %w", i, filepath.Base(filePath), err)
		}
		docs = append(docs, schema.Document{
			PageContent: pageText,
			Metadata: map[string]any{
				"source":      filePath,
				"page":        i,
				"total_pages": numPages,
			},
		})
	}
	return docs, nil
}

func loadText(ctx context.Context, filePath string) ([]schema.Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", ErrDecode, filepath.Base(filePath))
	}

	docs, err := documentloaders.NewText(bytes.NewReader(data)).Load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = map[string]any{}
		}
		docs[i].Metadata["source"] = filePath
	}
	return docs, nil
}

func loadCSV(ctx context.Context, filePath string) ([]schema.Document, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	docs, err := documentloaders.NewCSV(f).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading csv %s: %w", filepath.Base(filePath), err)
	}
	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = map[string]any{}
		}
		docs[i].Metadata["source"] = filePath
		docs[i].Metadata["row"] = i + 1
	}
	return docs, nil
}
