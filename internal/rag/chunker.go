package rag

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sevigo/goframe/parsers"
)

// Chunk is one embeddable slice of a file.
type Chunk struct {
	ID        string
	Path      string
	Text      string
	LineStart int
	LineEnd   int
}

// Chunker splits a file into chunks.
type Chunker interface {
	Chunk(path, content string) []Chunk
}

// ChunkID derives a stable id from the file path and line range, formatted
// as a UUID so it can be used as a vector point id.
func ChunkID(path string, lineStart, lineEnd int) string {
	h := sha256.New()
	h.Write([]byte(path))
	fmt.Fprintf(h, ":%d:%d", lineStart, lineEnd)
	sum := h.Sum(nil)
	return fmt.Sprintf("%x-%x-%x-%x-%x", sum[0:4], sum[4:6], sum[6:8], sum[8:10], sum[10:16])
}

// LineChunker cuts files into windows of Size lines, each overlapping the
// previous one by Overlap lines.
type LineChunker struct {
	Size    int
	Overlap int
}

func (c LineChunker) Chunk(path, content string) []Chunk {
	size := max(c.Size, 1)
	overlap := min(max(c.Overlap, 0), size-1)
	stride := size - overlap

	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var chunks []Chunk
	for start := 0; start < len(lines); start += stride {
		end := min(start+size, len(lines))
		text := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, Chunk{
				ID:        ChunkID(path, start+1, end),
				Path:      path,
				Text:      text,
				LineStart: start + 1,
				LineEnd:   end,
			})
		}
		if end == len(lines) {
			break
		}
	}
	return chunks
}

// CodeChunker splits source files along syntactic boundaries using the
// goframe language parsers, and falls back to another Chunker for files no
// parser understands.
type CodeChunker struct {
	registry parsers.ParserRegistry
	fallback Chunker
	logger   *slog.Logger
}

// NewCodeChunker creates a CodeChunker.
func NewCodeChunker(registry parsers.ParserRegistry, fallback Chunker, logger *slog.Logger) *CodeChunker {
	return &CodeChunker{registry: registry, fallback: fallback, logger: logger}
}

func (c *CodeChunker) Chunk(path, content string) []Chunk {
	parser, err := c.registry.GetParserForFile(path, nil)
	if err != nil {
		return c.fallback.Chunk(path, content)
	}

	parsed, err := parser.Chunk(content, path, nil)
	if err != nil || len(parsed) == 0 {
		if err != nil {
			c.logger.Debug("parser failed, using line windows", "file", path, "error", err)
		}
		return c.fallback.Chunk(path, content)
	}

	chunks := make([]Chunk, 0, len(parsed))
	for _, p := range parsed {
		if strings.TrimSpace(p.Content) == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:        ChunkID(path, p.LineStart, p.LineEnd),
			Path:      path,
			Text:      p.Content,
			LineStart: p.LineStart,
			LineEnd:   p.LineEnd,
		})
	}
	return chunks
}
