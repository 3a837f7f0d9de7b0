package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineChunker_Overlap(t *testing.T) {
	var lines []string
	for i := 1; i <= 10; i++ {
		lines = append(lines, "line"+string(rune('0'+i%10)))
	}
	content := strings.Join(lines, "\n") + "\n"

	chunks := LineChunker{Size: 4, Overlap: 2}.Chunk("main.go", content)
	require.Len(t, chunks, 4)

	ranges := [][2]int{}
	for _, c := range chunks {
		ranges = append(ranges, [2]int{c.LineStart, c.LineEnd})
	}
	assert.Equal(t, [][2]int{{1, 4}, {3, 6}, {5, 8}, {7, 10}}, ranges)
	assert.Equal(t, ChunkID("main.go", 1, 4), chunks[0].ID)
}

func TestLineChunker_SmallFileIsOneChunk(t *testing.T) {
	chunks := LineChunker{Size: 50, Overlap: 10}.Chunk("README.md", "# Title\r\nbody\r\n")
	require.Len(t, chunks, 1)
	assert.Equal(t, "# Title\nbody", chunks[0].Text)
}

func TestChunkID_IsDeterministic(t *testing.T) {
	assert.Equal(t, ChunkID("a.go", 1, 10), ChunkID("a.go", 1, 10))
	assert.NotEqual(t, ChunkID("a.go", 1, 10), ChunkID("b.go", 1, 10))
	assert.Len(t, ChunkID("a.go", 1, 10), 36)
}

func TestIsIndexable(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content string
		want    bool
	}{
		{name: "go source", path: "main.go", content: "package main\n", want: true},
		{name: "image by extension", path: "logo.PNG", content: "whatever", want: false},
		{name: "lockfile", path: "web/package-lock.json", content: "{}", want: false},
		{name: "nul byte", path: "data.txt", content: "abc\x00def", want: false},
		{name: "empty", path: "empty.go", content: "  \n", want: false},
		{name: "invalid utf8", path: "latin1.txt", content: "caf\xe9 au lait", want: false},
		{name: "unicode text", path: "notes.md", content: "héllo wörld", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsIndexable(tt.path, []byte(tt.content)))
		})
	}
}

func TestExclusions(t *testing.T) {
	assert.True(t, IsExcludedDir(".git", nil))
	assert.True(t, IsExcludedDir("node_modules", nil))
	assert.True(t, IsExcludedDir("docs", []string{"docs"}))
	assert.False(t, IsExcludedDir("internal", []string{"docs"}))

	assert.True(t, IsExcludedExt("schema.sql", []string{".sql"}))
	assert.True(t, IsExcludedExt("schema.SQL", []string{"sql"}))
	assert.False(t, IsExcludedExt("Makefile", []string{"sql"}))
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "repo-acme-widgets-nomic-embed-text-g7", CollectionName("Acme/Widgets", "nomic-embed-text:latest", 7))
	long := CollectionName(strings.Repeat("x", 400), "m", 1)
	assert.LessOrEqual(t, len(long), maxCollectionNameLength)
	assert.True(t, strings.HasSuffix(long, "-m-g1"))
}
