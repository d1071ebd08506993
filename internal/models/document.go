package models

import (
	"fmt"
	"time"
)

// Document is a normalized text unit read from one source file (or one page of it).
type Document struct {
	Content  string
	Metadata Metadata
}

type Metadata struct {
	SourcePath string `json:"source_path" yaml:"source_path"`
	PageNumber int    `json:"page_number,omitempty" yaml:"page_number,omitempty"`
	DocType    string `json:"doc_type" yaml:"doc_type"`
}

// Source renders the metadata as path or path#page.
func (m Metadata) Source() string {
	if m.PageNumber > 0 {
		return fmt.Sprintf("%s#%d", m.SourcePath, m.PageNumber)
	}
	return m.SourcePath
}

// Chunk represents a contiguous slice of a document's content with a copy of its metadata
type Chunk struct {
	ID       string
	Text     string
	Metadata ChunkMetadata
}

type ChunkMetadata struct {
	Metadata
	ChunkIndex  int
	StartOffset int
	EndOffset   int
	Ordinal     int
}

type ScoredChunk struct {
	Chunk Chunk
	Score float32
}

// RetrievalResult is ordered by descending score.
type RetrievalResult []ScoredChunk

// Texts returns the chunk texts in result order.
func (r RetrievalResult) Texts() []string {
	out := make([]string, len(r))
	for i, sc := range r {
		out[i] = sc.Chunk.Text
	}
	return out
}

// Sources returns the distinct sources in result order.
func (r RetrievalResult) Sources() []string {
	seen := make(map[string]struct{}, len(r))
	var out []string
	for _, sc := range r {
		src := sc.Chunk.Metadata.Source()
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out
}

// EmbedderIdentity names the embedding space an index lives in.
type EmbedderIdentity struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
}

func (id EmbedderIdentity) String() string {
	return id.Provider + "/" + id.Model
}

// Manifest is the side metadata persisted next to every index.
type Manifest struct {
	FormatVersion int       `json:"format_version" yaml:"format_version"`
	BuildID       string    `json:"build_id" yaml:"build_id"`
	BuiltAt       time.Time `json:"built_at" yaml:"built_at"`
	Provider      string    `json:"provider" yaml:"provider"`
	Model         string    `json:"model" yaml:"model"`
	Dimension     int       `json:"dimension" yaml:"dimension"`
	Count         int       `json:"count" yaml:"count"`
	ChunkSize     int       `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap  int       `json:"chunk_overlap" yaml:"chunk_overlap"`
	Distance      string    `json:"distance" yaml:"distance"`
}

func (m Manifest) Identity() EmbedderIdentity {
	return EmbedderIdentity{Provider: m.Provider, Model: m.Model}
}

type PromptResponse struct {
	Query    string   `json:"query"`
	Language Language `json:"language"`
	Sources  []string `json:"sources"`
	Content  string   `json:"answer"`
	Degraded bool     `json:"degraded"`
}
