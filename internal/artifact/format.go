// Package artifact defines the on-disk search index: a manifest that lists one
// independently loadable file per bucket partition. The encoding is stable
// indented JSON so two builds of the same records are byte-identical and
// diff cleanly.
package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"path"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

const (
	// SchemaVersion changes only on structural changes. New symbol kinds do
	// not bump it: readers map unknown kinds to the generic symbol kind.
	SchemaVersion = 1
	Generator     = "docindex"
	ManifestFile  = "manifest.json"
	PartitionDir  = "partitions"
)

// Manifest is the artifact header.
type Manifest struct {
	SchemaVersion int            `json:"schemaVersion"`
	Generator     string         `json:"generator"`
	EntryCount    int            `json:"entryCount"`
	Partitions    []PartitionRef `json:"partitions"`
}

// PartitionRef locates and fingerprints one partition file.
type PartitionRef struct {
	Bucket   symbol.Bucket `json:"bucket"`
	File     string        `json:"file"`
	Entries  int           `json:"entries"`
	Checksum string        `json:"checksum"`
}

// Lookup returns the partition reference for bucket b.
func (m *Manifest) Lookup(b symbol.Bucket) (PartitionRef, bool) {
	i := sort.Search(len(m.Partitions), func(i int) bool {
		return m.Partitions[i].Bucket >= b
	})
	if i < len(m.Partitions) && m.Partitions[i].Bucket == b {
		return m.Partitions[i], true
	}
	return PartitionRef{}, false
}

type partitionDoc struct {
	SchemaVersion int            `json:"schemaVersion"`
	Bucket        symbol.Bucket  `json:"bucket"`
	Entries       []symbol.Entry `json:"entries"`
}

// File is one encoded artifact file, Path relative to the artifact root.
type File struct {
	Path string
	Data []byte
}

// Encoded is a fully serialised index.
type Encoded struct {
	Manifest   []byte
	Partitions []File
}

// PartitionPath returns the artifact-relative path of bucket b's partition.
func PartitionPath(b symbol.Bucket) string {
	return path.Join(PartitionDir, b.Stem()+".json")
}

// Encode serialises idx. Partitions are written in index order, which the
// builder guarantees is ascending by bucket.
func Encode(idx *symbol.Index) (*Encoded, error) {
	manifest := Manifest{
		SchemaVersion: SchemaVersion,
		Generator:     Generator,
		EntryCount:    idx.EntryCount(),
		Partitions:    make([]PartitionRef, 0, len(idx.Partitions)),
	}
	enc := &Encoded{Partitions: make([]File, 0, len(idx.Partitions))}
	for _, p := range idx.Partitions {
		data, err := marshal(partitionDoc{
			SchemaVersion: SchemaVersion,
			Bucket:        p.Bucket,
			Entries:       p.Entries,
		})
		if err != nil {
			return nil, fmt.Errorf("encoding partition %q: %w", p.Bucket, err)
		}
		file := PartitionPath(p.Bucket)
		enc.Partitions = append(enc.Partitions, File{Path: file, Data: data})
		manifest.Partitions = append(manifest.Partitions, PartitionRef{
			Bucket:   p.Bucket,
			File:     file,
			Entries:  len(p.Entries),
			Checksum: Checksum(data),
		})
	}
	data, err := marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	enc.Manifest = data
	return enc, nil
}

// Checksum is the crc32 (IEEE) of data in hex.
func Checksum(data []byte) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(data))
}

// DecodeManifest parses and checks a manifest. Any failure wraps
// ErrCorruptArtifact: without a manifest nothing in the artifact is reachable.
func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing manifest: %v", apperrors.ErrCorruptArtifact, err)
	}
	if m.SchemaVersion < 1 || m.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", apperrors.ErrCorruptArtifact, m.SchemaVersion)
	}
	for i, ref := range m.Partitions {
		if ref.Bucket == "" {
			return nil, fmt.Errorf("%w: partition %d has no bucket", apperrors.ErrCorruptArtifact, i)
		}
		if i > 0 && m.Partitions[i-1].Bucket >= ref.Bucket {
			return nil, fmt.Errorf("%w: partitions not in ascending bucket order at %q", apperrors.ErrCorruptArtifact, ref.Bucket)
		}
		if !validFilePath(ref.File) {
			return nil, fmt.Errorf("%w: partition %q has invalid file %q", apperrors.ErrCorruptArtifact, ref.Bucket, ref.File)
		}
	}
	return &m, nil
}

// DecodePartition parses the partition described by ref. Any failure wraps
// ErrMissingPartition: a damaged partition only takes its own bucket offline.
func DecodePartition(ref PartitionRef, data []byte) (symbol.Partition, error) {
	if ref.Checksum != "" && Checksum(data) != ref.Checksum {
		return symbol.Partition{}, fmt.Errorf("%w: bucket %q checksum mismatch", apperrors.ErrMissingPartition, ref.Bucket)
	}
	var doc partitionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return symbol.Partition{}, fmt.Errorf("%w: bucket %q: %v", apperrors.ErrMissingPartition, ref.Bucket, err)
	}
	if doc.SchemaVersion < 1 || doc.SchemaVersion > SchemaVersion {
		return symbol.Partition{}, fmt.Errorf("%w: bucket %q has unsupported schema version %d", apperrors.ErrMissingPartition, ref.Bucket, doc.SchemaVersion)
	}
	if doc.Bucket != ref.Bucket {
		return symbol.Partition{}, fmt.Errorf("%w: file for bucket %q holds bucket %q", apperrors.ErrMissingPartition, ref.Bucket, doc.Bucket)
	}
	for i := range doc.Entries {
		e := &doc.Entries[i]
		if e.Key == "" || symbol.BucketOf(e.Key) != doc.Bucket || len(e.Occurrences) == 0 {
			return symbol.Partition{}, fmt.Errorf("%w: bucket %q has invalid entry %d", apperrors.ErrMissingPartition, ref.Bucket, i)
		}
		e.Bucket = doc.Bucket
	}
	return symbol.Partition{Bucket: doc.Bucket, Entries: doc.Entries}, nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func validFilePath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return false
	}
	clean := path.Clean(p)
	return clean == p && clean != ".." && !strings.HasPrefix(clean, "../")
}
