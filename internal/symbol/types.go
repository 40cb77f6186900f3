// Package symbol defines the records exchanged between the doc-comment parser,
// the index builder and the query engine, together with the deterministic key
// and bucket rules both sides must agree on.
package symbol

import "strings"

// Record is one raw extraction result from the upstream doc-comment parser.
type Record struct {
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Label  string `json:"label"`
	Target string `json:"target"`
}

// Occurrence is one documented location of an Entry.
type Occurrence struct {
	Label  string `json:"label"`
	Target string `json:"target"`
	Kind   Kind   `json:"kind"`
}

// Page returns the target without its in-page anchor.
func (o Occurrence) Page() string {
	page, _, _ := strings.Cut(o.Target, "#")
	return page
}

// Anchor returns the in-page anchor id of the target, or "".
func (o Occurrence) Anchor() string {
	_, anchor, _ := strings.Cut(o.Target, "#")
	return anchor
}

// Entry groups every occurrence of one logical name.
type Entry struct {
	Key         string       `json:"key"`
	DisplayName string       `json:"displayName"`
	Bucket      Bucket       `json:"-"`
	Occurrences []Occurrence `json:"occurrences"`
}

// Partition is the ordered set of entries stored under one bucket.
type Partition struct {
	Bucket  Bucket
	Entries []Entry
}

// Index is a complete, immutable search index: partitions in ascending bucket
// order, entries within a partition in ascending key order.
type Index struct {
	Partitions []Partition
}

// EntryCount returns the number of entries across all partitions.
func (idx *Index) EntryCount() int {
	n := 0
	for _, p := range idx.Partitions {
		n += len(p.Entries)
	}
	return n
}

// Partition returns the partition for bucket b.
func (idx *Index) Partition(b Bucket) (Partition, bool) {
	for _, p := range idx.Partitions {
		if p.Bucket == b {
			return p, true
		}
	}
	return Partition{}, false
}
