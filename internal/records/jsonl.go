// Package records feeds raw symbol records to a build, from JSON Lines files
// written by the doc-comment parser or from a Kafka topic.
package records

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// ReasonUndecodable is the rejection reason for input that is not a record.
const ReasonUndecodable = "undecodable"

// maxLineSize bounds one JSONL record. Labels carry whole signatures, so the
// bufio default of 64KiB is too small for some generated code.
const maxLineSize = 4 << 20

// Sink receives records. *builder.Builder and *builder.Sharded implement it.
type Sink interface {
	Add(rec symbol.Record) error
	Reject(reason string, err error)
}

// Stats counts what a reader handed to its sink.
type Stats struct {
	Records     int `json:"records"`
	Undecodable int `json:"undecodable"`
	Invalid     int `json:"invalid"`
}

func (s *Stats) add(o Stats) {
	s.Records += o.Records
	s.Undecodable += o.Undecodable
	s.Invalid += o.Invalid
}

// Decode parses one record. Unknown fields are ignored so newer parsers can
// add them. The error wraps ErrMalformedRecord.
func Decode(data []byte) (symbol.Record, error) {
	var rec symbol.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return symbol.Record{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedRecord, err)
	}
	return rec, nil
}

// Read feeds every line of r to sink. Blank lines are skipped; a line that is
// not a record is rejected and reading continues. Only I/O errors stop it.
func Read(r io.Reader, source string, sink Sink) (Stats, error) {
	var stats Stats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		data := bytes.TrimSpace(sc.Bytes())
		if len(data) == 0 {
			continue
		}
		stats.Records++
		rec, err := Decode(data)
		if err != nil {
			stats.Undecodable++
			sink.Reject(ReasonUndecodable, fmt.Errorf("%s:%d: %w", source, line, err))
			continue
		}
		if err := sink.Add(rec); err != nil {
			stats.Invalid++
		}
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("reading %s at line %d: %w", source, line+1, err)
	}
	return stats, nil
}

// ReadFile reads one JSONL file; "-" reads standard input.
func ReadFile(path string, sink Sink) (Stats, error) {
	if path == "-" {
		return Read(os.Stdin, "stdin", sink)
	}
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("opening records file: %w", err)
	}
	defer f.Close()
	return Read(f, path, sink)
}

// ReadFiles reads paths in order and returns the combined stats.
func ReadFiles(paths []string, sink Sink) (Stats, error) {
	logger := slog.Default().With("component", "record-reader")
	var total Stats
	for _, path := range paths {
		stats, err := ReadFile(path, sink)
		total.add(stats)
		if err != nil {
			return total, err
		}
		logger.Info("records read",
			"file", path,
			"records", stats.Records,
			"undecodable", stats.Undecodable,
			"invalid", stats.Invalid,
		)
	}
	return total, nil
}
