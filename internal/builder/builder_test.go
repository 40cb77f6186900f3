package builder

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func sampleRecords() []symbol.Record {
	return []symbol.Record{
		{Name: "lex", Kind: symbol.KindFunction, Label: "lex(lexer *l, token *tok, error *err):&#160;parse.c", Target: "parse_8c.html#ac8fb025deb0f7d51621079f1f96b731c"},
		{Name: "lex", Kind: symbol.KindFunction, Label: "lex(lexer *l, token *tok, error *err):&#160;parse.c", Target: "parse_8h.html#ac8fb025deb0f7d51621079f1f96b731c"},
		{Name: "lexer", Kind: symbol.KindStruct, Label: "", Target: "structlexer.html"},
		{Name: "line", Kind: symbol.KindField, Label: "token::line()", Target: "structtoken.html#aca226005ac16773e1105c6e8aea4dcda"},
		{Name: "line", Kind: symbol.KindField, Label: "lexer::line()", Target: "structlexer.html#a36159338c818ef1a63167c1201b58288"},
		{Name: "linedit", Kind: symbol.KindFunction, Label: "linedit(lineditor *edit):&#160;linedit.c", Target: "linedit_8c.html#aefde71eb6eb304ebdfc5ac60ff8da158"},
		{Name: "linedit.c", Kind: symbol.KindFile, Label: "", Target: "linedit_8c.html"},
		{Name: "lineditor", Kind: symbol.KindStruct, Label: "", Target: "structlineditor.html"},
		{Name: "left", Kind: symbol.KindField, Label: "parser", Target: "structparser.html#ac9778da88da139eba35f258a78bacff5"},
		{Name: "_private", Kind: symbol.KindVariable, Label: "morpho.h", Target: "morpho_8h.html#a1"},
		{Name: "3dmesh", Kind: symbol.KindPage, Label: "", Target: "page3d.html"},
		{Name: "Token", Kind: symbol.KindStruct, Label: "", Target: "structtoken.html"},
	}
}

func buildSequential(t *testing.T, records []symbol.Record, opts Options) (*symbol.Index, Report) {
	t.Helper()
	b := New(opts)
	b.AddAll(records)
	return b.Build()
}

func findEntry(idx *symbol.Index, key string) (symbol.Entry, bool) {
	for _, p := range idx.Partitions {
		for _, e := range p.Entries {
			if e.Key == key {
				return e, true
			}
		}
	}
	return symbol.Entry{}, false
}

func TestBuildMergesOccurrencesAcrossFiles(t *testing.T) {
	idx, _ := buildSequential(t, sampleRecords()[:2], Options{})
	if idx.EntryCount() != 1 {
		t.Fatalf("expected 1 entry, got %d", idx.EntryCount())
	}
	e, ok := findEntry(idx, "lex")
	if !ok {
		t.Fatal("entry lex not found")
	}
	if len(e.Occurrences) != 2 {
		t.Fatalf("expected 2 occurrences, got %d", len(e.Occurrences))
	}
	if e.Occurrences[0].Target == e.Occurrences[1].Target {
		t.Errorf("occurrences share target %q", e.Occurrences[0].Target)
	}
}

func TestBuildCollapsesDuplicateOccurrences(t *testing.T) {
	rec := sampleRecords()[0]
	dup := rec
	dup.Kind = symbol.KindSymbol
	b := New(Options{})
	for _, r := range []symbol.Record{rec, rec, dup} {
		if err := b.Add(r); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	idx, report := b.Build()
	e, _ := findEntry(idx, "lex")
	if len(e.Occurrences) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(e.Occurrences))
	}
	if e.Occurrences[0].Kind != symbol.KindSymbol {
		t.Errorf("expected lowest kind to win, got %v", e.Occurrences[0].Kind)
	}
	if report.Accepted != 1 || report.Duplicates != 2 || report.Records != 3 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestBuildRejectsMalformedRecordsAndContinues(t *testing.T) {
	records := append(sampleRecords(),
		symbol.Record{Name: "", Kind: symbol.KindFunction, Target: "x.html"},
		symbol.Record{Name: "orphan", Kind: symbol.KindFunction},
		symbol.Record{Name: "<b></b>", Target: "y.html"},
	)
	b := New(Options{})
	rejected := b.AddAll(records)
	if rejected != 3 {
		t.Fatalf("expected 3 rejected, got %d", rejected)
	}
	idx, report := b.Build()
	if report.Rejected != 3 {
		t.Errorf("report.Rejected = %d, want 3", report.Rejected)
	}
	for _, reason := range []string{symbol.ReasonEmptyName, symbol.ReasonEmptyTarget, symbol.ReasonEmptyKey} {
		if report.RejectReasons[reason] != 1 {
			t.Errorf("reason %s counted %d times, want 1", reason, report.RejectReasons[reason])
		}
	}
	if report.Records != report.Accepted+report.Duplicates+report.Rejected {
		t.Errorf("report does not add up: %+v", report)
	}
	if _, ok := findEntry(idx, "lex"); !ok {
		t.Error("valid records missing after rejection")
	}
}

func TestAddReturnsMalformedRecord(t *testing.T) {
	err := New(Options{}).Add(symbol.Record{Name: "x"})
	if !errors.Is(err, apperrors.ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
}

func TestBuildKeepsHomonymsAcrossKinds(t *testing.T) {
	idx, _ := buildSequential(t, []symbol.Record{
		{Name: "parse", Kind: symbol.KindFunction, Label: "parse(parser *p)", Target: "parse_8c.html#a1"},
		{Name: "Parse", Kind: symbol.KindPage, Label: "", Target: "parse.html"},
	}, Options{})
	e, ok := findEntry(idx, "parse")
	if !ok {
		t.Fatal("entry parse not found")
	}
	if len(e.Occurrences) != 2 {
		t.Fatalf("expected 2 occurrences, got %d", len(e.Occurrences))
	}
	if e.DisplayName != "Parse" {
		t.Errorf("display name = %q, want ordinal minimum %q", e.DisplayName, "Parse")
	}
}

func TestBuildOrdering(t *testing.T) {
	idx, _ := buildSequential(t, sampleRecords(), Options{})
	var prevBucket symbol.Bucket
	for i, p := range idx.Partitions {
		if i > 0 && p.Bucket <= prevBucket {
			t.Errorf("partition %q not after %q", p.Bucket, prevBucket)
		}
		prevBucket = p.Bucket
		for j, e := range p.Entries {
			if e.Bucket != p.Bucket || symbol.BucketOf(e.Key) != p.Bucket {
				t.Errorf("entry %q in bucket %q, BucketOf=%q", e.Key, p.Bucket, symbol.BucketOf(e.Key))
			}
			if j > 0 && p.Entries[j-1].Key >= e.Key {
				t.Errorf("entries out of order: %q before %q", p.Entries[j-1].Key, e.Key)
			}
			if len(e.Occurrences) == 0 {
				t.Errorf("entry %q has no occurrences", e.Key)
			}
		}
	}
	catchAll, ok := idx.Partition(symbol.CatchAll)
	if !ok || len(catchAll.Entries) != 2 {
		t.Fatalf("expected 2 catch-all entries, got %+v", catchAll)
	}
}

func TestBuildIsOrderIndependent(t *testing.T) {
	records := sampleRecords()
	want, wantReport := buildSequential(t, records, Options{})
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]symbol.Record(nil), records...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got, gotReport := buildSequential(t, shuffled, Options{})
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("permutation %d produced a different index", i)
		}
		if !reflect.DeepEqual(gotReport, wantReport) {
			t.Fatalf("permutation %d produced a different report: %+v vs %+v", i, gotReport, wantReport)
		}
	}
}

func TestPreserveDiscoveryOrder(t *testing.T) {
	records := []symbol.Record{
		{Name: "line", Kind: symbol.KindField, Label: "token::line()", Target: "structtoken.html#b"},
		{Name: "line", Kind: symbol.KindField, Label: "lexer::line()", Target: "structlexer.html#a"},
	}
	idx, _ := buildSequential(t, records, Options{PreserveDiscoveryOrder: true})
	e, _ := findEntry(idx, "line")
	if e.Occurrences[0].Target != "structtoken.html#b" {
		t.Errorf("discovery order lost: %+v", e.Occurrences)
	}
	idx, _ = buildSequential(t, records, Options{})
	e, _ = findEntry(idx, "line")
	if e.Occurrences[0].Target != "structlexer.html#a" {
		t.Errorf("canonical order not applied: %+v", e.Occurrences)
	}
}

func TestBuildParallelMatchesSequential(t *testing.T) {
	records := sampleRecords()
	records = append(records, records[0], symbol.Record{Name: "", Target: "bad.html"})
	want, wantReport := buildSequential(t, records, Options{})

	shards := [][]symbol.Record{records[:3], records[3:7], records[7:]}
	got, gotReport, err := BuildParallel(context.Background(), shards, Options{})
	if err != nil {
		t.Fatalf("BuildParallel: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatal("parallel build differs from sequential build")
	}
	if !reflect.DeepEqual(gotReport, wantReport) {
		t.Errorf("report mismatch: %+v vs %+v", gotReport, wantReport)
	}
}

func TestBuildParallelCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := BuildParallel(ctx, [][]symbol.Record{sampleRecords()}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestShardedMatchesSequential(t *testing.T) {
	records := sampleRecords()
	want, wantReport := buildSequential(t, records, Options{})

	s := NewSharded(3, Options{})
	for _, rec := range records {
		s.Add(rec)
	}
	s.Reject("undecodable", errors.New("bad json"))
	got, report, err := s.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatal("sharded build differs from sequential build")
	}
	if report.Records != wantReport.Records+1 || report.Rejected != wantReport.Rejected+1 {
		t.Errorf("report %+v does not include the undecodable record", report)
	}
	if report.RejectReasons["undecodable"] != 1 {
		t.Errorf("reject reasons = %v", report.RejectReasons)
	}
}

func TestShardOfIsStable(t *testing.T) {
	for _, key := range []string{"lex", "linedit", "_private"} {
		a, b := ShardOf(key, 8), ShardOf(key, 8)
		if a != b || a < 0 || a >= 8 {
			t.Errorf("ShardOf(%q) = %d, %d", key, a, b)
		}
	}
	if ShardOf("lex", 1) != 0 || ShardOf("lex", 0) != 0 {
		t.Error("single shard must be 0")
	}
}

func TestRejectCountsUndecodable(t *testing.T) {
	b := New(Options{})
	b.Reject("undecodable", errors.New("line 3: invalid character"))
	b.AddAll(sampleRecords()[:1])
	_, report := b.Build()
	if report.Records != 2 || report.Rejected != 1 || report.Accepted != 1 {
		t.Errorf("unexpected report %+v", report)
	}
}
