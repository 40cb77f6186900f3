package builder

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
)

// benchRecords returns n records where every name appears twice, once per
// declaring file, the way a header and its source both document a function.
func benchRecords(n int) []symbol.Record {
	records := make([]symbol.Record, 0, n)
	for i := 0; len(records) < n; i++ {
		name := fmt.Sprintf("%csymbol_%d", 'a'+rune(i%26), i)
		for _, file := range []string{"h", "c"} {
			records = append(records, symbol.Record{
				Name:   name,
				Kind:   symbol.KindFunction,
				Label:  fmt.Sprintf("%s(int a, int b):&#160;file_%d.%s", name, i%100, file),
				Target: fmt.Sprintf("file_%d_8%s.html#a%d", i%100, file, i),
			})
		}
	}
	return records[:n]
}

// BenchmarkBuild measures a sequential build for growing inputs.
func BenchmarkBuild(b *testing.B) {
	for _, n := range []int{1000, 10000, 100000} {
		records := benchRecords(n)
		b.Run(fmt.Sprintf("records_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				bl := New(Options{})
				bl.AddAll(records)
				idx, _ := bl.Build()
				_ = idx
			}
		})
	}
}

// BenchmarkBuildSharded measures the parallel build for a fixed input.
func BenchmarkBuildSharded(b *testing.B) {
	records := benchRecords(100000)
	for _, shards := range []int{1, 4, 8} {
		b.Run(fmt.Sprintf("shards_%d", shards), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				s := NewSharded(shards, Options{})
				for _, rec := range records {
					s.Add(rec)
				}
				if _, _, err := s.Build(context.Background()); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkNormalizeKey measures key normalisation on typical names.
func BenchmarkNormalizeKey(b *testing.B) {
	names := []string{
		"lex",
		"Morpho",
		"token::line()",
		"<b>linedit</b>",
		"std::vector&lt;int&gt;::push_back(const T&amp; value)",
	}
	for _, name := range names {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = symbol.NormalizeKey(name)
			}
		})
	}
}
