package artifact

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
)

// SearchDataDir is where WriteSearchData puts its scripts, relative to the
// output directory.
const SearchDataDir = "search"

// WriteSearchData writes one Doxygen-compatible "var searchData=[...]" script
// per partition, for HTML front ends that still load the legacy search
// tables. relPrefix is prepended to every target (Doxygen uses "../" because
// the scripts live one directory below the pages). It returns the written
// paths relative to dir.
func WriteSearchData(dir string, idx *symbol.Index, relPrefix string) ([]string, error) {
	written := make([]string, 0, len(idx.Partitions))
	ordinal := 0
	for _, p := range idx.Partitions {
		var buf bytes.Buffer
		next, err := EncodeSearchData(&buf, p, ordinal, relPrefix)
		if err != nil {
			return written, fmt.Errorf("encoding search data for bucket %q: %w", p.Bucket, err)
		}
		ordinal = next
		rel := filepath.Join(SearchDataDir, "all_"+p.Bucket.Stem()+".js")
		if err := writeSynced(filepath.Join(dir, rel), buf.Bytes()); err != nil {
			return written, err
		}
		written = append(written, filepath.ToSlash(rel))
	}
	return written, nil
}

// EncodeSearchData writes one partition as a searchData script. Entry ids are
// the escaped key followed by a running ordinal starting at start; the next
// free ordinal is returned.
func EncodeSearchData(w io.Writer, p symbol.Partition, start int, relPrefix string) (int, error) {
	bw := bufio.NewWriter(w)
	bw.WriteString("var searchData=\n[\n")
	n := start
	for i, e := range p.Entries {
		fmt.Fprintf(bw, "  ['%s_%d',['%s'", searchID(e.Key), n, jsEscape(e.DisplayName))
		for _, occ := range e.Occurrences {
			fmt.Fprintf(bw, ",['%s',1,'%s']", jsEscape(relPrefix+occ.Target), jsEscape(occ.Label))
		}
		bw.WriteString("]]")
		if i < len(p.Entries)-1 {
			bw.WriteByte(',')
		}
		bw.WriteByte('\n')
		n++
	}
	bw.WriteString("];\n")
	return n, bw.Flush()
}

// searchID escapes every byte outside [a-z0-9] as _xx, so "lex_init" becomes
// "lex_5finit" and "linedit.c" becomes "linedit_2ec".
func searchID(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "_%02x", c)
	}
	return b.String()
}

var jsReplacer = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`, "</", `<\/`)

func jsEscape(s string) string {
	return jsReplacer.Replace(s)
}
