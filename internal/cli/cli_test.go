package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/artifact"
)

const recordsJSONL = `{"name":"lex","kind":"function","label":"parse.c","target":"parse_8c.html#a1"}
{"name":"lexer","kind":"struct","target":"structlexer.html"}
{"name":"line","kind":"field","label":"token::line()","target":"structtoken.html#a2"}
{"name":"linedit","kind":"function","label":"linedit.c","target":"linedit_8c.html#a3"}
{"name":"lex","kind":"function","label":"parse.c","target":"parse_8c.html#a1"}
not a record
{"name":"Morpho","kind":"page","target":"index.html"}
`

// isolate keeps the environment from enabling Redis, Kafka or Postgres.
func isolate(t *testing.T) {
	t.Helper()
	for _, name := range []string{"DOCSEARCH_REDIS_ENABLED", "DOCSEARCH_KAFKA_ENABLED", "DOCSEARCH_POSTGRES_ENABLED"} {
		t.Setenv(name, "false")
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeRecords(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "records.jsonl")
	if err := os.WriteFile(path, []byte(recordsJSONL), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildThenQuery(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	input := writeRecords(t, root)
	out := filepath.Join(root, "html", "search")

	stdout, err := run(t, "build", input, "--out", out, "--js")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var summary BuildSummary
	if err := json.Unmarshal([]byte(stdout), &summary); err != nil {
		t.Fatalf("decoding build summary: %v\n%s", err, stdout)
	}
	r := summary.Build.Report
	if r.Records != 7 || r.Accepted != 5 || r.Duplicates != 1 || r.Rejected != 1 {
		t.Errorf("report = %+v", r)
	}
	if r.Entries != 5 || r.Partitions != 2 {
		t.Errorf("entries/partitions = %d/%d, want 5/2", r.Entries, r.Partitions)
	}
	if summary.Files.Undecodable != 1 {
		t.Errorf("undecodable = %d, want 1", summary.Files.Undecodable)
	}
	manifest, err := os.ReadFile(filepath.Join(out, artifact.ManifestFile))
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}
	if summary.Build.Generation != artifact.Checksum(manifest) {
		t.Errorf("generation %q does not match the manifest", summary.Build.Generation)
	}
	if summary.HistoryRecorded || summary.Announced {
		t.Error("history and announcement should be off by default")
	}
	if len(summary.SearchData) != 2 || summary.SearchData[0] != "search/all_l.js" {
		t.Errorf("search data = %v", summary.SearchData)
	}

	stdout, err = run(t, "query", "LIN", "--artifact", out, "--json")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var res queryOutput
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("decoding query output: %v\n%s", err, stdout)
	}
	var keys []string
	for _, m := range res.Results {
		keys = append(keys, m.Key)
	}
	if strings.Join(keys, ",") != "line,linedit" {
		t.Errorf("query lin = %v, want [line linedit]", keys)
	}

	stdout, err = run(t, "query", "lex", "--artifact", out)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "exact") || !strings.Contains(lines[0], "parse_8c.html#a1") {
		t.Errorf("text output:\n%s", stdout)
	}
}

func TestExportJSMatchesBuild(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	input := writeRecords(t, root)
	out := filepath.Join(root, "html", "search")
	if _, err := run(t, "build", input, "--out", out, "--js"); err != nil {
		t.Fatalf("build: %v", err)
	}

	exported := filepath.Join(root, "exported")
	if _, err := run(t, "export-js", "--artifact", out, "--out", exported); err != nil {
		t.Fatalf("export-js: %v", err)
	}
	for _, name := range []string{"all_l.js", "all_m.js"} {
		built, err := os.ReadFile(filepath.Join(root, "html", "search", name))
		if err != nil {
			t.Fatal(err)
		}
		again, err := os.ReadFile(filepath.Join(exported, "search", name))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(built, again) {
			t.Errorf("%s differs between build and export-js", name)
		}
	}
}

func TestBuildShardedIsIdentical(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	input := writeRecords(t, root)

	one := filepath.Join(root, "one")
	four := filepath.Join(root, "four")
	if _, err := run(t, "build", input, "--out", one); err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := run(t, "build", "-i", input, "--out", four, "--shards", "4"); err != nil {
		t.Fatalf("sharded build: %v", err)
	}
	a, _ := os.ReadFile(filepath.Join(one, artifact.ManifestFile))
	b, _ := os.ReadFile(filepath.Join(four, artifact.ManifestFile))
	if len(a) == 0 || !bytes.Equal(a, b) {
		t.Error("sharded build produced a different manifest")
	}
}

func TestBuildNeedsASource(t *testing.T) {
	isolate(t)
	if _, err := run(t, "build", "--out", filepath.Join(t.TempDir(), "search")); err == nil {
		t.Fatal("build without records should fail")
	}
}

func TestBuildMissingInput(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	out := filepath.Join(root, "search")
	if _, err := run(t, "build", filepath.Join(root, "nope.jsonl"), "--out", out); err == nil {
		t.Fatal("build with a missing input should fail")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("no artifact should be written, stat err = %v", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if out != "docindex test\n" {
		t.Errorf("version output = %q", out)
	}
}
