package searchd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/artifact"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/builder"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/buildlog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func writeArtifact(t *testing.T, dir string, records []symbol.Record) {
	t.Helper()
	b := builder.New(builder.Options{})
	b.AddAll(records)
	idx, _ := b.Build()
	enc, err := artifact.Encode(idx)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := artifact.Write(dir, enc); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

var firstRecords = []symbol.Record{
	{Name: "lex", Kind: symbol.KindFunction, Label: "parse.c", Target: "parse_8c.html#a1"},
	{Name: "lexer", Kind: symbol.KindStruct, Target: "structlexer.html"},
	{Name: "linedit", Kind: symbol.KindFunction, Label: "linedit.c", Target: "linedit_8c.html#a3"},
	{Name: "Morpho", Kind: symbol.KindPage, Target: "index.html"},
}

func dirOpener(t *testing.T, dir string) Opener {
	t.Helper()
	open, err := NewOpener(config.SearchConfig{Source: "dir", ArtifactDir: dir}, nil, "", nil)
	if err != nil {
		t.Fatalf("NewOpener: %v", err)
	}
	return open
}

func newServer(t *testing.T, h *Holder, defaultLimit, maxResults int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(h, defaultLimit, maxResults).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type searchBody struct {
	Query   string `json:"query"`
	Results []struct {
		Key         string `json:"key"`
		DisplayName string `json:"displayName"`
		Bucket      string `json:"bucket"`
		Tier        string `json:"tier"`
		Occurrences []struct {
			Label  string `json:"label"`
			Target string `json:"target"`
			Page   string `json:"page"`
			Anchor string `json:"anchor"`
			Kind   string `json:"kind"`
		} `json:"occurrences"`
	} `json:"results"`
	Degraded       bool     `json:"degraded"`
	MissingBuckets []string `json:"missingBuckets"`
	Error          string   `json:"error"`
}

func getSearch(t *testing.T, srv *httptest.Server, rawQuery string) (int, searchBody) {
	t.Helper()
	resp, err := http.Get(srv.URL + "/api/v1/search?" + rawQuery)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var body searchBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp.StatusCode, body
}

func TestHandlerSearch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "search")
	writeArtifact(t, dir, firstRecords)
	h := NewHolder(dirOpener(t, dir), nil)
	defer h.Close()
	if err := h.Reload(context.Background(), "startup"); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	srv := newServer(t, h, 20, 200)

	status, body := getSearch(t, srv, "q=LEX")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", status, body.Error)
	}
	if body.Query != "lex" {
		t.Errorf("query = %q, want normalized %q", body.Query, "lex")
	}
	if len(body.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(body.Results))
	}
	first := body.Results[0]
	if first.Key != "lex" || first.Tier != "exact" || first.Bucket != "l" {
		t.Errorf("first result = %+v", first)
	}
	if body.Results[1].Key != "lexer" || body.Results[1].Tier != "prefix" {
		t.Errorf("second result = %+v", body.Results[1])
	}
	occ := first.Occurrences[0]
	if occ.Page != "parse_8c.html" || occ.Anchor != "a1" || occ.Kind != "function" || occ.Label != "parse.c" {
		t.Errorf("occurrence = %+v", occ)
	}
	if body.Degraded {
		t.Error("result should not be degraded")
	}
}

func TestHandlerUnreadablePartitionDegrades(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "search")
	writeArtifact(t, dir, firstRecords)
	h := NewHolder(dirOpener(t, dir), nil)
	defer h.Close()
	if err := h.Reload(context.Background(), "startup"); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	part := filepath.Join(dir, "partitions", "m.json")
	if err := os.Remove(part); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(part, 0o755); err != nil {
		t.Fatal(err)
	}
	srv := newServer(t, h, 20, 200)

	status, body := getSearch(t, srv, "q=lin")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", status, body.Error)
	}
	if !body.Degraded || len(body.MissingBuckets) != 1 || body.MissingBuckets[0] != "m" {
		t.Errorf("degraded = %v, missing = %v", body.Degraded, body.MissingBuckets)
	}
	if len(body.Results) != 1 || body.Results[0].Key != "linedit" {
		t.Errorf("results = %+v", body.Results)
	}
}

func TestHandlerClientGoneIsNotAServerError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "search")
	writeArtifact(t, dir, firstRecords)
	h := NewHolder(dirOpener(t, dir), nil)
	defer h.Close()
	if err := h.Reload(context.Background(), "startup"); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=lex", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	NewHandler(h, 20, 200).Search(rec, req)

	if rec.Code != statusClientClosedRequest {
		t.Errorf("status = %d, want %d", rec.Code, statusClientClosedRequest)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestHandlerBadRequests(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "search")
	writeArtifact(t, dir, firstRecords)
	h := NewHolder(dirOpener(t, dir), nil)
	defer h.Close()
	if err := h.Reload(context.Background(), "startup"); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	srv := newServer(t, h, 20, 200)

	for _, raw := range []string{"", "q=lex&limit=0", "q=lex&limit=abc", "q=lex&limit=-3", "q=%20%20"} {
		status, body := getSearch(t, srv, raw)
		if status != http.StatusBadRequest {
			t.Errorf("%q: status = %d, want 400", raw, status)
		}
		if body.Error == "" {
			t.Errorf("%q: missing error message", raw)
		}
	}
}

func TestHandlerLimitClampedToMax(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "search")
	writeArtifact(t, dir, firstRecords)
	h := NewHolder(dirOpener(t, dir), nil)
	defer h.Close()
	if err := h.Reload(context.Background(), "startup"); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	srv := newServer(t, h, 1, 2)

	_, body := getSearch(t, srv, "q=l")
	if len(body.Results) != 1 {
		t.Errorf("default limit: got %d results, want 1", len(body.Results))
	}
	_, body = getSearch(t, srv, "q=l&limit=50")
	if len(body.Results) != 2 {
		t.Errorf("clamped limit: got %d results, want 2", len(body.Results))
	}
}

func TestHandlerUnavailableWithoutArtifact(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "search")
	h := NewHolder(dirOpener(t, dir), nil)
	if err := h.Reload(context.Background(), "startup"); err == nil {
		t.Fatal("Reload on a missing artifact should fail")
	}
	srv := newServer(t, h, 20, 200)

	status, body := getSearch(t, srv, "q=lex")
	if status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", status)
	}
	if body.Error == "" {
		t.Error("missing error message")
	}
	if _, err := h.Session(); !errors.Is(err, apperrors.ErrSearchUnavailable) || !errors.Is(err, apperrors.ErrCorruptArtifact) {
		t.Errorf("Session() error = %v, want unavailable wrapping corrupt artifact", err)
	}
}

func TestReloadEndpointPicksUpNewArtifact(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "search")
	writeArtifact(t, dir, firstRecords)
	h := NewHolder(dirOpener(t, dir), nil)
	defer h.Close()
	if err := h.Reload(context.Background(), "startup"); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	srv := newServer(t, h, 20, 200)

	if _, body := getSearch(t, srv, "q=token"); len(body.Results) != 0 {
		t.Fatalf("token found before rebuild: %+v", body.Results)
	}
	writeArtifact(t, dir, append(firstRecords, symbol.Record{Name: "token", Kind: symbol.KindStruct, Target: "structtoken.html"}))

	resp, err := http.Post(srv.URL+"/api/v1/index/reload", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	var stats struct {
		Status  Status       `json:"status"`
		Session *query.Stats `json:"session"`
	}
	err = json.NewDecoder(resp.Body).Decode(&stats)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reload status = %d", resp.StatusCode)
	}
	if stats.Status.Reloads != 2 || !stats.Status.Available {
		t.Errorf("status = %+v", stats.Status)
	}
	if stats.Session == nil || stats.Session.Entries != 5 {
		t.Errorf("session stats = %+v, want 5 entries", stats.Session)
	}

	_, body := getSearch(t, srv, "q=token")
	if len(body.Results) != 1 || body.Results[0].DisplayName != "token" {
		t.Errorf("after reload: %+v", body.Results)
	}
}

func TestFailedReloadKeepsPreviousSession(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "search")
	writeArtifact(t, dir, firstRecords)
	open := dirOpener(t, dir)
	var fail bool
	h := NewHolder(func(ctx context.Context) (*query.Session, error) {
		if fail {
			return nil, apperrors.ErrCorruptArtifact
		}
		return open(ctx)
	}, nil)
	defer h.Close()
	if err := h.Reload(context.Background(), "startup"); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	fail = true
	if err := h.Reload(context.Background(), "api"); !errors.Is(err, apperrors.ErrCorruptArtifact) {
		t.Fatalf("Reload error = %v, want corrupt artifact", err)
	}
	res, err := h.Search(context.Background(), "lex", 10)
	if err != nil {
		t.Fatalf("Search after failed reload: %v", err)
	}
	if len(res.Matches) != 2 {
		t.Errorf("got %d matches, want 2", len(res.Matches))
	}
	st := h.Status()
	if !st.Available || st.LastError == "" || st.Reloads != 2 {
		t.Errorf("status = %+v", st)
	}
}

func TestSearchRetriesAfterSwap(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "search")
	writeArtifact(t, dir, firstRecords)
	h := NewHolder(dirOpener(t, dir), nil)
	defer h.Close()
	if err := h.Reload(context.Background(), "startup"); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	old, _ := h.Session()
	if err := h.Reload(context.Background(), "api"); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, err := old.Search(context.Background(), "lex", 10); !errors.Is(err, apperrors.ErrSessionClosed) {
		t.Errorf("old session error = %v, want session closed", err)
	}
	if _, err := h.Search(context.Background(), "lex", 10); err != nil {
		t.Errorf("holder search: %v", err)
	}
}

type fakeReloader struct {
	mu       sync.Mutex
	triggers []string
	reloaded chan string
}

func newFakeReloader() *fakeReloader {
	return &fakeReloader{reloaded: make(chan string, 16)}
}

func (f *fakeReloader) Reload(ctx context.Context, trigger string) error {
	f.mu.Lock()
	f.triggers = append(f.triggers, trigger)
	f.mu.Unlock()
	f.reloaded <- trigger
	return nil
}

func (f *fakeReloader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.triggers)
}

func TestIndexCompleteHandler(t *testing.T) {
	r := newFakeReloader()
	handle := IndexCompleteHandler(r, "html/search")
	ctx := context.Background()

	event := func(output string) []byte {
		data, _ := json.Marshal(buildlog.Completed{BuildID: "b1", Output: output, Entries: 3})
		return data
	}

	if err := handle(ctx, nil, event("html/search/")); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if err := handle(ctx, nil, event("other/search")); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if err := handle(ctx, nil, []byte("{not json")); err != nil {
		t.Fatalf("undecodable events must not fail the consumer: %v", err)
	}
	if got := r.count(); got != 1 {
		t.Errorf("reloads = %d, want 1", got)
	}
	if trigger := <-r.reloaded; trigger != "kafka" {
		t.Errorf("trigger = %q, want kafka", trigger)
	}
}

func TestWatcherReloadsWhenArtifactReplaced(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "search")
	writeArtifact(t, dir, firstRecords)

	r := newFakeReloader()
	w := NewWatcher(dir, r, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register before replacing the artifact.
	time.Sleep(100 * time.Millisecond)
	writeArtifact(t, dir, firstRecords[:2])

	select {
	case trigger := <-r.reloaded:
		if trigger != "watch" {
			t.Errorf("trigger = %q, want watch", trigger)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after artifact was replaced")
	}
}

func TestNewOpener(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SearchConfig
	}{
		{"unknown scope", config.SearchConfig{Source: "dir", SubstringScope: "everywhere"}},
		{"unknown source", config.SearchConfig{Source: "ftp"}},
		{"http without url", config.SearchConfig{Source: "http"}},
		{"redis without client", config.SearchConfig{Source: "redis"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewOpener(tt.cfg, nil, "docsearch", nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}
