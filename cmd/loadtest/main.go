package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Keystroke   time.Duration
	Limit       int
	Words       []string
}

// Stats counts typeahead traffic. A superseded request is one the simulated
// user typed past before the response arrived; it is cancelled, not an error.
type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	superseded    atomic.Int64
	degraded      atomic.Int64
	emptyResults  atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.superseded.Add(1)
			return
		}
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

var defaultWords = []string{
	"lex",
	"lexer",
	"linedit",
	"morpho_object",
	"value",
	"vm_run",
	"compile",
	"parse_expression",
	"dictionary_insert",
	"error_raise",
	"builtin_function",
	"object_free",
	"string_concat",
	"list_append",
	"matrix",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of simulated users")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	keystroke := flag.Duration("keystroke", 80*time.Millisecond, "delay between keystrokes")
	limit := flag.Int("limit", 10, "results requested per lookup")
	wordsFile := flag.String("words", "", "file with one search term per line (default: built-in list)")
	flag.Parse()

	words := defaultWords
	if *wordsFile != "" {
		loaded, err := loadWords(*wordsFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading words: %v\n", err)
			os.Exit(1)
		}
		words = loaded
	}

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		Keystroke:   *keystroke,
		Limit:       *limit,
		Words:       words,
	}

	fmt.Println("=== Typeahead Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Users:       %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Keystroke:   %s\n", cfg.Keystroke)
	fmt.Printf("Words:       %d unique\n", len(cfg.Words))
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func loadWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if w := strings.TrimSpace(scanner.Text()); w != "" {
			words = append(words, w)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("%s contains no words", path)
	}
	return words, nil
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			wordIdx := workerID
			for ctx.Err() == nil {
				typeWord(ctx, client, cfg, stats, []rune(cfg.Words[wordIdx%len(cfg.Words)]))
				wordIdx++
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

// typeWord sends one lookup per keystroke. Each new keystroke cancels the
// lookup still in flight, the way a search box drops stale responses.
func typeWord(ctx context.Context, client *http.Client, cfg Config, stats *Stats, word []rune) {
	var inflight sync.WaitGroup
	var cancelPrev context.CancelFunc
	for i := 1; i <= len(word); i++ {
		if cancelPrev != nil {
			cancelPrev()
		}
		reqCtx, cancel := context.WithCancel(ctx)
		cancelPrev = cancel

		inflight.Add(1)
		go func(q string) {
			defer inflight.Done()
			lookup(reqCtx, client, cfg, stats, q)
		}(string(word[:i]))

		select {
		case <-ctx.Done():
		case <-time.After(cfg.Keystroke):
		}
	}
	inflight.Wait()
	if cancelPrev != nil {
		cancelPrev()
	}
}

func lookup(ctx context.Context, client *http.Client, cfg Config, stats *Stats, q string) {
	searchURL := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", cfg.BaseURL, url.QueryEscape(q), cfg.Limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		stats.RecordRequest(0, 0, err)
		return
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		stats.RecordRequest(time.Since(start), 0, err)
		return
	}
	defer resp.Body.Close()

	var body struct {
		Results  []json.RawMessage `json:"results"`
		Degraded bool              `json:"degraded"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	duration := time.Since(start)
	if errors.Is(decodeErr, context.Canceled) || ctx.Err() != nil {
		stats.RecordRequest(duration, 0, context.Canceled)
		return
	}
	stats.RecordRequest(duration, resp.StatusCode, nil)
	if resp.StatusCode == http.StatusOK && decodeErr == nil {
		if body.Degraded {
			stats.degraded.Add(1)
		}
		if len(body.Results) == 0 {
			stats.emptyResults.Add(1)
		}
	}
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()
	superseded := stats.superseded.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Lookups:   %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Superseded:      %d\n", superseded)
	fmt.Printf("Errors:          %d\n", errors)
	fmt.Printf("Degraded:        %d\n", stats.degraded.Load())
	fmt.Printf("No Matches:      %d\n", stats.emptyResults.Load())

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Lookups/sec:     %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency (completed lookups) ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		stddev := time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
		fmt.Printf("StdDev: %s\n", stddev)
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := stats.statusCodes[code].Load()
		fmt.Printf("  %d: %d\n", code, count)
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No lookups completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
