package observability

import (
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"pritecards/internal/dedup"
	"pritecards/internal/platform/logger"
	"pritecards/internal/question"
)

type key struct {
	Method string
	Path   string
	Status int
}

type stat struct {
	Count     int64
	LatencyMS float64
}

type scanTotals struct {
	Scans             int64
	Candidates        int64
	Duplicates        int64
	Comparisons       int64
	RecoveredFailures int64
	ElapsedMS         float64
}

type commitTotals struct {
	Commits  int64
	Inserted int64
	Updated  int64
}

type Collector struct {
	db  *sql.DB
	log *logger.Logger

	mu           sync.RWMutex
	requestStats map[key]stat
	scans        scanTotals
	commits      commitTotals
	startedAt    time.Time
}

func NewCollector(db *sql.DB, log *logger.Logger) *Collector {
	if log == nil {
		log = logger.Nop()
	}
	return &Collector{
		db:           db,
		log:          log.With("component", "http"),
		requestStats: make(map[key]stat),
		startedAt:    time.Now(),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
		path := normalizedPath(r.URL.Path)

		c.mu.Lock()
		k := key{Method: r.Method, Path: path, Status: rec.status}
		s := c.requestStats[k]
		s.Count++
		s.LatencyMS += latencyMS
		c.requestStats[k] = s
		c.mu.Unlock()

		kv := []interface{}{
			"request_id", middleware.GetReqID(r.Context()),
			"import_id", extractImportID(r.URL.Path),
			"method", r.Method,
			"path", path,
			"status", rec.status,
			"latency_ms", latencyMS,
			"remote_ip", strings.TrimSpace(r.RemoteAddr),
		}
		switch {
		case rec.status >= 500:
			c.log.Error("http request", kv...)
		case rec.status >= 400:
			c.log.Warn("http request", kv...)
		default:
			c.log.Info("http request", kv...)
		}
	})
}

// RecordScan accumulates duplicate scan totals.
func (c *Collector) RecordScan(stats dedup.ScanStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scans.Scans++
	c.scans.Candidates += int64(stats.Candidates)
	c.scans.Duplicates += int64(stats.Duplicates)
	c.scans.Comparisons += int64(stats.Comparisons)
	c.scans.RecoveredFailures += int64(stats.RecoveredFailures)
	c.scans.ElapsedMS += float64(stats.Elapsed.Microseconds()) / 1000.0
}

// RecordCommit accumulates persisted batch totals.
func (c *Collector) RecordCommit(report question.SaveReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commits.Commits++
	c.commits.Inserted += int64(report.Inserted)
	c.commits.Updated += int64(report.Updated)
}

func (c *Collector) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	statsCopy := make(map[key]stat, len(c.requestStats))
	for k, v := range c.requestStats {
		statsCopy[k] = v
	}
	scans := c.scans
	commits := c.commits
	startedAt := c.startedAt
	c.mu.RUnlock()

	keys := make([]key, 0, len(statsCopy))
	for k := range statsCopy {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Method != keys[j].Method {
			return keys[i].Method < keys[j].Method
		}
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Status < keys[j].Status
	})

	var sb strings.Builder
	sb.WriteString("# pritecards observability metrics\n")
	sb.WriteString("# TYPE pritecards_uptime_seconds gauge\n")
	sb.WriteString(fmt.Sprintf("pritecards_uptime_seconds %.0f\n", time.Since(startedAt).Seconds()))

	sb.WriteString("# TYPE pritecards_http_requests_total counter\n")
	sb.WriteString("# TYPE pritecards_http_request_latency_ms_sum counter\n")
	sb.WriteString("# TYPE pritecards_http_request_latency_ms_avg gauge\n")
	for _, k := range keys {
		s := statsCopy[k]
		labels := fmt.Sprintf("method=\"%s\",path=\"%s\",status=\"%d\"", k.Method, k.Path, k.Status)
		sb.WriteString(fmt.Sprintf("pritecards_http_requests_total{%s} %d\n", labels, s.Count))
		sb.WriteString(fmt.Sprintf("pritecards_http_request_latency_ms_sum{%s} %.3f\n", labels, s.LatencyMS))
		avg := 0.0
		if s.Count > 0 {
			avg = s.LatencyMS / float64(s.Count)
		}
		sb.WriteString(fmt.Sprintf("pritecards_http_request_latency_ms_avg{%s} %.3f\n", labels, avg))
	}

	sb.WriteString("# TYPE pritecards_scans_total counter\n")
	sb.WriteString(fmt.Sprintf("pritecards_scans_total %d\n", scans.Scans))
	sb.WriteString("# TYPE pritecards_scan_candidates_total counter\n")
	sb.WriteString(fmt.Sprintf("pritecards_scan_candidates_total %d\n", scans.Candidates))
	sb.WriteString("# TYPE pritecards_scan_duplicates_total counter\n")
	sb.WriteString(fmt.Sprintf("pritecards_scan_duplicates_total %d\n", scans.Duplicates))
	sb.WriteString("# TYPE pritecards_scan_comparisons_total counter\n")
	sb.WriteString(fmt.Sprintf("pritecards_scan_comparisons_total %d\n", scans.Comparisons))
	sb.WriteString("# TYPE pritecards_scan_recovered_failures_total counter\n")
	sb.WriteString(fmt.Sprintf("pritecards_scan_recovered_failures_total %d\n", scans.RecoveredFailures))
	sb.WriteString("# TYPE pritecards_scan_elapsed_ms_sum counter\n")
	sb.WriteString(fmt.Sprintf("pritecards_scan_elapsed_ms_sum %.3f\n", scans.ElapsedMS))
	sb.WriteString("# TYPE pritecards_commits_total counter\n")
	sb.WriteString(fmt.Sprintf("pritecards_commits_total %d\n", commits.Commits))
	sb.WriteString("# TYPE pritecards_questions_inserted_total counter\n")
	sb.WriteString(fmt.Sprintf("pritecards_questions_inserted_total %d\n", commits.Inserted))
	sb.WriteString("# TYPE pritecards_questions_updated_total counter\n")
	sb.WriteString(fmt.Sprintf("pritecards_questions_updated_total %d\n", commits.Updated))

	if c.db != nil {
		dbs := c.db.Stats()
		sb.WriteString("# TYPE pritecards_db_open_connections gauge\n")
		sb.WriteString(fmt.Sprintf("pritecards_db_open_connections %d\n", dbs.OpenConnections))
		sb.WriteString("# TYPE pritecards_db_in_use_connections gauge\n")
		sb.WriteString(fmt.Sprintf("pritecards_db_in_use_connections %d\n", dbs.InUse))
		sb.WriteString("# TYPE pritecards_db_idle_connections gauge\n")
		sb.WriteString(fmt.Sprintf("pritecards_db_idle_connections %d\n", dbs.Idle))
		sb.WriteString("# TYPE pritecards_db_wait_count counter\n")
		sb.WriteString(fmt.Sprintf("pritecards_db_wait_count %d\n", dbs.WaitCount))
		sb.WriteString("# TYPE pritecards_db_wait_duration_ms counter\n")
		sb.WriteString(fmt.Sprintf("pritecards_db_wait_duration_ms %.3f\n", float64(dbs.WaitDuration.Microseconds())/1000.0))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

// normalizedPath collapses uuid segments so metrics keep a bounded label set.
func normalizedPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := uuid.Parse(p); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func extractImportID(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "imports" && parts[i+1] != "scan" {
			return parts[i+1]
		}
	}
	return ""
}
