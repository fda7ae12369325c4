// Package telemetry collects in-process gateway metrics for the stats
// endpoint. All data stays local; nothing is reported externally.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a search latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// SearchEvent is one recorded search for metrics aggregation.
type SearchEvent struct {
	EntityType  string
	Query       string
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult returns true if this search returned no results.
func (e SearchEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity

	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items in FIFO order (oldest first).
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms extracts searchable terms from a query string.
// Terms are lowercased and filtered to minimum length 3.
func ExtractTerms(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var terms []string
	for _, w := range strings.Fields(query) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a query term and its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable view of the collected metrics.
type Snapshot struct {
	SearchesByType      map[string]int64        `json:"searches_by_type"`
	UpsertsByType       map[string]int64        `json:"upserts_by_type"`
	DeletesByType       map[string]int64        `json:"deletes_by_type"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	TotalSearches       int64                   `json:"total_searches"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	ExactRepeatRate     float64                 `json:"exact_repeat_rate"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the percentage of zero-result searches.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalSearches == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalSearches) * 100
}

// Config sizes the metrics collector's bounded structures.
type Config struct {
	TopTermsCapacity      int // max distinct terms tracked (default: 100)
	ZeroResultsCapacity   int // max zero-result queries kept (default: 100)
	RecentQueriesCapacity int // max query hashes for repeat detection (default: 500)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
	}
}

// Metrics aggregates gateway activity. Thread-safe.
type Metrics struct {
	mu sync.RWMutex

	searchesByType map[string]int64
	upsertsByType  map[string]int64
	deletesByType  map[string]int64
	latencies      map[LatencyBucket]int64

	topTerms    *lru.Cache[string, int64]
	zeroResults *CircularBuffer[string]

	recentQueries    *lru.Cache[string, struct{}]
	exactRepeatCount int64

	totalSearches   int64
	zeroResultCount int64
	startTime       time.Time
}

// New creates a metrics collector with default configuration.
func New() *Metrics {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a metrics collector with custom capacities.
func NewWithConfig(cfg Config) *Metrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = 500
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recentQueries, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	return &Metrics{
		searchesByType: make(map[string]int64),
		upsertsByType:  make(map[string]int64),
		deletesByType:  make(map[string]int64),
		latencies:      make(map[LatencyBucket]int64),
		topTerms:       topTerms,
		zeroResults:    NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		recentQueries:  recentQueries,
		startTime:      time.Now(),
	}
}

// RecordSearch captures one search event.
func (m *Metrics) RecordSearch(event SearchEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.searchesByType[event.EntityType]++
	m.totalSearches++
	m.latencies[LatencyToBucket(event.Latency)]++

	for _, term := range ExtractTerms(event.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}

	if event.IsZeroResult() {
		m.zeroResults.Add(event.Query)
		m.zeroResultCount++
	}

	hash := hashQuery(event.Query)
	if _, seen := m.recentQueries.Get(hash); seen {
		m.exactRepeatCount++
	}
	m.recentQueries.Add(hash, struct{}{})
}

// RecordUpsert counts one upsert for the entity type.
func (m *Metrics) RecordUpsert(entityType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertsByType[entityType]++
}

// RecordDelete counts one delete for the entity type.
func (m *Metrics) RecordDelete(entityType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletesByType[entityType]++
}

// Snapshot returns the current metrics for reporting.
func (m *Metrics) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	searches := make(map[string]int64, len(m.searchesByType))
	for k, v := range m.searchesByType {
		searches[k] = v
	}
	upserts := make(map[string]int64, len(m.upsertsByType))
	for k, v := range m.upsertsByType {
		upserts[k] = v
	}
	deletes := make(map[string]int64, len(m.deletesByType))
	for k, v := range m.deletesByType {
		deletes[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	var topTerms []TermCount
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	sort.Slice(topTerms, func(i, j int) bool {
		if topTerms[i].Count != topTerms[j].Count {
			return topTerms[i].Count > topTerms[j].Count
		}
		return topTerms[i].Term < topTerms[j].Term
	})

	var exactRepeatRate float64
	if m.totalSearches > 0 {
		exactRepeatRate = float64(m.exactRepeatCount) / float64(m.totalSearches)
	}

	return &Snapshot{
		SearchesByType:      searches,
		UpsertsByType:       upserts,
		DeletesByType:       deletes,
		LatencyDistribution: latencies,
		TopTerms:            topTerms,
		ZeroResultQueries:   m.zeroResults.Items(),
		TotalSearches:       m.totalSearches,
		ZeroResultCount:     m.zeroResultCount,
		ExactRepeatCount:    m.exactRepeatCount,
		ExactRepeatRate:     exactRepeatRate,
		Since:               m.startTime,
	}
}

// hashQuery normalizes and hashes a query for repeat detection.
func hashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:16])
}
