// Package chread provides read access to the policy_events table for
// the introspection endpoints. It holds its own ClickHouse connection,
// separate from the async writer.
package chread

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader queries the policy_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow represents a single row from the policy_events table.
type EventRow struct {
	RequestID           string    `json:"request_id"`
	Identity            string    `json:"identity"`
	Timestamp           time.Time `json:"timestamp"`
	Stage               string    `json:"stage"`
	Domain              string    `json:"domain"`
	Mode                string    `json:"mode"`
	Outcome             string    `json:"outcome"`
	Safe                uint8     `json:"safe"`
	Confidence          float64   `json:"confidence"`
	CrisisSignal        uint8     `json:"crisis_signal"`
	ViolationCategories []string  `json:"violation_categories"`
	ViolationSeverities []string  `json:"violation_severities"`
	ViolationRules      []string  `json:"violation_rules"`
	ViolationMatches    []string  `json:"violation_matches"`
	RulesVersion        string    `json:"rules_version"`
	TextPreview         string    `json:"text_preview"`
	TextHash            string    `json:"text_hash"`
	TextSize            uint32    `json:"text_size"`
	LatencyMs           float32   `json:"latency_ms"`
}

const eventColumns = "request_id, identity, timestamp, stage, domain, mode, outcome, " +
	"safe, confidence, crisis_signal, " +
	"violation_categories, violation_severities, violation_rules, violation_matches, " +
	"rules_version, text_preview, text_hash, text_size, latency_ms"

func scanEvent(rows interface{ Scan(dest ...any) error }, e *EventRow) error {
	return rows.Scan(
		&e.RequestID, &e.Identity, &e.Timestamp, &e.Stage, &e.Domain, &e.Mode, &e.Outcome,
		&e.Safe, &e.Confidence, &e.CrisisSignal,
		&e.ViolationCategories, &e.ViolationSeverities, &e.ViolationRules, &e.ViolationMatches,
		&e.RulesVersion, &e.TextPreview, &e.TextHash, &e.TextSize, &e.LatencyMs,
	)
}

// ListEventsParams holds filters and pagination for event listing.
type ListEventsParams struct {
	Identity  *string
	Stage     *string
	Outcome   *string
	Category  *string
	Crisis    *bool
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}

// ListEvents returns paginated, filtered policy events and the total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	conditions := []string{"1 = 1"}
	args := []any{}

	if params.Identity != nil {
		conditions = append(conditions, "identity = @identity")
		args = append(args, clickhouse.Named("identity", *params.Identity))
	}
	if params.Stage != nil {
		conditions = append(conditions, "stage = @stage")
		args = append(args, clickhouse.Named("stage", *params.Stage))
	}
	if params.Outcome != nil {
		conditions = append(conditions, "outcome = @outcome")
		args = append(args, clickhouse.Named("outcome", *params.Outcome))
	}
	if params.Category != nil {
		conditions = append(conditions, "has(violation_categories, @category)")
		args = append(args, clickhouse.Named("category", *params.Category))
	}
	if params.Crisis != nil {
		var v uint8
		if *params.Crisis {
			v = 1
		}
		conditions = append(conditions, "crisis_signal = @crisis")
		args = append(args, clickhouse.Named("crisis", v))
	}
	if params.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}

	where := strings.Join(conditions, " AND ")
	offset := (params.Page - 1) * params.PageSize

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM policy_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM policy_events WHERE %s ORDER BY timestamp DESC LIMIT @limit OFFSET @offset",
		eventColumns, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := scanEvent(rows, &e); err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}

	return events, int(total), rows.Err()
}

// GetEvent returns the events recorded for one request ID (input and
// output stage), or an empty slice if none exist.
func (r *Reader) GetEvent(ctx context.Context, requestID string) ([]EventRow, error) {
	rows, err := r.conn.Query(ctx,
		fmt.Sprintf("SELECT %s FROM policy_events WHERE request_id = @request_id ORDER BY timestamp", eventColumns),
		clickhouse.Named("request_id", requestID),
	)
	if err != nil {
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := scanEvent(rows, &e); err != nil {
			return nil, fmt.Errorf("GetEvent scan: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// SummaryStats holds aggregate outcome counts.
type SummaryStats struct {
	TotalScored  int `json:"total_scored"`
	Blocked      int `json:"blocked"`
	Annotated    int `json:"annotated"`
	CrisisEvents int `json:"crisis_events"`
}

// TimeSeriesBucket holds an hourly count.
type TimeSeriesBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// CategoryCount holds a violation category and its count.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// RuleCount holds a rule ID and its count.
type RuleCount struct {
	Rule  string `json:"rule"`
	Count int    `json:"count"`
}

// LatencyStats holds scoring latency percentiles.
type LatencyStats struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// IdentityCount holds an identity and its count.
type IdentityCount struct {
	Identity string `json:"identity"`
	Count    int    `json:"count"`
}

// AnalyticsResult holds all analytics aggregations.
type AnalyticsResult struct {
	Summary            SummaryStats       `json:"summary"`
	BlocksOverTime     []TimeSeriesBucket `json:"blocks_over_time"`
	TopCategories      []CategoryCount    `json:"top_categories"`
	TopRules           []RuleCount        `json:"top_rules"`
	LatencyPercentiles LatencyStats       `json:"latency_percentiles"`
	TopBlockedClients  []IdentityCount    `json:"top_blocked_clients"`
}

// GetAnalytics returns aggregated analytics over the given number of days.
func (r *Reader) GetAnalytics(ctx context.Context, days int) (*AnalyticsResult, error) {
	now := time.Now().UTC()
	rangeStart := now.Add(-time.Duration(days) * 24 * time.Hour)
	dayStart := now.Add(-24 * time.Hour)

	baseArgs := []any{
		clickhouse.Named("range_start", rangeStart),
	}

	result := &AnalyticsResult{}

	var totalScored, blocked, annotated, crisis uint64
	err := r.conn.QueryRow(ctx,
		"SELECT count() as total_scored, "+
			"countIf(outcome IN ('blocked-on-input', 'blocked-on-output')) as blocked, "+
			"countIf(outcome = 'passed-through-annotated') as annotated, "+
			"countIf(crisis_signal = 1) as crisis_events "+
			"FROM policy_events "+
			"WHERE timestamp >= @range_start",
		baseArgs...,
	).Scan(&totalScored, &blocked, &annotated, &crisis)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics summary: %w", err)
	}
	result.Summary = SummaryStats{
		TotalScored:  int(totalScored),
		Blocked:      int(blocked),
		Annotated:    int(annotated),
		CrisisEvents: int(crisis),
	}

	botRows, err := r.conn.Query(ctx,
		"SELECT toStartOfHour(timestamp) as hour, count() as count "+
			"FROM policy_events "+
			"WHERE outcome IN ('blocked-on-input', 'blocked-on-output') "+
			"AND timestamp >= @range_start "+
			"GROUP BY hour ORDER BY hour",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics blocks_over_time: %w", err)
	}
	defer func() { _ = botRows.Close() }()
	for botRows.Next() {
		var hour time.Time
		var count uint64
		if err := botRows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics blocks_over_time scan: %w", err)
		}
		result.BlocksOverTime = append(result.BlocksOverTime, TimeSeriesBucket{
			Hour:  hour.Format(time.RFC3339),
			Count: int(count),
		})
	}

	catRows, err := r.conn.Query(ctx,
		"SELECT arrayJoin(violation_categories) as category, count() as count "+
			"FROM policy_events "+
			"WHERE safe = 0 AND timestamp >= @range_start "+
			"GROUP BY category ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_categories: %w", err)
	}
	defer func() { _ = catRows.Close() }()
	for catRows.Next() {
		var cat string
		var count uint64
		if err := catRows.Scan(&cat, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_categories scan: %w", err)
		}
		result.TopCategories = append(result.TopCategories, CategoryCount{
			Category: cat, Count: int(count),
		})
	}

	ruleRows, err := r.conn.Query(ctx,
		"SELECT arrayJoin(violation_rules) as rule, count() as count "+
			"FROM policy_events "+
			"WHERE safe = 0 AND timestamp >= @range_start "+
			"GROUP BY rule ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_rules: %w", err)
	}
	defer func() { _ = ruleRows.Close() }()
	for ruleRows.Next() {
		var rule string
		var count uint64
		if err := ruleRows.Scan(&rule, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_rules scan: %w", err)
		}
		result.TopRules = append(result.TopRules, RuleCount{
			Rule: rule, Count: int(count),
		})
	}

	var p50, p95, p99 float64
	err = r.conn.QueryRow(ctx,
		"SELECT quantile(0.5)(latency_ms) as p50, "+
			"quantile(0.95)(latency_ms) as p95, "+
			"quantile(0.99)(latency_ms) as p99 "+
			"FROM policy_events "+
			"WHERE timestamp >= @day_start",
		clickhouse.Named("day_start", dayStart),
	).Scan(&p50, &p95, &p99)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics latency: %w", err)
	}
	result.LatencyPercentiles = LatencyStats{
		P50: safeFloat(p50), P95: safeFloat(p95), P99: safeFloat(p99),
	}

	userRows, err := r.conn.Query(ctx,
		"SELECT identity, count() as count "+
			"FROM policy_events "+
			"WHERE outcome IN ('blocked-on-input', 'blocked-on-output') "+
			"AND identity != '' AND timestamp >= @range_start "+
			"GROUP BY identity ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_blocked_clients: %w", err)
	}
	defer func() { _ = userRows.Close() }()
	for userRows.Next() {
		var id string
		var count uint64
		if err := userRows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_blocked_clients scan: %w", err)
		}
		result.TopBlockedClients = append(result.TopBlockedClients, IdentityCount{
			Identity: id, Count: int(count),
		})
	}

	// Ensure slices are non-nil for JSON serialization
	if result.BlocksOverTime == nil {
		result.BlocksOverTime = []TimeSeriesBucket{}
	}
	if result.TopCategories == nil {
		result.TopCategories = []CategoryCount{}
	}
	if result.TopRules == nil {
		result.TopRules = []RuleCount{}
	}
	if result.TopBlockedClients == nil {
		result.TopBlockedClients = []IdentityCount{}
	}

	return result, nil
}

// safeFloat replaces NaN/Inf with 0.0.
// ClickHouse returns NaN for quantile() on empty result sets.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}
