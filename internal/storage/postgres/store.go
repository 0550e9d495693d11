// Package postgres provides the Postgres-backed channel store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/openvideo/channelindex/internal/channel"
	"github.com/openvideo/channelindex/internal/metrics"
)

var (
	validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	tsquerySpecial = regexp.MustCompile(`[!'()|&]`)
)

// StoreConfig controls the Postgres connection pool used for channel rows.
type StoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements channel.Store on top of a pgx pool. The full-text
// projection is maintained by a database trigger, so every committed write is
// immediately searchable.
type Store struct {
	pool   dbPool
	table  string
	logger *zap.Logger
}

// NewStore creates a Postgres-backed Store using the provided config.
func NewStore(ctx context.Context, cfg StoreConfig, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "channels"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, table: table, logger: logger}, nil
}

// NewStoreWithPool constructs a Store from an existing pool (primarily for testing).
func NewStoreWithPool(pool dbPool, table string, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "channels"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, table: table, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// HasChannel reports whether a row with the handle exists.
func (s *Store) HasChannel(ctx context.Context, handle string) (bool, error) {
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE channel_handle = $1`, s.table)
	var one int
	err := s.pool.QueryRow(ctx, query, handle).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup channel %q: %w", handle, err)
	}
	return true, nil
}

// InsertChannel writes a new row, leaving any existing row with the same
// handle untouched. The trigger recomputes the fts projection in the same
// statement, so the row is searchable as soon as the insert commits.
func (s *Store) InsertChannel(ctx context.Context, ch channel.Channel) (bool, error) {
	if ch.Handle == "" {
		return false, fmt.Errorf("channel handle is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	channel_handle,
	channel_url,
	channel_name,
	video_count,
	join_date,
	last_modified,
	logo_url,
	description
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)
ON CONFLICT (channel_handle) DO NOTHING`, s.table)

	tag, err := s.pool.Exec(ctx, query,
		ch.Handle,
		ch.URL,
		ch.Name,
		ch.VideoCount,
		ch.JoinDate,
		ch.LastModified,
		ch.LogoURL,
		ch.Description,
	)
	if err != nil {
		return false, fmt.Errorf("insert channel %q: %w", ch.Handle, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Search runs a full-text OR-query over the trigger-maintained projection,
// falling back to a case-insensitive substring match when the sanitized query
// has no tokens or the engine rejects it.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]channel.Channel, error) {
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	tsQuery := SanitizeQuery(query)
	if tsQuery == "" {
		return s.substringSearch(ctx, query, limit)
	}

	sql := fmt.Sprintf(`
SELECT channel_handle, channel_name, video_count,
       join_date, channel_url, description, logo_url
FROM %s
WHERE fts_document @@ to_tsquery('english', $1)
ORDER BY video_count DESC NULLS LAST
LIMIT $2`, s.table)

	results, err := s.queryChannels(ctx, sql, tsQuery, limit)
	if err != nil {
		s.logger.Warn("full-text search failed, using substring fallback",
			zap.String("query", query), zap.Error(err))
		return s.substringSearch(ctx, query, limit)
	}
	return results, nil
}

func (s *Store) substringSearch(ctx context.Context, query string, limit int) ([]channel.Channel, error) {
	metrics.ObserveSearchFallback()
	pattern := "%" + query + "%"
	sql := fmt.Sprintf(`
SELECT channel_handle, channel_name, video_count,
       join_date, channel_url, description, logo_url
FROM %s
WHERE channel_name ILIKE $1
   OR channel_handle ILIKE $1
   OR description ILIKE $1
ORDER BY video_count DESC NULLS LAST
LIMIT $2`, s.table)

	results, err := s.queryChannels(ctx, sql, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("substring search: %w", err)
	}
	return results, nil
}

func (s *Store) queryChannels(ctx context.Context, sql string, pattern string, limit int) ([]channel.Channel, error) {
	rows, err := s.pool.Query(ctx, sql, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []channel.Channel
	for rows.Next() {
		var ch channel.Channel
		if err := rows.Scan(
			&ch.Handle,
			&ch.Name,
			&ch.VideoCount,
			&ch.JoinDate,
			&ch.URL,
			&ch.Description,
			&ch.LogoURL,
		); err != nil {
			return nil, fmt.Errorf("scan channel row: %w", err)
		}
		results = append(results, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Autocomplete suggests channels whose name or handle contains the query,
// deduplicated by display text. Queries shorter than two characters yield no
// suggestions.
func (s *Store) Autocomplete(ctx context.Context, query string, limit int) ([]channel.Suggestion, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	sql := fmt.Sprintf(`
SELECT DISTINCT channel_name, channel_handle, video_count
FROM %s
WHERE channel_name ILIKE $1 OR channel_handle ILIKE $1
ORDER BY video_count DESC NULLS LAST
LIMIT $2`, s.table)

	rows, err := s.pool.Query(ctx, sql, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("autocomplete: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var suggestions []channel.Suggestion
	for rows.Next() {
		var (
			name       *string
			handle     string
			videoCount *int
		)
		if err := rows.Scan(&name, &handle, &videoCount); err != nil {
			return nil, fmt.Errorf("scan suggestion row: %w", err)
		}
		text := handle
		if name != nil && *name != "" {
			text = *name
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		suggestions = append(suggestions, channel.Suggestion{
			Text:       text,
			Handle:     handle,
			VideoCount: videoCount,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suggestions, nil
}

// Stats computes index totals fresh on every call. The average covers only
// rows with a video count and is rounded to one decimal place.
func (s *Store) Stats(ctx context.Context) (channel.Stats, error) {
	var stats channel.Stats

	countSQL := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)
	if err := s.pool.QueryRow(ctx, countSQL).Scan(&stats.TotalChannels); err != nil {
		return channel.Stats{}, fmt.Errorf("count channels: %w", err)
	}

	videoSQL := fmt.Sprintf(`
SELECT COALESCE(SUM(video_count), 0), COUNT(video_count)
FROM %s
WHERE video_count IS NOT NULL`, s.table)
	var counted int64
	if err := s.pool.QueryRow(ctx, videoSQL).Scan(&stats.TotalVideos, &counted); err != nil {
		return channel.Stats{}, fmt.Errorf("sum video counts: %w", err)
	}
	if counted > 0 {
		stats.AvgVideos = math.Round(float64(stats.TotalVideos)/float64(counted)*10) / 10
	}
	return stats, nil
}

// ListChannels returns every indexed row ordered by video count descending,
// the order the JSON export uses.
func (s *Store) ListChannels(ctx context.Context) ([]channel.Channel, error) {
	sql := fmt.Sprintf(`
SELECT channel_handle, channel_url, channel_name, video_count,
       join_date, last_modified, logo_url, description, scraped_at
FROM %s
ORDER BY video_count DESC NULLS LAST`, s.table)

	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var channels []channel.Channel
	for rows.Next() {
		var ch channel.Channel
		if err := rows.Scan(
			&ch.Handle,
			&ch.URL,
			&ch.Name,
			&ch.VideoCount,
			&ch.JoinDate,
			&ch.LastModified,
			&ch.LogoURL,
			&ch.Description,
			&ch.ScrapedAt,
		); err != nil {
			return nil, fmt.Errorf("scan channel row: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return channels, nil
}

// SanitizeQuery strips tsquery operator characters, tokenizes on whitespace
// and joins the tokens as an OR-query. An empty result means the caller
// should use the substring fallback instead of the full-text path.
func SanitizeQuery(query string) string {
	cleaned := tsquerySpecial.ReplaceAllString(query, " ")
	tokens := strings.Fields(cleaned)
	return strings.Join(tokens, " | ")
}
