package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voyagen/epgvault/internal/models"
)

// pgUniqueViolation is SQLSTATE unique_violation.
const pgUniqueViolation = "23505"

func isPgUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ping checks the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

const pgProviderColumns = `id, name, url, enabled, last_import_status, last_import_at, created_at, updated_at`

func scanPgProvider(row pgx.Row) (*models.Provider, error) {
	var pr models.Provider
	err := row.Scan(&pr.ID, &pr.Name, &pr.URL, &pr.Enabled, &pr.LastImportStatus, &pr.LastImportAt, &pr.CreatedAt, &pr.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

func (p *Postgres) listProviders(ctx context.Context, where string) ([]models.Provider, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+pgProviderColumns+` FROM providers `+where+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Provider
	for rows.Next() {
		pr, err := scanPgProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pr)
	}
	return out, rows.Err()
}

// ListProviders returns all providers.
func (p *Postgres) ListProviders(ctx context.Context) ([]models.Provider, error) {
	out, err := p.listProviders(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("ListProviders: %w", err)
	}
	return out, nil
}

// ListEnabledProviders returns providers the scheduler should import.
func (p *Postgres) ListEnabledProviders(ctx context.Context) ([]models.Provider, error) {
	out, err := p.listProviders(ctx, "WHERE enabled")
	if err != nil {
		return nil, fmt.Errorf("ListEnabledProviders: %w", err)
	}
	return out, nil
}

// GetProviderByID returns a single provider by id.
func (p *Postgres) GetProviderByID(ctx context.Context, providerID int64) (*models.Provider, error) {
	pr, err := scanPgProvider(p.pool.QueryRow(ctx, `SELECT `+pgProviderColumns+` FROM providers WHERE id = $1`, providerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetProviderByID: %w", err)
	}
	return pr, nil
}

// CreateProvider inserts a provider; a duplicate name yields ErrConflict.
func (p *Postgres) CreateProvider(ctx context.Context, pr *models.Provider) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO providers (name, url, enabled) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING
		 RETURNING id`,
		pr.Name, pr.URL, pr.Enabled,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrConflict
	}
	if err != nil {
		return 0, fmt.Errorf("CreateProvider: %w", err)
	}
	return id, nil
}

// UpdateProvider updates the fields set in fields.
func (p *Postgres) UpdateProvider(ctx context.Context, providerID int64, fields ProviderUpdate) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if fields.Name != nil {
		add("name", *fields.Name)
	}
	if fields.URL != nil {
		add("url", *fields.URL)
	}
	if fields.Enabled != nil {
		add("enabled", *fields.Enabled)
	}
	args = append(args, providerID)
	tag, err := p.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE providers SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args)),
		args...,
	)
	if isPgUnique(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("UpdateProvider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProvider deletes a provider; mappings and log entries cascade.
func (p *Postgres) DeleteProvider(ctx context.Context, providerID int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM providers WHERE id = $1`, providerID)
	if err != nil {
		return fmt.Errorf("DeleteProvider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProviderImportStatus records the latest import outcome on the provider.
func (p *Postgres) SetProviderImportStatus(ctx context.Context, providerID int64, status string, at time.Time) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE providers SET last_import_status = $1, last_import_at = $2, updated_at = NOW() WHERE id = $3`,
		status, at, providerID,
	)
	if err != nil {
		return fmt.Errorf("SetProviderImportStatus: %w", err)
	}
	return nil
}

// LookupChannelMapping returns the channel mapped to a provider channel id.
func (p *Postgres) LookupChannelMapping(ctx context.Context, providerID int64, providerChannelID string) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`SELECT channel_id FROM channel_mappings WHERE provider_id = $1 AND provider_channel_id = $2`,
		providerID, providerChannelID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("LookupChannelMapping: %w", err)
	}
	return id, nil
}

// CreateMappedChannel gets or creates the channel named providerChannelID and
// maps it for the provider. Returns ErrConflict if the mapping already exists.
func (p *Postgres) CreateMappedChannel(ctx context.Context, providerID int64, providerChannelID, displayName string, iconURL *string) (int64, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("CreateMappedChannel: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var channelID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO channels (name, display_name, icon_url) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET icon_url = COALESCE(channels.icon_url, EXCLUDED.icon_url)
		 RETURNING id`,
		providerChannelID, displayName, iconURL,
	).Scan(&channelID)
	if err != nil {
		return 0, fmt.Errorf("CreateMappedChannel: channel: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO channel_mappings (provider_id, provider_channel_id, channel_id) VALUES ($1, $2, $3)
		 ON CONFLICT (provider_id, provider_channel_id) DO NOTHING`,
		providerID, providerChannelID, channelID,
	)
	if err != nil {
		return 0, fmt.Errorf("CreateMappedChannel: mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrConflict
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("CreateMappedChannel: commit: %w", err)
	}
	return channelID, nil
}

// GetChannelByID returns a single channel by id.
func (p *Postgres) GetChannelByID(ctx context.Context, channelID int64) (*models.Channel, error) {
	var ch models.Channel
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, display_name, icon_url, created_at FROM channels WHERE id = $1`, channelID,
	).Scan(&ch.ID, &ch.Name, &ch.DisplayName, &ch.IconURL, &ch.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetChannelByID: %w", err)
	}
	return &ch, nil
}

// ListChannels returns channels matching the filter and the total count.
func (p *Postgres) ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ProviderID != nil {
		args = append(args, *filter.ProviderID)
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM channel_mappings m WHERE m.channel_id = c.id AND m.provider_id = $%d)", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("(c.name ILIKE $%d OR c.display_name ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM channels c `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListChannels count: %w", err)
	}

	args = append(args, normalizeLimit(filter.Limit), max(filter.Offset, 0))
	rows, err := p.pool.Query(ctx,
		fmt.Sprintf(`SELECT c.id, c.name, c.display_name, c.icon_url, c.created_at FROM channels c %s
		 ORDER BY c.display_name, c.id LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListChannels: %w", err)
	}
	defer rows.Close()
	out := []models.Channel{}
	for rows.Next() {
		var ch models.Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.DisplayName, &ch.IconURL, &ch.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("ListChannels scan: %w", err)
		}
		out = append(out, ch)
	}
	return out, total, rows.Err()
}

// ResolveChannel finds a channel by id, name or alias.
func (p *Postgres) ResolveChannel(ctx context.Context, identifier string) (*models.Channel, error) {
	return resolveChannel(ctx, p, identifier)
}

func (p *Postgres) channelByName(ctx context.Context, name string) (*models.Channel, error) {
	return p.queryChannel(ctx, "channelByName",
		`SELECT id, name, display_name, icon_url, created_at FROM channels WHERE name = $1`, name)
}

func (p *Postgres) channelByAlias(ctx context.Context, alias string) (*models.Channel, error) {
	return p.queryChannel(ctx, "channelByAlias",
		`SELECT c.id, c.name, c.display_name, c.icon_url, c.created_at
		 FROM channel_aliases a JOIN channels c ON c.id = a.channel_id WHERE a.alias = $1`, alias)
}

func (p *Postgres) queryChannel(ctx context.Context, op, query string, args ...any) (*models.Channel, error) {
	var ch models.Channel
	err := p.pool.QueryRow(ctx, query, args...).Scan(&ch.ID, &ch.Name, &ch.DisplayName, &ch.IconURL, &ch.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &ch, nil
}

// CreateChannelAlias adds an alias; a taken alias yields ErrConflict.
func (p *Postgres) CreateChannelAlias(ctx context.Context, channelID int64, alias string, aliasType *string) (*models.ChannelAlias, error) {
	a := models.ChannelAlias{ChannelID: channelID, Alias: alias, AliasType: aliasType}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO channel_aliases (channel_id, alias, alias_type) VALUES ($1, $2, $3)
		 ON CONFLICT (alias) DO NOTHING
		 RETURNING id, created_at`,
		channelID, alias, aliasType,
	).Scan(&a.ID, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("CreateChannelAlias: %w", err)
	}
	return &a, nil
}

// ListChannelAliases returns aliases with their channel names.
func (p *Postgres) ListChannelAliases(ctx context.Context, channelID *int64) ([]models.ChannelAlias, error) {
	query := `SELECT a.id, a.channel_id, a.alias, a.alias_type, a.created_at, c.name, c.display_name
		 FROM channel_aliases a JOIN channels c ON c.id = a.channel_id`
	var args []any
	if channelID != nil {
		query += ` WHERE a.channel_id = $1`
		args = append(args, *channelID)
	}
	rows, err := p.pool.Query(ctx, query+` ORDER BY c.display_name, a.alias`, args...)
	if err != nil {
		return nil, fmt.Errorf("ListChannelAliases: %w", err)
	}
	defer rows.Close()
	out := []models.ChannelAlias{}
	for rows.Next() {
		var a models.ChannelAlias
		if err := rows.Scan(&a.ID, &a.ChannelID, &a.Alias, &a.AliasType, &a.CreatedAt, &a.ChannelName, &a.ChannelDisplayName); err != nil {
			return nil, fmt.Errorf("ListChannelAliases scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteChannelAlias removes an alias by id.
func (p *Postgres) DeleteChannelAlias(ctx context.Context, aliasID int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM channel_aliases WHERE id = $1`, aliasID)
	if err != nil {
		return fmt.Errorf("DeleteChannelAlias: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertPrograms inserts the batch in one transaction, ignoring duplicate keys.
func (p *Postgres) InsertPrograms(ctx context.Context, programs []models.Program) (int, error) {
	if len(programs) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for i := range programs {
		pg := &programs[i]
		credits, err := marshalCredits(pg.Credits)
		if err != nil {
			return 0, err
		}
		batch.Queue(
			`INSERT INTO programs (channel_id, provider_id, start_time, end_time, title, subtitle, description,
			   category, episode_num, rating, credits, icon_url, production_year, country)
			 VALUES ($1, NULLIF($2, 0), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			 ON CONFLICT (channel_id, start_time, end_time) DO NOTHING`,
			pg.ChannelID, pg.ProviderID, pg.StartTime.UTC(), pg.EndTime.UTC(), pg.Title, pg.Subtitle, pg.Description,
			pg.Category, pg.EpisodeNum, pg.Rating, credits, pg.IconURL, pg.ProductionYear, pg.Country,
		)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("InsertPrograms: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	inserted := 0
	for range programs {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("InsertPrograms: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("InsertPrograms: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("InsertPrograms: commit: %w", err)
	}
	return inserted, nil
}

// ProgramsForChannel returns programs overlapping [start, end) ordered by start time.
func (p *Postgres) ProgramsForChannel(ctx context.Context, channelID int64, start, end time.Time) ([]models.Program, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, channel_id, COALESCE(provider_id, 0), start_time, end_time, title, subtitle, description,
		   category, episode_num, rating, credits, icon_url, production_year, country, created_at
		 FROM programs
		 WHERE channel_id = $1 AND start_time < $3 AND end_time > $2
		 ORDER BY start_time`,
		channelID, start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("ProgramsForChannel: %w", err)
	}
	defer rows.Close()
	out := []models.Program{}
	for rows.Next() {
		var (
			pg      models.Program
			credits []byte
		)
		if err := rows.Scan(&pg.ID, &pg.ChannelID, &pg.ProviderID, &pg.StartTime, &pg.EndTime, &pg.Title,
			&pg.Subtitle, &pg.Description, &pg.Category, &pg.EpisodeNum, &pg.Rating, &credits,
			&pg.IconURL, &pg.ProductionYear, &pg.Country, &pg.CreatedAt); err != nil {
			return nil, fmt.Errorf("ProgramsForChannel scan: %w", err)
		}
		pg.StartTime, pg.EndTime = pg.StartTime.UTC(), pg.EndTime.UTC()
		pg.Credits = unmarshalCredits(credits)
		out = append(out, pg)
	}
	return out, rows.Err()
}

// InsertImportLog appends an audit entry.
func (p *Postgres) InsertImportLog(ctx context.Context, e *models.ImportLogEntry) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO import_log (provider_id, cycle_id, started_at, finished_at, status, channels_seen,
		   programs_inserted, programs_skipped, records_invalid, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		e.ProviderID, e.CycleID, e.StartedAt, e.FinishedAt, e.Status, e.ChannelsSeen,
		e.ProgramsInserted, e.ProgramsSkipped, e.RecordsInvalid, e.ErrorMessage,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("InsertImportLog: %w", err)
	}
	return id, nil
}

const pgImportLogSelect = `SELECT l.id, l.provider_id, COALESCE(p.name, ''), l.cycle_id, l.started_at, l.finished_at,
   l.status, l.channels_seen, l.programs_inserted, l.programs_skipped, l.records_invalid, l.error_message
 FROM import_log l LEFT JOIN providers p ON p.id = l.provider_id `

func (p *Postgres) queryImportLogs(ctx context.Context, sql string, args ...any) ([]models.ImportLogEntry, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.ImportLogEntry{}
	for rows.Next() {
		var e models.ImportLogEntry
		if err := rows.Scan(&e.ID, &e.ProviderID, &e.ProviderName, &e.CycleID, &e.StartedAt, &e.FinishedAt,
			&e.Status, &e.ChannelsSeen, &e.ProgramsInserted, &e.ProgramsSkipped, &e.RecordsInvalid, &e.ErrorMessage); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListImportLogs returns one cycle's entries in insertion order.
func (p *Postgres) ListImportLogs(ctx context.Context, cycleID string) ([]models.ImportLogEntry, error) {
	out, err := p.queryImportLogs(ctx, pgImportLogSelect+`WHERE l.cycle_id = $1 ORDER BY l.id`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("ListImportLogs: %w", err)
	}
	return out, nil
}

// LatestImportLogs returns the newest entries first.
func (p *Postgres) LatestImportLogs(ctx context.Context, limit int) ([]models.ImportLogEntry, error) {
	out, err := p.queryImportLogs(ctx, pgImportLogSelect+`ORDER BY l.started_at DESC, l.id DESC LIMIT $1`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("LatestImportLogs: %w", err)
	}
	return out, nil
}

// PurgeExpired deletes programs outside the window and old log entries in one transaction.
func (p *Postgres) PurgeExpired(ctx context.Context, w RetentionWindow) (PurgeResult, error) {
	var res PurgeResult
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("PurgeExpired: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM programs WHERE end_time < $1 OR start_time > $2`,
		w.ProgramsEndBefore.UTC(), w.ProgramsStartAfter.UTC())
	if err != nil {
		return res, fmt.Errorf("PurgeExpired: programs: %w", err)
	}
	res.ProgramsDeleted = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `DELETE FROM import_log WHERE started_at < $1`, w.LogsBefore.UTC())
	if err != nil {
		return res, fmt.Errorf("PurgeExpired: import_log: %w", err)
	}
	res.LogsDeleted = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return PurgeResult{}, fmt.Errorf("PurgeExpired: commit: %w", err)
	}
	return res, nil
}

// Stats returns catalog totals.
func (p *Postgres) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := p.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM providers),
		   (SELECT COUNT(*) FROM channels),
		   (SELECT COUNT(*) FROM programs),
		   (SELECT MIN(start_time) FROM programs),
		   (SELECT MAX(start_time) FROM programs),
		   (SELECT MAX(finished_at) FROM import_log WHERE status = 'success')`,
	).Scan(&s.Providers, &s.Channels, &s.Programs, &s.EarliestProgram, &s.LatestProgram, &s.LastSuccessfulImport)
	if err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}
	return &s, nil
}
