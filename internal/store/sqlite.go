package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/voyagen/epgvault/internal/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLite implements Store on a single database file in WAL mode, so readers
// keep working while an import holds the write lock.
type SQLite struct {
	db *sql.DB
}

func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_txlock=immediate"
}

// NewSQLite opens (creating if needed) the database at path. Caller must call Close when done.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isSQLiteUnique reports a UNIQUE constraint violation.
func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func unix(t time.Time) int64 { return t.Unix() }

func fromUnix(n int64) time.Time { return time.Unix(n, 0).UTC() }

func fromNullUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnix(n.Int64)
	return &t
}

func nullUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

type scanner interface {
	Scan(dest ...any) error
}

const sqliteProviderColumns = `id, name, url, enabled, last_import_status, last_import_at, created_at, updated_at`

func scanSQLiteProvider(row scanner) (*models.Provider, error) {
	var (
		pr               models.Provider
		lastAt           sql.NullInt64
		created, updated int64
	)
	if err := row.Scan(&pr.ID, &pr.Name, &pr.URL, &pr.Enabled, &pr.LastImportStatus, &lastAt, &created, &updated); err != nil {
		return nil, err
	}
	pr.LastImportAt = fromNullUnix(lastAt)
	pr.CreatedAt, pr.UpdatedAt = fromUnix(created), fromUnix(updated)
	return &pr, nil
}

func (s *SQLite) listProviders(ctx context.Context, where string) ([]models.Provider, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteProviderColumns+` FROM providers `+where+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Provider
	for rows.Next() {
		pr, err := scanSQLiteProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pr)
	}
	return out, rows.Err()
}

// ListProviders returns all providers.
func (s *SQLite) ListProviders(ctx context.Context) ([]models.Provider, error) {
	out, err := s.listProviders(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("ListProviders: %w", err)
	}
	return out, nil
}

// ListEnabledProviders returns providers the scheduler should import.
func (s *SQLite) ListEnabledProviders(ctx context.Context) ([]models.Provider, error) {
	out, err := s.listProviders(ctx, "WHERE enabled = 1")
	if err != nil {
		return nil, fmt.Errorf("ListEnabledProviders: %w", err)
	}
	return out, nil
}

// GetProviderByID returns a single provider by id.
func (s *SQLite) GetProviderByID(ctx context.Context, providerID int64) (*models.Provider, error) {
	pr, err := scanSQLiteProvider(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteProviderColumns+` FROM providers WHERE id = ?`, providerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetProviderByID: %w", err)
	}
	return pr, nil
}

// CreateProvider inserts a provider; a duplicate name yields ErrConflict.
func (s *SQLite) CreateProvider(ctx context.Context, pr *models.Provider) (int64, error) {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO providers (name, url, enabled, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		pr.Name, pr.URL, pr.Enabled, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("CreateProvider: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrConflict
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("CreateProvider: %w", err)
	}
	return id, nil
}

// UpdateProvider updates the fields set in fields.
func (s *SQLite) UpdateProvider(ctx context.Context, providerID int64, fields ProviderUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().Unix()}
	if fields.Name != nil {
		sets, args = append(sets, "name = ?"), append(args, *fields.Name)
	}
	if fields.URL != nil {
		sets, args = append(sets, "url = ?"), append(args, *fields.URL)
	}
	if fields.Enabled != nil {
		sets, args = append(sets, "enabled = ?"), append(args, *fields.Enabled)
	}
	args = append(args, providerID)
	res, err := s.db.ExecContext(ctx, `UPDATE providers SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if isSQLiteUnique(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("UpdateProvider: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProvider deletes a provider; mappings and log entries cascade.
func (s *SQLite) DeleteProvider(ctx context.Context, providerID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM providers WHERE id = ?`, providerID)
	if err != nil {
		return fmt.Errorf("DeleteProvider: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProviderImportStatus records the latest import outcome on the provider.
func (s *SQLite) SetProviderImportStatus(ctx context.Context, providerID int64, status string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE providers SET last_import_status = ?, last_import_at = ?, updated_at = ? WHERE id = ?`,
		status, at.Unix(), time.Now().Unix(), providerID,
	)
	if err != nil {
		return fmt.Errorf("SetProviderImportStatus: %w", err)
	}
	return nil
}

// LookupChannelMapping returns the channel mapped to a provider channel id.
func (s *SQLite) LookupChannelMapping(ctx context.Context, providerID int64, providerChannelID string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_id FROM channel_mappings WHERE provider_id = ? AND provider_channel_id = ?`,
		providerID, providerChannelID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("LookupChannelMapping: %w", err)
	}
	return id, nil
}

// CreateMappedChannel gets or creates the channel named providerChannelID and
// maps it for the provider. Returns ErrConflict if the mapping already exists.
func (s *SQLite) CreateMappedChannel(ctx context.Context, providerID int64, providerChannelID, displayName string, iconURL *string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("CreateMappedChannel: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	var channelID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO channels (name, display_name, icon_url, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET icon_url = COALESCE(channels.icon_url, excluded.icon_url)
		 RETURNING id`,
		providerChannelID, displayName, iconURL, now,
	).Scan(&channelID)
	if err != nil {
		return 0, fmt.Errorf("CreateMappedChannel: channel: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO channel_mappings (provider_id, provider_channel_id, channel_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		providerID, providerChannelID, channelID, now,
	)
	if err != nil {
		return 0, fmt.Errorf("CreateMappedChannel: mapping: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrConflict
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("CreateMappedChannel: commit: %w", err)
	}
	return channelID, nil
}

func scanSQLiteChannel(row scanner) (*models.Channel, error) {
	var (
		ch      models.Channel
		created int64
	)
	if err := row.Scan(&ch.ID, &ch.Name, &ch.DisplayName, &ch.IconURL, &created); err != nil {
		return nil, err
	}
	ch.CreatedAt = fromUnix(created)
	return &ch, nil
}

// GetChannelByID returns a single channel by id.
func (s *SQLite) GetChannelByID(ctx context.Context, channelID int64) (*models.Channel, error) {
	ch, err := scanSQLiteChannel(s.db.QueryRowContext(ctx,
		`SELECT id, name, display_name, icon_url, created_at FROM channels WHERE id = ?`, channelID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetChannelByID: %w", err)
	}
	return ch, nil
}

// ListChannels returns channels matching the filter and the total count.
func (s *SQLite) ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ProviderID != nil {
		conds = append(conds, "EXISTS (SELECT 1 FROM channel_mappings m WHERE m.channel_id = c.id AND m.provider_id = ?)")
		args = append(args, *filter.ProviderID)
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		conds = append(conds, "(lower(c.name) LIKE ? OR lower(c.display_name) LIKE ?)")
		args = append(args, like, like)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels c `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListChannels count: %w", err)
	}

	args = append(args, normalizeLimit(filter.Limit), max(filter.Offset, 0))
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.display_name, c.icon_url, c.created_at FROM channels c `+where+
			` ORDER BY c.display_name, c.id LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListChannels: %w", err)
	}
	defer rows.Close()
	out := []models.Channel{}
	for rows.Next() {
		ch, err := scanSQLiteChannel(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListChannels scan: %w", err)
		}
		out = append(out, *ch)
	}
	return out, total, rows.Err()
}

// ResolveChannel finds a channel by id, name or alias.
func (s *SQLite) ResolveChannel(ctx context.Context, identifier string) (*models.Channel, error) {
	return resolveChannel(ctx, s, identifier)
}

func (s *SQLite) channelByName(ctx context.Context, name string) (*models.Channel, error) {
	ch, err := scanSQLiteChannel(s.db.QueryRowContext(ctx,
		`SELECT id, name, display_name, icon_url, created_at FROM channels WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("channelByName: %w", err)
	}
	return ch, nil
}

func (s *SQLite) channelByAlias(ctx context.Context, alias string) (*models.Channel, error) {
	ch, err := scanSQLiteChannel(s.db.QueryRowContext(ctx,
		`SELECT c.id, c.name, c.display_name, c.icon_url, c.created_at
		 FROM channel_aliases a JOIN channels c ON c.id = a.channel_id WHERE a.alias = ?`, alias))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("channelByAlias: %w", err)
	}
	return ch, nil
}

// CreateChannelAlias adds an alias; a taken alias yields ErrConflict.
func (s *SQLite) CreateChannelAlias(ctx context.Context, channelID int64, alias string, aliasType *string) (*models.ChannelAlias, error) {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO channel_aliases (channel_id, alias, alias_type, created_at) VALUES (?, ?, ?, ?)`,
		channelID, alias, aliasType, now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("CreateChannelAlias: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrConflict
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("CreateChannelAlias: %w", err)
	}
	return &models.ChannelAlias{ID: id, ChannelID: channelID, Alias: alias, AliasType: aliasType, CreatedAt: now}, nil
}

// ListChannelAliases returns aliases with their channel names.
func (s *SQLite) ListChannelAliases(ctx context.Context, channelID *int64) ([]models.ChannelAlias, error) {
	query := `SELECT a.id, a.channel_id, a.alias, a.alias_type, a.created_at, c.name, c.display_name
		 FROM channel_aliases a JOIN channels c ON c.id = a.channel_id`
	var args []any
	if channelID != nil {
		query += ` WHERE a.channel_id = ?`
		args = append(args, *channelID)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY c.display_name, a.alias`, args...)
	if err != nil {
		return nil, fmt.Errorf("ListChannelAliases: %w", err)
	}
	defer rows.Close()
	out := []models.ChannelAlias{}
	for rows.Next() {
		var (
			a       models.ChannelAlias
			created int64
		)
		if err := rows.Scan(&a.ID, &a.ChannelID, &a.Alias, &a.AliasType, &created, &a.ChannelName, &a.ChannelDisplayName); err != nil {
			return nil, fmt.Errorf("ListChannelAliases scan: %w", err)
		}
		a.CreatedAt = fromUnix(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteChannelAlias removes an alias by id.
func (s *SQLite) DeleteChannelAlias(ctx context.Context, aliasID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channel_aliases WHERE id = ?`, aliasID)
	if err != nil {
		return fmt.Errorf("DeleteChannelAlias: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertPrograms inserts the batch in one transaction, ignoring duplicate keys.
func (s *SQLite) InsertPrograms(ctx context.Context, programs []models.Program) (int, error) {
	if len(programs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("InsertPrograms: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO programs (channel_id, provider_id, start_time, end_time, title, subtitle, description,
		   category, episode_num, rating, credits, icon_url, production_year, country, created_at)
		 VALUES (?, NULLIF(?, 0), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("InsertPrograms: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	inserted := 0
	for i := range programs {
		pg := &programs[i]
		credits, err := marshalCredits(pg.Credits)
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx,
			pg.ChannelID, pg.ProviderID, unix(pg.StartTime), unix(pg.EndTime), pg.Title, pg.Subtitle, pg.Description,
			pg.Category, pg.EpisodeNum, pg.Rating, credits, pg.IconURL, pg.ProductionYear, pg.Country, now,
		)
		if err != nil {
			return 0, fmt.Errorf("InsertPrograms: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("InsertPrograms: commit: %w", err)
	}
	return inserted, nil
}

// ProgramsForChannel returns programs overlapping [start, end) ordered by start time.
func (s *SQLite) ProgramsForChannel(ctx context.Context, channelID int64, start, end time.Time) ([]models.Program, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel_id, COALESCE(provider_id, 0), start_time, end_time, title, subtitle, description,
		   category, episode_num, rating, credits, icon_url, production_year, country, created_at
		 FROM programs
		 WHERE channel_id = ? AND start_time < ? AND end_time > ?
		 ORDER BY start_time`,
		channelID, unix(end), unix(start),
	)
	if err != nil {
		return nil, fmt.Errorf("ProgramsForChannel: %w", err)
	}
	defer rows.Close()
	out := []models.Program{}
	for rows.Next() {
		var (
			pg                      models.Program
			startAt, endAt, created int64
			credits                 sql.NullString
		)
		if err := rows.Scan(&pg.ID, &pg.ChannelID, &pg.ProviderID, &startAt, &endAt, &pg.Title,
			&pg.Subtitle, &pg.Description, &pg.Category, &pg.EpisodeNum, &pg.Rating, &credits,
			&pg.IconURL, &pg.ProductionYear, &pg.Country, &created); err != nil {
			return nil, fmt.Errorf("ProgramsForChannel scan: %w", err)
		}
		pg.StartTime, pg.EndTime, pg.CreatedAt = fromUnix(startAt), fromUnix(endAt), fromUnix(created)
		pg.Credits = unmarshalCredits([]byte(credits.String))
		out = append(out, pg)
	}
	return out, rows.Err()
}

// InsertImportLog appends an audit entry.
func (s *SQLite) InsertImportLog(ctx context.Context, e *models.ImportLogEntry) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO import_log (provider_id, cycle_id, started_at, finished_at, status, channels_seen,
		   programs_inserted, programs_skipped, records_invalid, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ProviderID, e.CycleID, e.StartedAt.Unix(), nullUnix(e.FinishedAt), e.Status, e.ChannelsSeen,
		e.ProgramsInserted, e.ProgramsSkipped, e.RecordsInvalid, e.ErrorMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("InsertImportLog: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("InsertImportLog: %w", err)
	}
	return id, nil
}

const sqliteImportLogSelect = `SELECT l.id, l.provider_id, COALESCE(p.name, ''), l.cycle_id, l.started_at, l.finished_at,
   l.status, l.channels_seen, l.programs_inserted, l.programs_skipped, l.records_invalid, l.error_message
 FROM import_log l LEFT JOIN providers p ON p.id = l.provider_id `

func (s *SQLite) queryImportLogs(ctx context.Context, query string, args ...any) ([]models.ImportLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.ImportLogEntry{}
	for rows.Next() {
		var (
			e        models.ImportLogEntry
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.ProviderID, &e.ProviderName, &e.CycleID, &started, &finished,
			&e.Status, &e.ChannelsSeen, &e.ProgramsInserted, &e.ProgramsSkipped, &e.RecordsInvalid, &e.ErrorMessage); err != nil {
			return nil, err
		}
		e.StartedAt, e.FinishedAt = fromUnix(started), fromNullUnix(finished)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListImportLogs returns one cycle's entries in insertion order.
func (s *SQLite) ListImportLogs(ctx context.Context, cycleID string) ([]models.ImportLogEntry, error) {
	out, err := s.queryImportLogs(ctx, sqliteImportLogSelect+`WHERE l.cycle_id = ? ORDER BY l.id`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("ListImportLogs: %w", err)
	}
	return out, nil
}

// LatestImportLogs returns the newest entries first.
func (s *SQLite) LatestImportLogs(ctx context.Context, limit int) ([]models.ImportLogEntry, error) {
	out, err := s.queryImportLogs(ctx, sqliteImportLogSelect+`ORDER BY l.started_at DESC, l.id DESC LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("LatestImportLogs: %w", err)
	}
	return out, nil
}

// PurgeExpired deletes programs outside the window and old log entries in one transaction.
func (s *SQLite) PurgeExpired(ctx context.Context, w RetentionWindow) (PurgeResult, error) {
	var res PurgeResult
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("PurgeExpired: begin: %w", err)
	}
	defer tx.Rollback()

	r, err := tx.ExecContext(ctx, `DELETE FROM programs WHERE end_time < ? OR start_time > ?`,
		unix(w.ProgramsEndBefore), unix(w.ProgramsStartAfter))
	if err != nil {
		return res, fmt.Errorf("PurgeExpired: programs: %w", err)
	}
	res.ProgramsDeleted, _ = r.RowsAffected()

	r, err = tx.ExecContext(ctx, `DELETE FROM import_log WHERE started_at < ?`, unix(w.LogsBefore))
	if err != nil {
		return res, fmt.Errorf("PurgeExpired: import_log: %w", err)
	}
	res.LogsDeleted, _ = r.RowsAffected()

	if err := tx.Commit(); err != nil {
		return PurgeResult{}, fmt.Errorf("PurgeExpired: commit: %w", err)
	}
	return res, nil
}

// Stats returns catalog totals.
func (s *SQLite) Stats(ctx context.Context) (*Stats, error) {
	var (
		st                       Stats
		earliest, latest, lastOK sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM providers),
		   (SELECT COUNT(*) FROM channels),
		   (SELECT COUNT(*) FROM programs),
		   (SELECT MIN(start_time) FROM programs),
		   (SELECT MAX(start_time) FROM programs),
		   (SELECT MAX(finished_at) FROM import_log WHERE status = 'success')`,
	).Scan(&st.Providers, &st.Channels, &st.Programs, &earliest, &latest, &lastOK)
	if err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}
	st.EarliestProgram, st.LatestProgram, st.LastSuccessfulImport =
		fromNullUnix(earliest), fromNullUnix(latest), fromNullUnix(lastOK)
	return &st, nil
}
