package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/voyagen/epgvault/internal/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert loses against an existing unique key.
	ErrConflict = errors.New("conflict")
)

// Store defines persistence for providers, channels, programs and the import log.
type Store interface {
	// ListProviders returns all providers ordered by id.
	ListProviders(ctx context.Context) ([]models.Provider, error)
	// ListEnabledProviders returns providers with enabled = true ordered by id.
	ListEnabledProviders(ctx context.Context) ([]models.Provider, error)
	// GetProviderByID returns a single provider or ErrNotFound.
	GetProviderByID(ctx context.Context, providerID int64) (*models.Provider, error)
	// CreateProvider inserts a provider and returns its id. A duplicate name yields ErrConflict.
	CreateProvider(ctx context.Context, p *models.Provider) (int64, error)
	// UpdateProvider updates mutable fields of a provider.
	UpdateProvider(ctx context.Context, providerID int64, fields ProviderUpdate) error
	// DeleteProvider deletes a provider with its mappings and import log.
	DeleteProvider(ctx context.Context, providerID int64) error
	// SetProviderImportStatus records the outcome of the provider's latest import.
	SetProviderImportStatus(ctx context.Context, providerID int64, status string, at time.Time) error

	// LookupChannelMapping returns the logical channel for a provider channel id, or ErrNotFound.
	LookupChannelMapping(ctx context.Context, providerID int64, providerChannelID string) (int64, error)
	// CreateMappedChannel gets or creates the logical channel and maps the provider channel id
	// to it in one transaction. If the mapping already exists it returns ErrConflict.
	CreateMappedChannel(ctx context.Context, providerID int64, providerChannelID, displayName string, iconURL *string) (int64, error)
	// GetChannelByID returns a single channel or ErrNotFound.
	GetChannelByID(ctx context.Context, channelID int64) (*models.Channel, error)
	// ListChannels returns channels matching the filter and the total count (before limit/offset).
	ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error)
	// ResolveChannel finds a channel by numeric id, then exact name, then alias.
	ResolveChannel(ctx context.Context, identifier string) (*models.Channel, error)

	// CreateChannelAlias adds an alias to a channel. A taken alias yields ErrConflict.
	CreateChannelAlias(ctx context.Context, channelID int64, alias string, aliasType *string) (*models.ChannelAlias, error)
	// ListChannelAliases returns aliases ordered by channel then alias, optionally for one channel.
	ListChannelAliases(ctx context.Context, channelID *int64) ([]models.ChannelAlias, error)
	// DeleteChannelAlias removes an alias or returns ErrNotFound.
	DeleteChannelAlias(ctx context.Context, aliasID int64) error

	// InsertPrograms inserts programs in one transaction, ignoring rows whose
	// (channel_id, start_time, end_time) already exists. Returns the number inserted.
	InsertPrograms(ctx context.Context, programs []models.Program) (int, error)
	// ProgramsForChannel returns programs overlapping [start, end) ordered by start_time.
	ProgramsForChannel(ctx context.Context, channelID int64, start, end time.Time) ([]models.Program, error)

	// InsertImportLog appends an audit entry and returns its id.
	InsertImportLog(ctx context.Context, e *models.ImportLogEntry) (int64, error)
	// ListImportLogs returns the entries written by one cycle in insertion order.
	ListImportLogs(ctx context.Context, cycleID string) ([]models.ImportLogEntry, error)
	// LatestImportLogs returns the newest entries first.
	LatestImportLogs(ctx context.Context, limit int) ([]models.ImportLogEntry, error)

	// PurgeExpired deletes programs and log entries outside the window in one transaction.
	PurgeExpired(ctx context.Context, w RetentionWindow) (PurgeResult, error)
	// Stats returns catalog totals.
	Stats(ctx context.Context) (*Stats, error)

	Ping(ctx context.Context) error
	Close()
}

// ChannelFilter holds optional filters for listing channels.
type ChannelFilter struct {
	ProviderID *int64 // channels mapped from this provider
	Search     string // case-insensitive substring match on name or display name
	Limit      int    // default 50, max 200
	Offset     int
}

// ProviderUpdate holds mutable fields for PATCH /providers/{id}.
// Pointer fields: nil = don't change, non-nil = set.
type ProviderUpdate struct {
	Name    *string
	URL     *string
	Enabled *bool
}

// Empty reports whether the update changes nothing.
func (u ProviderUpdate) Empty() bool {
	return u.Name == nil && u.URL == nil && u.Enabled == nil
}

// RetentionWindow bounds the data PurgeExpired keeps.
type RetentionWindow struct {
	ProgramsEndBefore  time.Time // programs ending before this are deleted
	ProgramsStartAfter time.Time // programs starting after this are deleted
	LogsBefore         time.Time // import log entries started before this are deleted
}

// PurgeResult reports what PurgeExpired removed.
type PurgeResult struct {
	ProgramsDeleted int64 `json:"programs_deleted"`
	LogsDeleted     int64 `json:"logs_deleted"`
}

// Stats are catalog totals served by /api/stats.
type Stats struct {
	Providers            int64      `json:"providers"`
	Channels             int64      `json:"channels"`
	Programs             int64      `json:"programs"`
	EarliestProgram      *time.Time `json:"earliest_program,omitempty"`
	LatestProgram        *time.Time `json:"latest_program,omitempty"`
	LastSuccessfulImport *time.Time `json:"last_successful_import,omitempty"`
}

// Open connects to the database named by dsn: postgres:// and postgresql://
// URLs use PostgreSQL, sqlite:// URLs (or a bare *.db path) use SQLite.
func Open(ctx context.Context, dsn string) (Store, error) {
	if path, ok := SQLitePath(dsn); ok {
		return NewSQLite(ctx, path)
	}
	return NewPostgres(ctx, dsn)
}

// channelFinder is the per-backend lookup used by resolveChannel.
type channelFinder interface {
	GetChannelByID(ctx context.Context, channelID int64) (*models.Channel, error)
	channelByName(ctx context.Context, name string) (*models.Channel, error)
	channelByAlias(ctx context.Context, alias string) (*models.Channel, error)
}

func resolveChannel(ctx context.Context, f channelFinder, identifier string) (*models.Channel, error) {
	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil && id > 0 {
		ch, err := f.GetChannelByID(ctx, id)
		if !errors.Is(err, ErrNotFound) {
			return ch, err
		}
	}
	ch, err := f.channelByName(ctx, identifier)
	if !errors.Is(err, ErrNotFound) {
		return ch, err
	}
	return f.channelByAlias(ctx, identifier)
}

// SQLitePath reports whether dsn points at a SQLite database and returns its file path.
func SQLitePath(dsn string) (string, bool) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return strings.TrimPrefix(dsn, "sqlite://"), true
	case strings.HasPrefix(dsn, "sqlite:"):
		return strings.TrimPrefix(dsn, "sqlite:"), true
	case strings.HasSuffix(dsn, ".db") && !strings.Contains(dsn, "://"):
		return dsn, true
	}
	return "", false
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 200:
		return 200
	}
	return limit
}

func marshalCredits(c models.Credits) (*string, error) {
	if c.Empty() {
		return nil, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal credits: %w", err)
	}
	s := string(b)
	return &s, nil
}

func unmarshalCredits(raw []byte) models.Credits {
	var c models.Credits
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &c)
	}
	return c
}
