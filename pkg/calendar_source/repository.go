package calendar_source

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	List(ctx context.Context, userId int) ([]CalendarSource, error)
	Get(ctx context.Context, userId int, id string) (CalendarSource, error)
	// CreateMany stores all sources in one transaction, in order.
	CreateMany(ctx context.Context, userId int, sources []CalendarSource) ([]CalendarSource, error)
	// CreateIfEmpty stores sources only when the user has none yet. It returns
	// the user's registry and whether sources were created.
	CreateIfEmpty(ctx context.Context, userId int, sources []CalendarSource) ([]CalendarSource, bool, error)
	Update(ctx context.Context, userId int, source CalendarSource) (CalendarSource, error)
	Delete(ctx context.Context, userId int, id string) (bool, error)
	SetStatus(ctx context.Context, userId int, id string, status SourceStatus) error
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

const selectSource = `SELECT id::text, user_id, name, type, source_id, connection_data, tags, is_enabled, status
	FROM calendar_source`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *RepositoryImpl) List(ctx context.Context, userId int) ([]CalendarSource, error) {
	return listSources(ctx, r.db, userId)
}

func listSources(ctx context.Context, q querier, userId int) ([]CalendarSource, error) {
	rows, err := q.Query(ctx, selectSource+" WHERE user_id = $1 ORDER BY position", userId)
	if err != nil {
		log.Errorf("failed to list calendar sources: %v", err)
		return nil, fmt.Errorf("failed to list calendar sources: %w", err)
	}
	defer rows.Close()

	sources := make([]CalendarSource, 0)
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read calendar sources: %w", err)
	}
	return sources, nil
}

func (r *RepositoryImpl) Get(ctx context.Context, userId int, id string) (CalendarSource, error) {
	sourceUuid, err := uuid.Parse(id)
	if err != nil {
		return CalendarSource{}, ErrSourceNotFound
	}
	row := r.db.QueryRow(ctx, selectSource+" WHERE user_id = $1 AND id = $2", userId, sourceUuid)
	source, err := scanSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return CalendarSource{}, ErrSourceNotFound
	}
	return source, err
}

func (r *RepositoryImpl) CreateMany(ctx context.Context, userId int, sources []CalendarSource) ([]CalendarSource, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := insertSources(ctx, tx, userId, sources)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit calendar sources: %w", err)
	}
	return created, nil
}

// CreateIfEmpty serializes writers of one user on a transaction scoped
// advisory lock, so the emptiness check and the insert cannot interleave.
func (r *RepositoryImpl) CreateIfEmpty(ctx context.Context, userId int, sources []CalendarSource) ([]CalendarSource, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1, $2)", registryLockNamespace, userId); err != nil {
		log.Errorf("failed to lock calendar sources of user %d: %v", userId, err)
		return nil, false, fmt.Errorf("failed to lock calendar sources: %w", err)
	}
	existing, err := listSources(ctx, tx, userId)
	if err != nil {
		return nil, false, err
	}
	if len(existing) > 0 {
		return existing, false, nil
	}

	created, err := insertSources(ctx, tx, userId, sources)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit calendar sources: %w", err)
	}
	return created, true, nil
}

// registryLockNamespace is the first key of the two-key advisory lock taken
// per user while migrating legacy calendars.
const registryLockNamespace int32 = 0x63616c73

func insertSources(ctx context.Context, tx pgx.Tx, userId int, sources []CalendarSource) ([]CalendarSource, error) {
	query := `INSERT INTO calendar_source (id, user_id, name, type, source_id, connection_data, tags, is_enabled, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	created := make([]CalendarSource, 0, len(sources))
	for _, source := range sources {
		id := uuid.New()
		source.Id = id.String()
		source.UserId = userId
		if source.Tags == nil {
			source.Tags = []string{}
		}
		if source.Status == "" {
			source.Status = StatusOk
		}
		_, err := tx.Exec(ctx, query,
			id,
			userId,
			source.Name,
			string(source.Type),
			source.SourceId,
			source.ConnectionData,
			source.Tags,
			source.IsEnabled,
			string(source.Status),
		)
		if err != nil {
			log.Errorf("failed to store calendar source %s: %v", source.Name, err)
			return nil, fmt.Errorf("failed to store calendar source: %w", err)
		}
		created = append(created, source)
	}
	return created, nil
}

func (r *RepositoryImpl) Update(ctx context.Context, userId int, source CalendarSource) (CalendarSource, error) {
	sourceUuid, err := uuid.Parse(source.Id)
	if err != nil {
		return CalendarSource{}, ErrSourceNotFound
	}
	if source.Tags == nil {
		source.Tags = []string{}
	}
	query := `UPDATE calendar_source
				SET name = $1, type = $2, source_id = $3, connection_data = $4, tags = $5, is_enabled = $6, status = $7
				WHERE user_id = $8 AND id = $9`
	result, err := r.db.Exec(ctx, query,
		source.Name,
		string(source.Type),
		source.SourceId,
		source.ConnectionData,
		source.Tags,
		source.IsEnabled,
		string(source.Status),
		userId,
		sourceUuid,
	)
	if err != nil {
		log.Errorf("failed to update calendar source %s: %v", source.Id, err)
		return CalendarSource{}, fmt.Errorf("failed to update calendar source: %w", err)
	}
	if result.RowsAffected() == 0 {
		return CalendarSource{}, ErrSourceNotFound
	}
	return r.Get(ctx, userId, source.Id)
}

func (r *RepositoryImpl) Delete(ctx context.Context, userId int, id string) (bool, error) {
	sourceUuid, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}
	result, err := r.db.Exec(ctx, "DELETE FROM calendar_source WHERE user_id = $1 AND id = $2", userId, sourceUuid)
	if err != nil {
		log.Errorf("failed to delete calendar source %s: %v", id, err)
		return false, fmt.Errorf("failed to delete calendar source: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *RepositoryImpl) SetStatus(ctx context.Context, userId int, id string, status SourceStatus) error {
	sourceUuid, err := uuid.Parse(id)
	if err != nil {
		return ErrSourceNotFound
	}
	result, err := r.db.Exec(ctx, "UPDATE calendar_source SET status = $1 WHERE user_id = $2 AND id = $3",
		string(status), userId, sourceUuid)
	if err != nil {
		return fmt.Errorf("failed to set calendar source status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSourceNotFound
	}
	return nil
}

func scanSource(row pgx.Row) (CalendarSource, error) {
	var source CalendarSource
	var sourceType, status string
	err := row.Scan(
		&source.Id,
		&source.UserId,
		&source.Name,
		&sourceType,
		&source.SourceId,
		&source.ConnectionData,
		&source.Tags,
		&source.IsEnabled,
		&status,
	)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			log.Errorf("failed to scan calendar source: %v", err)
		}
		return CalendarSource{}, err
	}
	source.Type = SourceType(sourceType)
	source.Status = SourceStatus(status)
	return source, nil
}
