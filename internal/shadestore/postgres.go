package shadestore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory implements Directory against the shade configuration
// table described in spec.md §6 ("Table keyed by shade id...").
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory opens a pool against connString and verifies it with
// a ping before returning.
func NewPostgresDirectory(ctx context.Context, connString string) (*PostgresDirectory, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	// The directory is read-only and on the slow path relative to RF
	// transmission (spec.md §4.1); a small pool is plenty.
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresDirectory{pool: pool}, nil
}

// Close releases the connection pool.
func (d *PostgresDirectory) Close() {
	d.pool.Close()
}

const shadeColumns = `
	shade_id, remote_id, remote_family, channel_tag,
	header_hex, id_bytes_hex, up_hex, down_hex, stop_hex, common_hex,
	room, location, facing, type
`

func (d *PostgresDirectory) Lookup(ctx context.Context, shadeID int64) (*ShadeRecord, error) {
	query := `SELECT ` + shadeColumns + ` FROM shades WHERE shade_id = $1`
	row := d.pool.QueryRow(ctx, query, shadeID)

	rec, err := scanShadeRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return rec, nil
}

func (d *PostgresDirectory) ListAll(ctx context.Context) ([]*ShadeRecord, error) {
	query := `SELECT ` + shadeColumns + ` FROM shades ORDER BY shade_id ASC`
	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	defer rows.Close()

	var out []*ShadeRecord
	for rows.Next() {
		rec, err := scanShadeRow(rows)
		if err != nil {
			return nil, wrapStoreErr(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr(err)
	}
	return out, nil
}

// rowScanner covers both pgx.Row (QueryRow) and pgx.Rows (Query).
type rowScanner interface {
	Scan(dest ...any) error
}

func scanShadeRow(row rowScanner) (*ShadeRecord, error) {
	var rec ShadeRecord
	var family int
	err := row.Scan(
		&rec.ShadeID, &rec.RemoteID, &family, &rec.ChannelTag,
		&rec.Header, &rec.IDBytes, &rec.Up, &rec.Down, &rec.Stop, &rec.CommonHex,
		&rec.Room, &rec.Location, &rec.Facing, &rec.Type,
	)
	if err != nil {
		return nil, err
	}
	if family == 0 {
		rec.RemoteFamily = Family6Channel
	} else {
		rec.RemoteFamily = Family16Channel
	}
	return &rec, nil
}

func wrapStoreErr(err error) error {
	return errors.Join(ErrStoreUnavailable, err)
}
