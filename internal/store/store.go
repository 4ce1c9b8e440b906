// Package store writes measurement history to PostgreSQL (or TimescaleDB).
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/cresta-receiver/internal/cresta"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "cresta_measurements"

// Record is one row of measurement history.
type Record struct {
	Time      time.Time
	Name      string
	Address   uint8
	Type      cresta.SensorType
	Seq       uint64
	BatteryOK bool
	Raw       []byte
	Readings  *cresta.Readings // nil if the payload could not be decoded
}

// NewRecord builds a history row for a measurement of the named sensor.
func NewRecord(name string, m *cresta.Measurement) Record {
	p := m.Packet()
	r := Record{
		Time:      m.Timestamp(),
		Name:      name,
		Address:   p.Address,
		Type:      p.Type,
		Seq:       m.Seq,
		BatteryOK: p.BatteryOK,
		Raw:       append([]byte(nil), m.Data[:]...),
	}
	if rd, err := cresta.ExtractReadings(p); err == nil {
		r.Readings = &rd
	}
	return r
}

// Store persists measurement records.
type Store interface {
	Save(ctx context.Context, r Record) error
	Close()
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	db     execer
	table  string
	insert string
	log    *logrus.Logger
}

// New connects to the database at url and verifies the connection.
// table may be schema-qualified ("weather.cresta").
func New(ctx context.Context, url, table string, log *logrus.Logger) (*Postgres, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("store: parse config: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	p := newPostgres(pool, table, log)
	p.pool = pool
	return p, nil
}

func newPostgres(db execer, table string, log *logrus.Logger) *Postgres {
	ident := tableIdentifier(table)
	return &Postgres{
		db:     db,
		table:  ident,
		insert: buildInsert(ident),
		log:    log,
	}
}

// EnsureSchema creates the history table and its time index if missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range buildSchema(p.table) {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: ensure schema: %w", err)
		}
	}
	p.log.WithField("table", p.table).Info("history table ready")
	return nil
}

// Save inserts one record.
func (p *Postgres) Save(ctx context.Context, r Record) error {
	rd := r.Readings
	if rd == nil {
		rd = &cresta.Readings{}
	}
	_, err := p.db.Exec(ctx, p.insert,
		r.Time,
		r.Name,
		int16(r.Address),
		r.Type.String(),
		int64(r.Seq),
		r.BatteryOK,
		r.Raw,
		rd.Temperature,
		rd.Humidity,
		rd.WindChill,
		rd.WindSpeed,
		rd.WindGust,
		rd.WindDirection,
		rd.UVIndex,
		rd.MEDPerHour,
		rd.RainTicks,
		rd.AbsoluteTemperature,
		rd.UVLevel,
	)
	if err != nil {
		return fmt.Errorf("store: insert %s seq %d: %w", r.Name, r.Seq, err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

var columns = []string{
	"time",
	"name",
	"address",
	"type",
	"seq",
	"battery_ok",
	"raw",
	"temperature",
	"humidity",
	"windchill",
	"wind_speed",
	"wind_gust",
	"wind_direction",
	"uv_index",
	"med_per_hour",
	"rain_ticks",
	"absolute_temperature",
	"uv_level",
}

func tableIdentifier(table string) string {
	if table == "" {
		table = DefaultTable
	}
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

func indexIdentifier(table string) string {
	name := strings.ReplaceAll(table, `"`, "")
	name = strings.ReplaceAll(name, ".", "_")
	return pgx.Identifier{name + "_name_time_idx"}.Sanitize()
}

func buildSchema(table string) []string {
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	time timestamptz NOT NULL,
	name text NOT NULL,
	address smallint NOT NULL,
	type text NOT NULL,
	seq bigint NOT NULL,
	battery_ok boolean NOT NULL,
	raw bytea NOT NULL,
	temperature double precision,
	humidity integer,
	windchill double precision,
	wind_speed double precision,
	wind_gust double precision,
	wind_direction double precision,
	uv_index double precision,
	med_per_hour double precision,
	rain_ticks integer,
	absolute_temperature double precision,
	uv_level integer
)`, table)
	index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (name, time DESC)", indexIdentifier(table), table)
	return []string{create, index}
}

func buildInsert(table string) string {
	builder := new(strings.Builder)
	builder.WriteString("INSERT INTO ")
	builder.WriteString(table)
	builder.WriteString(" (")
	builder.WriteString(strings.Join(columns, ", "))
	builder.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			builder.WriteString(", ")
		}
		fmt.Fprintf(builder, "$%d", i+1)
	}
	builder.WriteString(")")
	return builder.String()
}
