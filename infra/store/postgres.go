package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilianp07/irrigo/core/factory"
	"github.com/kilianp07/irrigo/core/model"
	corestore "github.com/kilianp07/irrigo/core/store"
)

// Schema creates the tables used by PostgresStore.
const Schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL DEFAULT '',
	mqtt_username TEXT,
	mqtt_password TEXT
);
CREATE TABLE IF NOT EXISTS stations (
	id        TEXT NOT NULL,
	tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	name      TEXT NOT NULL DEFAULT '',
	broker    TEXT NOT NULL DEFAULT '',
	threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
	dose      DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (tenant_id, id)
);
CREATE TABLE IF NOT EXISTS station_readings (
	uid           TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	station_id    TEXT NOT NULL,
	soil_moisture DOUBLE PRECISION,
	air_humidity  DOUBLE PRECISION,
	temperature   DOUBLE PRECISION,
	irrigated_mm  DOUBLE PRECISION NOT NULL DEFAULT 0,
	recorded_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS station_readings_station_idx
	ON station_readings (tenant_id, station_id, recorded_at DESC);
`

const insertReading = `INSERT INTO station_readings
	(uid, tenant_id, station_id, soil_moisture, air_humidity, temperature, irrigated_mm, recorded_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (uid) DO NOTHING`

const selectTenants = `SELECT t.id, t.email, t.mqtt_username, t.mqtt_password,
	s.id, s.name, s.broker, s.threshold, s.dose
	FROM tenants t
	LEFT JOIN stations s ON s.tenant_id = t.id
	ORDER BY t.id, s.id`

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	URL string `json:"url"`
	// Migrate creates the tables on startup.
	Migrate bool `json:"migrate"`
}

type pgConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore persists readings in PostgreSQL and doubles as a
// TenantSource reading tenants and stations from the same database.
type PostgresStore struct {
	db   pgConn
	pool *pgxpool.Pool
}

// NewPostgresStore connects to url and verifies the connection.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres unavailable: %w", err)
	}
	s := &PostgresStore{db: pool, pool: pool}
	if cfg.Migrate {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

func newPostgresFromConf(conf map[string]any) (corestore.ReadingStore, error) {
	var c PostgresConfig
	if err := factory.Decode(conf, &c); err != nil {
		return nil, err
	}
	if c.URL == "" {
		return nil, fmt.Errorf("postgres: url is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return NewPostgresStore(ctx, c)
}

// Migrate creates the tables when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Save inserts r. Saving the same reading twice is a no-op.
func (s *PostgresStore) Save(ctx context.Context, r model.Reading) error {
	_, err := s.db.Exec(ctx, insertReading,
		r.ID, r.TenantID, r.StationID,
		r.SoilMoisture, r.AirHumidity, r.Temperature,
		r.IrrigatedAmount, r.Timestamp)
	if err != nil {
		return fmt.Errorf("insert reading %s: %w", r.ID, err)
	}
	return nil
}

type tenantRow struct {
	tenantID  string
	email     string
	username  *string
	password  *string
	stationID *string
	name      *string
	broker    *string
	threshold *float64
	dose      *float64
}

// Tenants loads every tenant with its stations.
func (s *PostgresStore) Tenants(ctx context.Context) ([]model.Tenant, error) {
	rows, err := s.db.Query(ctx, selectTenants)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer rows.Close()

	var out []tenantRow
	for rows.Next() {
		var r tenantRow
		if err := rows.Scan(&r.tenantID, &r.email, &r.username, &r.password,
			&r.stationID, &r.name, &r.broker, &r.threshold, &r.dose); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read tenants: %w", err)
	}
	return groupTenants(out), nil
}

// groupTenants folds joined rows, ordered by tenant, into tenants.
func groupTenants(rows []tenantRow) []model.Tenant {
	var tenants []model.Tenant
	for _, r := range rows {
		if len(tenants) == 0 || tenants[len(tenants)-1].ID != r.tenantID {
			t := model.Tenant{ID: r.tenantID, Email: r.email}
			if r.username != nil || r.password != nil {
				t.Credentials = &model.Credentials{Username: deref(r.username), Password: deref(r.password)}
			}
			tenants = append(tenants, t)
		}
		if r.stationID == nil {
			continue
		}
		t := &tenants[len(tenants)-1]
		st := model.StationConfig{ID: *r.stationID, Name: deref(r.name), Broker: deref(r.broker)}
		if r.threshold != nil {
			st.Threshold = *r.threshold
		}
		if r.dose != nil {
			st.Dose = *r.dose
		}
		t.Stations = append(t.Stations, st)
	}
	return tenants
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

var _ corestore.TenantSource = (*PostgresStore)(nil)
