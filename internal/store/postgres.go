package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/snf-deal-cli/internal/model"
)

// Pool is the minimal pgx pool surface the store uses. Satisfied by
// *pgxpool.Pool and by pgxmock.PgxPoolIface in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool. Used for shared team
// deployments where the cache and learned mappings live in one database.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS registry_cache (
	cache_key  TEXT PRIMARY KEY,
	payload    BYTEA NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS deal_mappings (
	id               TEXT PRIMARY KEY,
	deal_id          TEXT NOT NULL,
	source_label     TEXT NOT NULL,
	normalized_label TEXT NOT NULL,
	coa_code         TEXT NOT NULL,
	coa_name         TEXT NOT NULL,
	method           TEXT NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL,
	use_count        INTEGER NOT NULL DEFAULT 0,
	facility_id      TEXT,
	document_id      TEXT,
	reviewed_by      TEXT,
	last_reviewed_at TIMESTAMPTZ NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	UNIQUE(deal_id, source_label)
);

CREATE TABLE IF NOT EXISTS global_mappings (
	id               TEXT PRIMARY KEY,
	normalized_label TEXT NOT NULL UNIQUE,
	coa_code         TEXT NOT NULL,
	coa_name         TEXT NOT NULL,
	method           TEXT NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL,
	use_count        INTEGER NOT NULL DEFAULT 0,
	reviewed_by      TEXT,
	last_reviewed_at TIMESTAMPTZ NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_registry_cache_expires ON registry_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_deal_mappings_deal ON deal_mappings(deal_id);
CREATE INDEX IF NOT EXISTS idx_deal_mappings_norm ON deal_mappings(normalized_label);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Registry cache ---

func (s *PostgresStore) GetCachedRegistry(ctx context.Context, key string) ([]byte, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT payload FROM registry_cache WHERE cache_key = $1 AND expires_at > now()`,
		key,
	)
	var payload []byte
	err := row.Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: get cached registry")
	}
	return payload, true, nil
}

func (s *PostgresStore) SetCachedRegistry(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO registry_cache (cache_key, payload, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (cache_key) DO UPDATE SET payload = EXCLUDED.payload,
		   cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
		key, payload, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached registry")
}

func (s *PostgresStore) DeleteExpiredRegistry(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM registry_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired registry")
	}
	return int(tag.RowsAffected()), nil
}

// --- Deal-scoped mappings ---

func (s *PostgresStore) UpsertDealMapping(ctx context.Context, m model.LearnedMapping) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO deal_mappings
		   (id, deal_id, source_label, normalized_label, coa_code, coa_name, method,
		    confidence, use_count, facility_id, document_id, reviewed_by, last_reviewed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (deal_id, source_label) DO UPDATE SET
		   normalized_label = EXCLUDED.normalized_label,
		   coa_code = EXCLUDED.coa_code,
		   coa_name = EXCLUDED.coa_name,
		   method = EXCLUDED.method,
		   confidence = EXCLUDED.confidence,
		   use_count = deal_mappings.use_count + 1,
		   facility_id = EXCLUDED.facility_id,
		   document_id = EXCLUDED.document_id,
		   reviewed_by = EXCLUDED.reviewed_by,
		   last_reviewed_at = EXCLUDED.last_reviewed_at`,
		m.ID, m.DealID, m.SourceLabel, m.NormalizedLabel, m.COACode, m.COAName,
		string(m.Method), m.Confidence, m.UseCount, m.FacilityID, m.DocumentID,
		m.ReviewedBy, now, now,
	)
	return eris.Wrapf(err, "postgres: upsert deal mapping %s", m.SourceLabel)
}

func (s *PostgresStore) ListDealMappings(ctx context.Context, dealID string) ([]model.LearnedMapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, deal_id, source_label, normalized_label, coa_code, coa_name, method,
		        confidence, use_count, facility_id, document_id, reviewed_by, last_reviewed_at, created_at
		 FROM deal_mappings WHERE deal_id = $1 ORDER BY source_label`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list deal mappings")
	}
	defer rows.Close()

	var out []model.LearnedMapping
	for rows.Next() {
		var m model.LearnedMapping
		var method string
		var facilityID, documentID, reviewedBy *string
		err := rows.Scan(&m.ID, &m.DealID, &m.SourceLabel, &m.NormalizedLabel,
			&m.COACode, &m.COAName, &method, &m.Confidence, &m.UseCount,
			&facilityID, &documentID, &reviewedBy, &m.LastReviewedAt, &m.CreatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan deal mapping")
		}
		m.Scope = model.ScopeDeal
		m.Method = model.MappingMethod(method)
		if facilityID != nil {
			m.FacilityID = *facilityID
		}
		if documentID != nil {
			m.DocumentID = *documentID
		}
		if reviewedBy != nil {
			m.ReviewedBy = *reviewedBy
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: deal mappings iterate")
}

func (s *PostgresStore) TouchDealMapping(ctx context.Context, dealID, sourceLabel string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE deal_mappings SET use_count = use_count + 1 WHERE deal_id = $1 AND source_label = $2`,
		dealID, sourceLabel,
	)
	return eris.Wrap(err, "postgres: touch deal mapping")
}

// --- Global mappings ---

func (s *PostgresStore) InsertGlobalMapping(ctx context.Context, m model.LearnedMapping) (bool, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO global_mappings
		   (id, normalized_label, coa_code, coa_name, method, confidence, use_count,
		    reviewed_by, last_reviewed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (normalized_label) DO NOTHING`,
		m.ID, m.NormalizedLabel, m.COACode, m.COAName, string(m.Method),
		m.Confidence, m.UseCount, m.ReviewedBy, now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert global mapping %s", m.NormalizedLabel)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetGlobalMapping(ctx context.Context, normalizedLabel string) (*model.LearnedMapping, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, normalized_label, coa_code, coa_name, method, confidence, use_count,
		        reviewed_by, last_reviewed_at, created_at
		 FROM global_mappings WHERE normalized_label = $1`,
		normalizedLabel,
	)
	m, err := scanPgGlobalMapping(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get global mapping")
	}
	return m, nil
}

func (s *PostgresStore) ListGlobalMappings(ctx context.Context) ([]model.LearnedMapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, normalized_label, coa_code, coa_name, method, confidence, use_count,
		        reviewed_by, last_reviewed_at, created_at
		 FROM global_mappings ORDER BY normalized_label`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list global mappings")
	}
	defer rows.Close()

	var out []model.LearnedMapping
	for rows.Next() {
		m, err := scanPgGlobalMapping(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan global mapping")
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: global mappings iterate")
}

func (s *PostgresStore) BoostGlobalMapping(ctx context.Context, normalizedLabel string, factor, cap float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE global_mappings
		 SET confidence = LEAST($1, confidence * $2), use_count = use_count + 1, last_reviewed_at = $3
		 WHERE normalized_label = $4`,
		cap, factor, time.Now().UTC(), normalizedLabel,
	)
	return eris.Wrapf(err, "postgres: boost global mapping %s", normalizedLabel)
}

func (s *PostgresStore) OverrideGlobalMapping(ctx context.Context, m model.LearnedMapping) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO global_mappings
		   (id, normalized_label, coa_code, coa_name, method, confidence, use_count,
		    reviewed_by, last_reviewed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (normalized_label) DO UPDATE SET
		   coa_code = EXCLUDED.coa_code,
		   coa_name = EXCLUDED.coa_name,
		   method = EXCLUDED.method,
		   confidence = EXCLUDED.confidence,
		   reviewed_by = EXCLUDED.reviewed_by,
		   last_reviewed_at = EXCLUDED.last_reviewed_at`,
		m.ID, m.NormalizedLabel, m.COACode, m.COAName, string(m.Method),
		m.Confidence, m.UseCount, m.ReviewedBy, now, now,
	)
	return eris.Wrapf(err, "postgres: override global mapping %s", m.NormalizedLabel)
}

func (s *PostgresStore) TouchGlobalMapping(ctx context.Context, normalizedLabel string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE global_mappings SET use_count = use_count + 1 WHERE normalized_label = $1`,
		normalizedLabel,
	)
	return eris.Wrap(err, "postgres: touch global mapping")
}

func (s *PostgresStore) CountDisagreeingDeals(ctx context.Context, normalizedLabel, coaCode string) (int, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT deal_id) FROM deal_mappings
		 WHERE normalized_label = $1 AND coa_code = $2`,
		normalizedLabel, coaCode,
	)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count disagreeing deals")
	}
	return n, nil
}

func scanPgGlobalMapping(row pgx.Row) (*model.LearnedMapping, error) {
	var m model.LearnedMapping
	var method string
	var reviewedBy *string
	err := row.Scan(&m.ID, &m.NormalizedLabel, &m.COACode, &m.COAName, &method,
		&m.Confidence, &m.UseCount, &reviewedBy, &m.LastReviewedAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Scope = model.ScopeGlobal
	m.SourceLabel = m.NormalizedLabel
	m.Method = model.MappingMethod(method)
	if reviewedBy != nil {
		m.ReviewedBy = *reviewedBy
	}
	return &m, nil
}
