package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/snf-deal-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS registry_cache (
	cache_key  TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	cached_at  DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS deal_mappings (
	id               TEXT PRIMARY KEY,
	deal_id          TEXT NOT NULL,
	source_label     TEXT NOT NULL,
	normalized_label TEXT NOT NULL,
	coa_code         TEXT NOT NULL,
	coa_name         TEXT NOT NULL,
	method           TEXT NOT NULL,
	confidence       REAL NOT NULL,
	use_count        INTEGER NOT NULL DEFAULT 0,
	facility_id      TEXT,
	document_id      TEXT,
	reviewed_by      TEXT,
	last_reviewed_at DATETIME NOT NULL,
	created_at       DATETIME NOT NULL,
	UNIQUE(deal_id, source_label)
);

CREATE TABLE IF NOT EXISTS global_mappings (
	id               TEXT PRIMARY KEY,
	normalized_label TEXT NOT NULL UNIQUE,
	coa_code         TEXT NOT NULL,
	coa_name         TEXT NOT NULL,
	method           TEXT NOT NULL,
	confidence       REAL NOT NULL,
	use_count        INTEGER NOT NULL DEFAULT 0,
	reviewed_by      TEXT,
	last_reviewed_at DATETIME NOT NULL,
	created_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_registry_cache_expires ON registry_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_deal_mappings_deal ON deal_mappings(deal_id);
CREATE INDEX IF NOT EXISTS idx_deal_mappings_norm ON deal_mappings(normalized_label);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Registry cache ---

func (s *SQLiteStore) GetCachedRegistry(ctx context.Context, key string) ([]byte, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM registry_cache WHERE cache_key = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	)
	var payload []byte
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: get cached registry")
	}
	return payload, true, nil
}

func (s *SQLiteStore) SetCachedRegistry(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO registry_cache (cache_key, payload, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload,
		   cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, payload, now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached registry")
}

func (s *SQLiteStore) DeleteExpiredRegistry(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM registry_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired registry")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// --- Deal-scoped mappings ---

func (s *SQLiteStore) UpsertDealMapping(ctx context.Context, m model.LearnedMapping) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deal_mappings
		   (id, deal_id, source_label, normalized_label, coa_code, coa_name, method,
		    confidence, use_count, facility_id, document_id, reviewed_by, last_reviewed_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(deal_id, source_label) DO UPDATE SET
		   normalized_label = excluded.normalized_label,
		   coa_code = excluded.coa_code,
		   coa_name = excluded.coa_name,
		   method = excluded.method,
		   confidence = excluded.confidence,
		   use_count = deal_mappings.use_count + 1,
		   facility_id = excluded.facility_id,
		   document_id = excluded.document_id,
		   reviewed_by = excluded.reviewed_by,
		   last_reviewed_at = excluded.last_reviewed_at`,
		m.ID, m.DealID, m.SourceLabel, m.NormalizedLabel, m.COACode, m.COAName,
		string(m.Method), m.Confidence, m.UseCount, m.FacilityID, m.DocumentID,
		m.ReviewedBy, now, now,
	)
	return eris.Wrapf(err, "sqlite: upsert deal mapping %s", m.SourceLabel)
}

func (s *SQLiteStore) ListDealMappings(ctx context.Context, dealID string) ([]model.LearnedMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, deal_id, source_label, normalized_label, coa_code, coa_name, method,
		        confidence, use_count, facility_id, document_id, reviewed_by, last_reviewed_at, created_at
		 FROM deal_mappings WHERE deal_id = ? ORDER BY source_label`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list deal mappings")
	}
	defer rows.Close()
	return scanDealMappings(rows)
}

func (s *SQLiteStore) TouchDealMapping(ctx context.Context, dealID, sourceLabel string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE deal_mappings SET use_count = use_count + 1 WHERE deal_id = ? AND source_label = ?`,
		dealID, sourceLabel,
	)
	return eris.Wrap(err, "sqlite: touch deal mapping")
}

// --- Global mappings ---

func (s *SQLiteStore) InsertGlobalMapping(ctx context.Context, m model.LearnedMapping) (bool, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO global_mappings
		   (id, normalized_label, coa_code, coa_name, method, confidence, use_count,
		    reviewed_by, last_reviewed_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(normalized_label) DO NOTHING`,
		m.ID, m.NormalizedLabel, m.COACode, m.COAName, string(m.Method),
		m.Confidence, m.UseCount, m.ReviewedBy, now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert global mapping %s", m.NormalizedLabel)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetGlobalMapping(ctx context.Context, normalizedLabel string) (*model.LearnedMapping, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, normalized_label, coa_code, coa_name, method, confidence, use_count,
		        reviewed_by, last_reviewed_at, created_at
		 FROM global_mappings WHERE normalized_label = ?`,
		normalizedLabel,
	)
	m, err := scanGlobalMapping(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get global mapping")
	}
	return m, nil
}

func (s *SQLiteStore) ListGlobalMappings(ctx context.Context) ([]model.LearnedMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, normalized_label, coa_code, coa_name, method, confidence, use_count,
		        reviewed_by, last_reviewed_at, created_at
		 FROM global_mappings ORDER BY normalized_label`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list global mappings")
	}
	defer rows.Close()

	var out []model.LearnedMapping
	for rows.Next() {
		m, err := scanGlobalMapping(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan global mapping")
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list global mappings iterate")
}

func (s *SQLiteStore) BoostGlobalMapping(ctx context.Context, normalizedLabel string, factor, cap float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE global_mappings
		 SET confidence = MIN(?, confidence * ?), use_count = use_count + 1, last_reviewed_at = ?
		 WHERE normalized_label = ?`,
		cap, factor, time.Now().UTC(), normalizedLabel,
	)
	return eris.Wrapf(err, "sqlite: boost global mapping %s", normalizedLabel)
}

func (s *SQLiteStore) OverrideGlobalMapping(ctx context.Context, m model.LearnedMapping) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO global_mappings
		   (id, normalized_label, coa_code, coa_name, method, confidence, use_count,
		    reviewed_by, last_reviewed_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(normalized_label) DO UPDATE SET
		   coa_code = excluded.coa_code,
		   coa_name = excluded.coa_name,
		   method = excluded.method,
		   confidence = excluded.confidence,
		   reviewed_by = excluded.reviewed_by,
		   last_reviewed_at = excluded.last_reviewed_at`,
		m.ID, m.NormalizedLabel, m.COACode, m.COAName, string(m.Method),
		m.Confidence, m.UseCount, m.ReviewedBy, now, now,
	)
	return eris.Wrapf(err, "sqlite: override global mapping %s", m.NormalizedLabel)
}

func (s *SQLiteStore) TouchGlobalMapping(ctx context.Context, normalizedLabel string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE global_mappings SET use_count = use_count + 1 WHERE normalized_label = ?`,
		normalizedLabel,
	)
	return eris.Wrap(err, "sqlite: touch global mapping")
}

func (s *SQLiteStore) CountDisagreeingDeals(ctx context.Context, normalizedLabel, coaCode string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT deal_id) FROM deal_mappings
		 WHERE normalized_label = ? AND coa_code = ?`,
		normalizedLabel, coaCode,
	)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count disagreeing deals")
	}
	return n, nil
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanDealMappings(rows *sql.Rows) ([]model.LearnedMapping, error) {
	var out []model.LearnedMapping
	for rows.Next() {
		var m model.LearnedMapping
		var method string
		var facilityID, documentID, reviewedBy sql.NullString
		err := rows.Scan(&m.ID, &m.DealID, &m.SourceLabel, &m.NormalizedLabel,
			&m.COACode, &m.COAName, &method, &m.Confidence, &m.UseCount,
			&facilityID, &documentID, &reviewedBy, &m.LastReviewedAt, &m.CreatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan deal mapping")
		}
		m.Scope = model.ScopeDeal
		m.Method = model.MappingMethod(method)
		m.FacilityID = facilityID.String
		m.DocumentID = documentID.String
		m.ReviewedBy = reviewedBy.String
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: deal mappings iterate")
}

func scanGlobalMapping(row scannable) (*model.LearnedMapping, error) {
	var m model.LearnedMapping
	var method string
	var reviewedBy sql.NullString
	err := row.Scan(&m.ID, &m.NormalizedLabel, &m.COACode, &m.COAName, &method,
		&m.Confidence, &m.UseCount, &reviewedBy, &m.LastReviewedAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Scope = model.ScopeGlobal
	m.SourceLabel = m.NormalizedLabel
	m.Method = model.MappingMethod(method)
	m.ReviewedBy = reviewedBy.String
	return &m, nil
}
