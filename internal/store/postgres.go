package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "strings"
    "time"

    _ "github.com/jackc/pgx/v5/stdlib"

    "github.com/yourorg/portal-api/internal/canon"
)

// Store reads the portal's externally-owned collections. Every collection
// keeps its record as one JSONB document; rows come back as canon.Row bags
// with no interpretation applied here.
type Store struct { DB *sql.DB }

func Open(dsn string) (*Store, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil { return nil, err }
    db.SetMaxOpenConns(10)
    db.SetMaxIdleConns(5)
    db.SetConnMaxLifetime(30 * time.Minute)
    return &Store{DB: db}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) Migrate(ctx context.Context) error {
    stmts := []string{
        `CREATE TABLE IF NOT EXISTS condominiums (
            id          TEXT PRIMARY KEY,
            data        JSONB NOT NULL,
            created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
        );`,
        `CREATE TABLE IF NOT EXISTS listings (
            id              TEXT PRIMARY KEY,
            condominium_id  TEXT,
            property_type   TEXT,
            data            JSONB NOT NULL,
            created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
        );`,
        `CREATE INDEX IF NOT EXISTS idx_listings_condominium ON listings(condominium_id, property_type);`,
        `CREATE TABLE IF NOT EXISTS listing_details (
            listing_id  TEXT PRIMARY KEY,
            data        JSONB NOT NULL
        );`,
        `CREATE TABLE IF NOT EXISTS entity_locations (
            entity_id    TEXT NOT NULL,
            entity_type  TEXT NOT NULL,
            data         JSONB NOT NULL,
            PRIMARY KEY (entity_id, entity_type)
        );`,
        `CREATE TABLE IF NOT EXISTS entity_features (
            entity_id    TEXT NOT NULL,
            entity_type  TEXT NOT NULL,
            data         JSONB NOT NULL,
            PRIMARY KEY (entity_id, entity_type)
        );`,
        `CREATE TABLE IF NOT EXISTS media_items (
            id           BIGSERIAL PRIMARY KEY,
            entity_id    TEXT NOT NULL,
            entity_type  TEXT NOT NULL,
            data         JSONB NOT NULL
        );`,
        `CREATE INDEX IF NOT EXISTS idx_media_entity ON media_items(entity_id, entity_type);`,
        `CREATE TABLE IF NOT EXISTS launch_search (
            condominium_id  TEXT PRIMARY KEY,
            data            JSONB NOT NULL,
            refreshed_at    TIMESTAMPTZ NOT NULL DEFAULT now()
        );`,
        `CREATE TABLE IF NOT EXISTS cities (
            id    BIGINT PRIMARY KEY,
            data  JSONB NOT NULL
        );`,
        `CREATE TABLE IF NOT EXISTS states (
            id    BIGINT PRIMARY KEY,
            data  JSONB NOT NULL
        );`,
    }
    for _, q := range stmts {
        if _, err := s.DB.ExecContext(ctx, q); err != nil { return err }
    }
    return nil
}

// mediaOrder puts primary items first, then explicit ordering.
const mediaOrder = `ORDER BY COALESCE((data->>'is_primary')::boolean, false) DESC, COALESCE((data->>'order')::int, 0) ASC, id ASC`

func (s *Store) Condominium(ctx context.Context, id string) (canon.Row, error) {
    return s.getRow(ctx, `SELECT data FROM condominiums WHERE id = $1`, id)
}

func (s *Store) Listing(ctx context.Context, id string) (canon.Row, error) {
    return s.getRow(ctx, `SELECT data FROM listings WHERE id = $1`, id)
}

func (s *Store) LaunchSearch(ctx context.Context, condominiumID string) (canon.Row, error) {
    return s.getRow(ctx, `SELECT data FROM launch_search WHERE condominium_id = $1`, condominiumID)
}

func (s *Store) ListingDetails(ctx context.Context, id string) (canon.Row, error) {
    return s.getRow(ctx, `SELECT data FROM listing_details WHERE listing_id = $1`, id)
}

func (s *Store) Location(ctx context.Context, entityType, id string) (canon.Row, error) {
    return s.getRow(ctx, `SELECT data FROM entity_locations WHERE entity_id = $1 AND entity_type = $2`, id, entityType)
}

func (s *Store) Features(ctx context.Context, entityType, id string) (canon.Row, error) {
    return s.getRow(ctx, `SELECT data FROM entity_features WHERE entity_id = $1 AND entity_type = $2`, id, entityType)
}

func (s *Store) City(ctx context.Context, id int64) (canon.Row, error) {
    return s.getRow(ctx, `SELECT data FROM cities WHERE id = $1`, id)
}

func (s *Store) State(ctx context.Context, id int64) (canon.Row, error) {
    return s.getRow(ctx, `SELECT data FROM states WHERE id = $1`, id)
}

func (s *Store) Media(ctx context.Context, entityType, id string) ([]canon.Row, error) {
    q := `SELECT entity_id, data FROM media_items WHERE entity_id = $1 AND entity_type = $2 ` + mediaOrder
    return s.listRows(ctx, "entity_id", q, id, entityType)
}

func (s *Store) ListingsByParent(ctx context.Context, parentID, propertyType string) ([]canon.Row, error) {
    q := `SELECT id, data FROM listings WHERE condominium_id = $1 AND property_type = $2 ORDER BY created_at, id`
    return s.listRows(ctx, "id", q, parentID, propertyType)
}

func (s *Store) ListingDetailsByIDs(ctx context.Context, ids []string) ([]canon.Row, error) {
    if len(ids) == 0 { return nil, nil }
    q := fmt.Sprintf(`SELECT listing_id, data FROM listing_details WHERE listing_id IN (%s)`, placeholders(len(ids), 1))
    return s.listRows(ctx, "listing_id", q, asArgs(ids)...)
}

func (s *Store) LocationsByIDs(ctx context.Context, entityType string, ids []string) ([]canon.Row, error) {
    if len(ids) == 0 { return nil, nil }
    q := fmt.Sprintf(`SELECT entity_id, data FROM entity_locations WHERE entity_type = $1 AND entity_id IN (%s)`, placeholders(len(ids), 2))
    return s.listRows(ctx, "entity_id", q, append([]any{entityType}, asArgs(ids)...)...)
}

func (s *Store) FeaturesByIDs(ctx context.Context, entityType string, ids []string) ([]canon.Row, error) {
    if len(ids) == 0 { return nil, nil }
    q := fmt.Sprintf(`SELECT entity_id, data FROM entity_features WHERE entity_type = $1 AND entity_id IN (%s)`, placeholders(len(ids), 2))
    return s.listRows(ctx, "entity_id", q, append([]any{entityType}, asArgs(ids)...)...)
}

func (s *Store) MediaByIDs(ctx context.Context, entityType string, ids []string) ([]canon.Row, error) {
    if len(ids) == 0 { return nil, nil }
    q := fmt.Sprintf(`SELECT entity_id, data FROM media_items WHERE entity_type = $1 AND entity_id IN (%s) %s`, placeholders(len(ids), 2), mediaOrder)
    return s.listRows(ctx, "entity_id", q, append([]any{entityType}, asArgs(ids)...)...)
}

// CondominiumIDs feeds the cache warmer.
func (s *Store) CondominiumIDs(ctx context.Context) ([]string, error) {
    rows, err := s.DB.QueryContext(ctx, `SELECT id FROM condominiums ORDER BY id`)
    if err != nil { return nil, err }
    defer rows.Close()
    var ids []string
    for rows.Next() {
        var id string
        if err := rows.Scan(&id); err != nil { return nil, err }
        ids = append(ids, id)
    }
    return ids, rows.Err()
}

func (s *Store) getRow(ctx context.Context, query string, args ...any) (canon.Row, error) {
    var raw []byte
    err := s.DB.QueryRowContext(ctx, query, args...).Scan(&raw)
    if errors.Is(err, sql.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return decodeRow(raw)
}

// listRows scans (key, data) pairs and guarantees the key column is present
// inside the returned bag, so callers can build lookup maps without caring
// whether the source document carried it.
func (s *Store) listRows(ctx context.Context, keyField, query string, args ...any) ([]canon.Row, error) {
    rows, err := s.DB.QueryContext(ctx, query, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []canon.Row
    for rows.Next() {
        var key string
        var raw []byte
        if err := rows.Scan(&key, &raw); err != nil { return nil, err }
        row, err := decodeRow(raw)
        if err != nil { return nil, err }
        if row == nil { continue }
        if _, ok := row[keyField]; !ok { row[keyField] = key }
        out = append(out, row)
    }
    return out, rows.Err()
}

func decodeRow(raw []byte) (canon.Row, error) {
    if len(raw) == 0 { return nil, nil }
    var row canon.Row
    if err := json.Unmarshal(raw, &row); err != nil { return nil, err }
    return row, nil
}

func placeholders(n, from int) string {
    parts := make([]string, n)
    for i := 0; i < n; i++ {
        parts[i] = fmt.Sprintf("$%d", from+i)
    }
    return strings.Join(parts, ",")
}

func asArgs(ids []string) []any {
    args := make([]any, len(ids))
    for i, id := range ids { args[i] = id }
    return args
}
