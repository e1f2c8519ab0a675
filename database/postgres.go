// database/postgres.go
package database

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "strings"

    "github.com/lib/pq"

    "optihome/models"
)

type PostgresDB struct {
    DB *sql.DB
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
    db, err := sql.Open("postgres", databaseURL)
    if err != nil {
        return nil, fmt.Errorf("failed to open database: %w", err)
    }

    if err := db.Ping(); err != nil {
        return nil, fmt.Errorf("failed to ping database: %w", err)
    }

    pgDB := &PostgresDB{DB: db}
    if err := pgDB.createTables(); err != nil {
        return nil, fmt.Errorf("failed to create tables: %w", err)
    }

    return pgDB, nil
}

func (p *PostgresDB) createTables() error {
    queries := []string{
        `CREATE TABLE IF NOT EXISTS properties (
            id SERIAL PRIMARY KEY,
            external_id VARCHAR(100) UNIQUE NOT NULL,
            uuid VARCHAR(36) NOT NULL DEFAULT '',
            url VARCHAR(1024) NOT NULL DEFAULT '',
            title VARCHAR(512) NOT NULL DEFAULT '',
            type VARCHAR(16) NOT NULL,
            price_eur DOUBLE PRECISION NOT NULL DEFAULT 0,
            area_m2 DOUBLE PRECISION NOT NULL DEFAULT 0,
            rooms INTEGER NOT NULL DEFAULT 0,
            price_per_m2 DOUBLE PRECISION NOT NULL DEFAULT 0,
            year_built INTEGER,
            address VARCHAR(512),
            lat DOUBLE PRECISION,
            lng DOUBLE PRECISION,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,
        `CREATE TABLE IF NOT EXISTS geocode_cache (
            id SERIAL PRIMARY KEY,
            query VARCHAR(512) UNIQUE NOT NULL,
            lat DOUBLE PRECISION NOT NULL,
            lng DOUBLE PRECISION NOT NULL,
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,
        `CREATE INDEX IF NOT EXISTS idx_properties_type ON properties(type)`,
        `CREATE INDEX IF NOT EXISTS idx_properties_price ON properties(price_eur)`,
        `CREATE INDEX IF NOT EXISTS idx_properties_rooms ON properties(rooms)`,
        `CREATE INDEX IF NOT EXISTS idx_properties_price_per_m2 ON properties(price_per_m2)`,
        `CREATE INDEX IF NOT EXISTS idx_properties_year ON properties(year_built)`,
        `CREATE INDEX IF NOT EXISTS idx_properties_coords ON properties(lat, lng)`,
    }

    for _, query := range queries {
        if _, err := p.DB.Exec(query); err != nil {
            return fmt.Errorf("failed to execute query %s: %w", query, err)
        }
    }

    return nil
}

func (p *PostgresDB) Begin(ctx context.Context) (Tx, error) {
    tx, err := p.DB.BeginTx(ctx, nil)
    if err != nil {
        return nil, fmt.Errorf("failed to begin transaction: %w", err)
    }
    return &postgresTx{tx: tx}, nil
}

const propertyColumns = `id, external_id, uuid, url, title, type, price_eur, area_m2, rooms,
        price_per_m2, year_built, address, lat, lng, is_active, created_at, updated_at`

func scanProperty(row interface{ Scan(...interface{}) error }) (*models.Property, error) {
    var prop models.Property
    err := row.Scan(
        &prop.ID, &prop.ExternalID, &prop.UUID, &prop.URL, &prop.Title, &prop.Type,
        &prop.PriceEUR, &prop.AreaM2, &prop.Rooms, &prop.PricePerM2,
        &prop.YearBuilt, &prop.Address, &prop.Lat, &prop.Lng,
        &prop.IsActive, &prop.CreatedAt, &prop.UpdatedAt,
    )
    if err != nil {
        return nil, err
    }
    return &prop, nil
}

func (p *PostgresDB) ListProperties(ctx context.Context, f models.PropertyFilter) ([]models.Property, int, error) {
    where, args := buildPropertyWhere(f)

    var total int
    countQuery := "SELECT COUNT(*) FROM properties" + where
    if err := p.DB.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
        return nil, 0, fmt.Errorf("failed to count properties: %w", err)
    }

    query := "SELECT " + propertyColumns + " FROM properties" + where + " ORDER BY id"
    if f.Limit > 0 {
        args = append(args, f.Limit)
        query += fmt.Sprintf(" LIMIT $%d", len(args))
    }
    if f.Offset > 0 {
        args = append(args, f.Offset)
        query += fmt.Sprintf(" OFFSET $%d", len(args))
    }

    rows, err := p.DB.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, 0, fmt.Errorf("failed to query properties: %w", err)
    }
    defer rows.Close()

    var props []models.Property
    for rows.Next() {
        prop, err := scanProperty(rows)
        if err != nil {
            return nil, 0, err
        }
        props = append(props, *prop)
    }
    if err := rows.Err(); err != nil {
        return nil, 0, err
    }

    return props, total, nil
}

func buildPropertyWhere(f models.PropertyFilter) (string, []interface{}) {
    var conds []string
    var args []interface{}

    add := func(cond string, val interface{}) {
        args = append(args, val)
        conds = append(conds, fmt.Sprintf(cond, len(args)))
    }

    if !f.IncludeInactive {
        conds = append(conds, "is_active")
    }
    if f.Type != "" {
        add("type = $%d", f.Type)
    }
    if f.MinPrice != nil {
        add("price_eur >= $%d", *f.MinPrice)
    }
    if f.MaxPrice != nil {
        add("price_eur <= $%d", *f.MaxPrice)
    }
    if f.MinRooms != nil {
        add("rooms >= $%d", *f.MinRooms)
    }
    if f.MaxRooms != nil {
        add("rooms <= $%d", *f.MaxRooms)
    }
    if f.MinArea != nil {
        add("area_m2 >= $%d", *f.MinArea)
    }
    if f.MaxArea != nil {
        add("area_m2 <= $%d", *f.MaxArea)
    }
    if f.MinYear != nil {
        add("year_built >= $%d", *f.MinYear)
    }
    if f.MaxYear != nil {
        add("year_built <= $%d", *f.MaxYear)
    }
    if f.BBox != nil {
        add("lat >= $%d", f.BBox.MinLat)
        add("lat <= $%d", f.BBox.MaxLat)
        add("lng >= $%d", f.BBox.MinLng)
        add("lng <= $%d", f.BBox.MaxLng)
    }

    if len(conds) == 0 {
        return "", args
    }
    return " WHERE " + strings.Join(conds, " AND "), args
}

func (p *PostgresDB) GetGeocode(ctx context.Context, query string) (float64, float64, error) {
    var lat, lng float64
    err := p.DB.QueryRowContext(ctx,
        "SELECT lat, lng FROM geocode_cache WHERE query = $1", query,
    ).Scan(&lat, &lng)
    if errors.Is(err, sql.ErrNoRows) {
        return 0, 0, ErrNotFound
    }
    if err != nil {
        return 0, 0, err
    }
    return lat, lng, nil
}

func (p *PostgresDB) SaveGeocode(ctx context.Context, query string, lat, lng float64) error {
    _, err := p.DB.ExecContext(ctx,
        "INSERT INTO geocode_cache (query, lat, lng) VALUES ($1, $2, $3)",
        query, lat, lng,
    )
    // First writer wins; a concurrent insert on the same key is a cache hit.
    if isUniqueViolation(err) {
        return nil
    }
    return err
}

func (p *PostgresDB) Close() error {
    return p.DB.Close()
}

func isUniqueViolation(err error) bool {
    var pqErr *pq.Error
    return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

type postgresTx struct {
    tx *sql.Tx
}

func (t *postgresTx) GetPropertyByExternalID(ctx context.Context, externalID string) (*models.Property, error) {
    row := t.tx.QueryRowContext(ctx,
        "SELECT "+propertyColumns+" FROM properties WHERE external_id = $1", externalID,
    )
    prop, err := scanProperty(row)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrNotFound
        }
        return nil, err
    }
    return prop, nil
}

func (t *postgresTx) InsertProperty(ctx context.Context, prop *models.Property) error {
    // ON CONFLICT DO NOTHING keeps the transaction usable when a concurrent
    // writer won the external_id race; the caller re-reads the winning row.
    query := `
        INSERT INTO properties (external_id, uuid, url, title, type, price_eur, area_m2, rooms,
            price_per_m2, year_built, address, lat, lng, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
        ON CONFLICT (external_id) DO NOTHING
        RETURNING id`

    err := t.tx.QueryRowContext(ctx, query,
        prop.ExternalID, prop.UUID, prop.URL, prop.Title, prop.Type,
        prop.PriceEUR, prop.AreaM2, prop.Rooms, prop.PricePerM2,
        prop.YearBuilt, prop.Address, prop.Lat, prop.Lng,
        prop.IsActive, prop.CreatedAt, prop.UpdatedAt,
    ).Scan(&prop.ID)
    if errors.Is(err, sql.ErrNoRows) {
        return ErrDuplicate
    }
    return err
}

func (t *postgresTx) UpdateProperty(ctx context.Context, prop *models.Property) error {
    query := `
        UPDATE properties SET
            uuid = $2, url = $3, title = $4, type = $5, price_eur = $6, area_m2 = $7,
            rooms = $8, price_per_m2 = $9, year_built = $10, address = $11,
            lat = $12, lng = $13, is_active = $14, updated_at = $15
        WHERE id = $1`

    _, err := t.tx.ExecContext(ctx, query,
        prop.ID, prop.UUID, prop.URL, prop.Title, prop.Type,
        prop.PriceEUR, prop.AreaM2, prop.Rooms, prop.PricePerM2,
        prop.YearBuilt, prop.Address, prop.Lat, prop.Lng,
        prop.IsActive, prop.UpdatedAt,
    )
    return err
}

func (t *postgresTx) DeactivateMissing(ctx context.Context, kind string, seen []string) (int64, error) {
    if seen == nil {
        seen = []string{}
    }
    res, err := t.tx.ExecContext(ctx, `
        UPDATE properties SET is_active = FALSE, updated_at = CURRENT_TIMESTAMP
        WHERE type = $1 AND is_active AND NOT (external_id = ANY($2))`,
        kind, pq.Array(seen),
    )
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

func (t *postgresTx) Commit() error {
    return t.tx.Commit()
}

func (t *postgresTx) Rollback() error {
    return t.tx.Rollback()
}
