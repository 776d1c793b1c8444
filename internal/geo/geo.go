// Package geo resolves settlement names to coordinates using a local
// SQLite cities database (SimpleMaps world-cities layout). It is the
// lookup collaborator of the acquisition engine, not part of the
// fetch pipeline itself.
package geo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/matt1111-hash/meteo-analytics/pkg/weather"
)

// ErrNotFound is returned when no settlement matches.
var ErrNotFound = errors.New("settlement not found")

// Settlement is one row of the cities database.
type Settlement struct {
	Name       string
	Country    string
	Latitude   float64
	Longitude  float64
	Population int64
}

// Location converts the settlement to a domain location.
func (s Settlement) Location() weather.Location {
	return weather.Location{
		Name:      s.Name,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
	}
}

// DB wraps the read-only settlements database.
type DB struct {
	db *sql.DB
}

// Open opens the cities database and verifies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("SELECT city, country, lat, lng, population FROM cities LIMIT 1"); err != nil {
		db.Close()
		return nil, fmt.Errorf("verify cities schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close releases the database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// Search returns settlements whose name starts with the query, largest
// population first.
func (d *DB) Search(ctx context.Context, name string, limit int) ([]Settlement, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT city, country, lat, lng, COALESCE(population, 0)
		   FROM cities
		  WHERE city LIKE ? COLLATE NOCASE
		  ORDER BY population DESC
		  LIMIT ?`,
		name+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search cities: %w", err)
	}
	defer rows.Close()

	var out []Settlement
	for rows.Next() {
		var s Settlement
		if err := rows.Scan(&s.Name, &s.Country, &s.Latitude, &s.Longitude, &s.Population); err != nil {
			return nil, fmt.Errorf("scan city row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate city rows: %w", err)
	}
	return out, nil
}

// Lookup returns the best match for an exact settlement name.
func (d *DB) Lookup(ctx context.Context, name string) (Settlement, error) {
	matches, err := d.Search(ctx, name, 1)
	if err != nil {
		return Settlement{}, err
	}
	if len(matches) == 0 {
		return Settlement{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return matches[0], nil
}

// Nearest returns the settlement closest to the coordinates. It uses a
// squared-degree distance, good enough for display purposes.
func (d *DB) Nearest(ctx context.Context, lat, lon float64) (Settlement, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT city, country, lat, lng, COALESCE(population, 0)
		   FROM cities
		  ORDER BY (lat - ?) * (lat - ?) + (lng - ?) * (lng - ?)
		  LIMIT 1`,
		lat, lat, lon, lon)

	var s Settlement
	if err := row.Scan(&s.Name, &s.Country, &s.Latitude, &s.Longitude, &s.Population); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Settlement{}, ErrNotFound
		}
		return Settlement{}, fmt.Errorf("nearest city: %w", err)
	}
	return s, nil
}
