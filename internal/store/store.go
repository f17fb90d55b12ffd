// Package store keeps a local track history in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"a9g-tracker/internal/gps"
)

var ErrNotFixed = errors.New("store: snapshot has no usable fix")

// TrackPoint is one stored position.
type TrackPoint struct {
	ID        int64     `json:"id"`
	Time      time.Time `json:"time"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	AltM      float64   `json:"alt_m"`
	SpeedKPH  float64   `json:"speed_kph"`
	CourseDeg float64   `json:"course_deg"`
	FixType   int       `json:"fix_type"`
	Sats      int       `json:"sats"`
	HDOP      float64   `json:"hdop"`
}

// PointFromSnapshot converts a fixed snapshot. Snapshots without a usable
// fix return ErrNotFixed.
func PointFromSnapshot(snap gps.Snapshot, at time.Time) (TrackPoint, error) {
	if !snap.Fixed() {
		return TrackPoint{}, ErrNotFixed
	}
	return TrackPoint{
		Time:      at.UTC(),
		Lat:       snap.LatDeg,
		Lon:       snap.LonDeg,
		AltM:      snap.AltM,
		SpeedKPH:  snap.SpeedKPH,
		CourseDeg: snap.CourseDeg,
		FixType:   snap.FixType,
		Sats:      snap.SatsInUse,
		HDOP:      snap.HDOP,
	}, nil
}

// tsLayout is fixed width so text order matches time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	mu sync.Mutex
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite is single-writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.Initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS track (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	lat REAL NOT NULL,
	lon REAL NOT NULL,
	alt_m REAL,
	speed_kph REAL,
	course_deg REAL,
	fix_type INTEGER,
	sats INTEGER,
	hdop REAL
);
`)
	if err != nil {
		return fmt.Errorf("store: create track: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_track_time ON track(timestamp)`); err != nil {
		return fmt.Errorf("store: create index: %w", err)
	}
	return nil
}

func (s *Store) Record(ctx context.Context, p TrackPoint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
INSERT INTO track (timestamp, lat, lon, alt_m, speed_kph, course_deg, fix_type, sats, hdop)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Time.UTC().Format(tsLayout), p.Lat, p.Lon, p.AltM, p.SpeedKPH, p.CourseDeg, p.FixType, p.Sats, p.HDOP)
	if err != nil {
		return 0, fmt.Errorf("store: insert: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit points, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]TrackPoint, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
SELECT id, timestamp, lat, lon, alt_m, speed_kph, course_deg, fix_type, sats, hdop
FROM track ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	var out []TrackPoint
	for rows.Next() {
		var p TrackPoint
		var ts string
		if err := rows.Scan(&p.ID, &ts, &p.Lat, &p.Lon, &p.AltM, &p.SpeedKPH, &p.CourseDeg, &p.FixType, &p.Sats, &p.HDOP); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		if p.Time, err = time.Parse(tsLayout, ts); err != nil {
			return nil, fmt.Errorf("store: bad timestamp %q: %w", ts, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM track`).Scan(&n)
	return n, err
}

// Prune deletes points older than before and returns how many went.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM track WHERE timestamp < ?`, before.UTC().Format(tsLayout))
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	return res.RowsAffected()
}
