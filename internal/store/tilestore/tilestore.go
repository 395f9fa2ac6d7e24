package tilestore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database holding extracted training tiles. Each tile
// pairs a float32 NAIP input block with one or more LiDAR label rasters.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS datasets (
	  name TEXT PRIMARY KEY,
	  naip_width INTEGER NOT NULL,
	  naip_height INTEGER NOT NULL,
	  lidar_width INTEGER NOT NULL,
	  lidar_height INTEGER NOT NULL,
	  bands TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS tiles (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  dataset TEXT NOT NULL,
	  split TEXT NOT NULL,
	  acquisition TEXT NOT NULL,
	  input BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tiles_ds_split ON tiles(dataset, split);
	CREATE TABLE IF NOT EXISTS tile_labels (
	  tile_id INTEGER NOT NULL,
	  name TEXT NOT NULL,
	  data BLOB NOT NULL,
	  PRIMARY KEY (tile_id, name)
	);
	`)
	return err
}

// Meta describes one cached dataset: tile shapes and stored band order.
type Meta struct {
	Name       string
	NAIPShape  [2]int // height, width of input tiles
	LidarShape [2]int // height, width of label tiles
	Bands      []string
}

// PutMeta upserts dataset metadata.
func (d *DB) PutMeta(ctx context.Context, m Meta) error {
	bands, _ := json.Marshal(m.Bands)
	_, err := d.sql.ExecContext(ctx, `
	INSERT INTO datasets(name, naip_width, naip_height, lidar_width, lidar_height, bands)
	VALUES(?,?,?,?,?,?)
	ON CONFLICT(name) DO UPDATE SET
	  naip_width=excluded.naip_width, naip_height=excluded.naip_height,
	  lidar_width=excluded.lidar_width, lidar_height=excluded.lidar_height,
	  bands=excluded.bands`,
		m.Name, m.NAIPShape[1], m.NAIPShape[0], m.LidarShape[1], m.LidarShape[0], string(bands))
	return err
}

// LoadMeta returns metadata for a named dataset.
func (d *DB) LoadMeta(ctx context.Context, name string) (Meta, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT naip_width, naip_height, lidar_width, lidar_height, bands FROM datasets WHERE name=?`, name)
	var m Meta
	var bands string
	m.Name = name
	if err := row.Scan(&m.NAIPShape[1], &m.NAIPShape[0], &m.LidarShape[1], &m.LidarShape[0], &bands); err != nil {
		if err == sql.ErrNoRows {
			return m, fmt.Errorf("dataset %s not found", name)
		}
		return m, err
	}
	if err := json.Unmarshal([]byte(bands), &m.Bands); err != nil {
		return m, err
	}
	return m, nil
}

// PutTile stores one input tile and its label rasters under a dataset split.
func (d *DB) PutTile(ctx context.Context, dataset, split, acq string, input []float32, labels map[string][]float32) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `INSERT INTO tiles(dataset, split, acquisition, input) VALUES(?,?,?,?)`,
		dataset, split, acq, encodeF32(input))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for name, data := range labels {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tile_labels(tile_id, name, data) VALUES(?,?,?)`,
			id, name, encodeF32(data)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Tile is one loaded input/label pair.
type Tile struct {
	Acquisition string
	Input       []float32
	Label       []float32
}

// LoadTiles returns every tile of a dataset split joined with the named
// label, in insertion order.
func (d *DB) LoadTiles(ctx context.Context, dataset, split, label string) ([]Tile, error) {
	rows, err := d.sql.QueryContext(ctx, `
	SELECT t.acquisition, t.input, l.data
	FROM tiles t JOIN tile_labels l ON l.tile_id = t.id AND l.name = ?
	WHERE t.dataset = ? AND t.split = ?
	ORDER BY t.id`, label, dataset, split)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tile
	for rows.Next() {
		var acq string
		var in, lb []byte
		if err := rows.Scan(&acq, &in, &lb); err != nil {
			return nil, err
		}
		out = append(out, Tile{Acquisition: acq, Input: decodeF32(in), Label: decodeF32(lb)})
	}
	return out, rows.Err()
}

// CountTiles returns the number of tiles in a dataset split.
func (d *DB) CountTiles(ctx context.Context, dataset, split string) (int, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM tiles WHERE dataset=? AND split=?`, dataset, split)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func encodeF32(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v[i]))
	}
	return b
}

func decodeF32(b []byte) []float32 {
	n := len(b) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
