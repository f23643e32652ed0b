package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	_ "github.com/tursodatabase/go-libsql"
)

const (
	metaRepoID = "repo_id"
	metaNextID = "next_oid"
)

// LibSQLPersister stores repository objects in a libSQL (embedded SQLite
// fork) database.
type LibSQLPersister struct {
	db *sql.DB
}

// NewLibSQLPersister opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/repo.db".
func NewLibSQLPersister(dbPath string) (*LibSQLPersister, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so QueryRow is used throughout.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}
	return &LibSQLPersister{db: db}, nil
}

// Close closes the database.
func (p *LibSQLPersister) Close() error { return p.db.Close() }

// Migrate runs all pending database migrations.
func (p *LibSQLPersister) Migrate(ctx context.Context) error {
	return runMigrations(ctx, p.db)
}

// Vacuum runs VACUUM on the database.
func (p *LibSQLPersister) Vacuum(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, "VACUUM")
	return err
}

// Load reads every object and attribute.
func (p *LibSQLPersister) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	meta, err := p.readMeta(ctx)
	if err != nil {
		return nil, err
	}
	snap.RepoID = meta[metaRepoID]
	if v := meta[metaNextID]; v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", metaNextID, err)
		}
		snap.NextID = OID(n)
	}

	rows, err := p.db.QueryContext(ctx, `SELECT oid, type, parent, ord FROM objects ORDER BY oid`)
	if err != nil {
		return nil, fmt.Errorf("query objects: %w", err)
	}
	byID := make(map[OID]int)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Type, &r.Parent, &r.Order); err != nil {
			rows.Close()
			return nil, err
		}
		r.Attrs = make(map[AttrID]any)
		byID[r.ID] = len(snap.Objects)
		snap.Objects = append(snap.Objects, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = p.db.QueryContext(ctx, `SELECT oid, attr, kind, value FROM attrs`)
	if err != nil {
		return nil, fmt.Errorf("query attrs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id          OID
			attr        AttrID
			kind, value string
		)
		if err := rows.Scan(&id, &attr, &kind, &value); err != nil {
			return nil, err
		}
		i, ok := byID[id]
		if !ok {
			continue
		}
		v, err := decodeValue(kind, value)
		if err != nil {
			return nil, fmt.Errorf("object %d attr %d: %w", id, attr, err)
		}
		snap.Objects[i].Attrs[attr] = v
	}
	return snap, rows.Err()
}

func (p *LibSQLPersister) readMeta(ctx context.Context) (map[string]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("query meta: %w", err)
	}
	defer rows.Close()
	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// Save applies a change set in one database transaction.
func (p *LibSQLPersister) Save(ctx context.Context, cs *ChangeSet) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, kv := range [][2]string{{metaRepoID, cs.RepoID}, {metaNextID, strconv.FormatUint(uint64(cs.NextID), 10)}} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
			kv[0], kv[1]); err != nil {
			return fmt.Errorf("write meta %s: %w", kv[0], err)
		}
	}

	for _, id := range cs.Deletes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM attrs WHERE oid = ?`, id); err != nil {
			return fmt.Errorf("delete attrs of %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE oid = ?`, id); err != nil {
			return fmt.Errorf("delete object %d: %w", id, err)
		}
	}

	now := time.Now().UTC()
	for _, r := range cs.Upserts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO objects (oid, type, parent, ord, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(oid) DO UPDATE SET type=excluded.type, parent=excluded.parent, ord=excluded.ord, updated_at=excluded.updated_at`,
			r.ID, r.Type, r.Parent, r.Order, now); err != nil {
			return fmt.Errorf("upsert object %d: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM attrs WHERE oid = ?`, r.ID); err != nil {
			return fmt.Errorf("clear attrs of %d: %w", r.ID, err)
		}
		for attr, v := range r.Attrs {
			kind, value, err := encodeValue(v)
			if err != nil {
				return fmt.Errorf("object %d attr %d: %w", r.ID, attr, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO attrs (oid, attr, kind, value) VALUES (?, ?, ?, ?)`,
				r.ID, attr, kind, value); err != nil {
				return fmt.Errorf("insert attr %d of %d: %w", attr, r.ID, err)
			}
		}
	}
	return tx.Commit()
}

func encodeValue(v any) (kind, value string, err error) {
	switch x := v.(type) {
	case float64:
		return "f", strconv.FormatFloat(x, 'g', -1, 64), nil
	case int64:
		return "i", strconv.FormatInt(x, 10), nil
	case string:
		return "s", x, nil
	case bool:
		return "b", strconv.FormatBool(x), nil
	case OID:
		return "o", strconv.FormatUint(uint64(x), 10), nil
	case []orb.Point:
		data, err := json.Marshal(x)
		if err != nil {
			return "", "", err
		}
		return "p", string(data), nil
	case time.Time:
		return "t", x.UTC().Format(time.RFC3339Nano), nil
	default:
		return "", "", fmt.Errorf("unsupported value %T", v)
	}
}

func decodeValue(kind, value string) (any, error) {
	switch kind {
	case "f":
		return strconv.ParseFloat(value, 64)
	case "i":
		return strconv.ParseInt(value, 10, 64)
	case "s":
		return value, nil
	case "b":
		return strconv.ParseBool(value)
	case "o":
		n, err := strconv.ParseUint(value, 10, 64)
		return OID(n), err
	case "p":
		var pts []orb.Point
		if err := json.Unmarshal([]byte(value), &pts); err != nil {
			return nil, err
		}
		return pts, nil
	case "t":
		return time.Parse(time.RFC3339Nano, value)
	default:
		return nil, fmt.Errorf("unknown value kind %q", kind)
	}
}
