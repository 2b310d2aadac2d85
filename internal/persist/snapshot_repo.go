package persist

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// SnapshotRow is one saved version of a scene.
type SnapshotRow struct {
	ID        uuid.UUID
	Name      string
	Digest    string
	CreatedAt time.Time
}

// PGStore keeps every saved version of a scene in scene_snapshots and loads
// the latest one. A save whose content digest matches the latest version is
// skipped.
type PGStore struct {
	db  *DB
	log *zap.Logger
}

func NewPGStore(db *DB, log *zap.Logger) *PGStore {
	return &PGStore{db: db, log: log}
}

// Digest is the hex blake2b-256 of a scene document.
func Digest(doc []byte) string {
	sum := blake2b.Sum256(doc)
	return hex.EncodeToString(sum[:])
}

func (s *PGStore) Load(ctx context.Context, name string) ([]byte, error) {
	var body []byte
	err := s.db.Pool.QueryRow(ctx,
		`SELECT body FROM scene_snapshots WHERE name = $1 ORDER BY seq DESC LIMIT 1`, name,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrSceneNotFound, "%q", name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "load scene %q", name)
	}
	return body, nil
}

func (s *PGStore) Save(ctx context.Context, name string, doc []byte) error {
	digest := Digest(doc)
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "snapshot begin")
	}
	defer tx.Rollback(ctx)

	var latest string
	err = tx.QueryRow(ctx,
		`SELECT digest FROM scene_snapshots WHERE name = $1 ORDER BY seq DESC LIMIT 1 FOR UPDATE`, name,
	).Scan(&latest)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(err, "snapshot digest %q", name)
	}
	if latest == digest {
		s.log.Debug("scene unchanged, snapshot skipped", zap.String("scene", name))
		return nil
	}

	id := uuid.New()
	if _, err := tx.Exec(ctx,
		`INSERT INTO scene_snapshots (id, name, digest, body) VALUES ($1, $2, $3, $4)`,
		id, name, digest, doc,
	); err != nil {
		return eris.Wrapf(err, "snapshot insert %q", name)
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "snapshot commit")
	}
	s.log.Info("scene snapshot saved", zap.String("scene", name), zap.String("id", id.String()))
	return nil
}

func (s *PGStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx, `SELECT DISTINCT name FROM scene_snapshots ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "list scenes")
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, eris.Wrap(err, "list scenes")
	}
	return names, nil
}

// History returns up to limit versions of a scene, newest first.
func (s *PGStore) History(ctx context.Context, name string, limit int) ([]SnapshotRow, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, name, digest, created_at FROM scene_snapshots
		 WHERE name = $1 ORDER BY seq DESC LIMIT $2`, name, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "scene history %q", name)
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Digest, &r.CreatedAt); err != nil {
			return nil, eris.Wrapf(err, "scene history %q", name)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
