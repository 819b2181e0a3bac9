package profile

import (
	"context"
	"database/sql"
	"errors"

	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/store"
)

// Repository reads and writes db_profile rows. Passwords pass through as
// stored (encrypted); the Service owns encryption.
type Repository struct {
	db store.Querier
}

// NewRepository creates a Repository.
func NewRepository(db store.Querier) *Repository {
	return &Repository{db: db}
}

const profileColumns = `id, type, host, port, name, username, password, view_name, annotation_id, created_at, updated_at`

func (r *Repository) Insert(ctx context.Context, p *Profile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO db_profile (id, type, host, port, name, username, password, view_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.Type), nullString(p.Host), nullInt(p.Port), nullString(p.Name),
		nullString(p.Username), nullString(p.Password), nullString(p.ViewName))
	if err != nil {
		return store.MapError(err, "failed to insert profile")
	}
	return nil
}

// Update rewrites the connection fields of p.ID. It reports whether the row existed.
func (r *Repository) Update(ctx context.Context, p *Profile) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE db_profile
		SET type = ?, host = ?, port = ?, name = ?, username = ?, password = ?, view_name = ?
		WHERE id = ?`,
		string(p.Type), nullString(p.Host), nullInt(p.Port), nullString(p.Name),
		nullString(p.Username), nullString(p.Password), nullString(p.ViewName), p.ID)
	if err != nil {
		return false, store.MapError(err, "failed to update profile")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Delete removes the profile; its annotation tree cascades.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM db_profile WHERE id = ?`, id)
	if err != nil {
		return false, store.MapError(err, "failed to delete profile")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Get returns the profile or nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*Profile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM db_profile WHERE id = ?`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.MapError(err, "failed to read profile")
	}
	return p, nil
}

// List returns every profile, newest first.
func (r *Repository) List(ctx context.Context) ([]*Profile, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM db_profile ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, store.MapError(err, "failed to list profiles")
	}
	defer rows.Close()

	out := []*Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, store.MapError(err, "failed to read profile")
		}
		out = append(out, p)
	}
	return out, store.MapError(rows.Err(), "failed to list profiles")
}

// SetAnnotation links the profile to an annotation root.
func (r *Repository) SetAnnotation(ctx context.Context, profileID, annotationID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE db_profile SET annotation_id = ? WHERE id = ?`, annotationID, profileID)
	if err != nil {
		return store.MapError(err, "failed to link annotation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.Newf(errs.ErrKindNotFound, "profile %s not found", profileID).WithCode(errs.CodeNoSearchData)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(s scanner) (*Profile, error) {
	var (
		p                                        Profile
		typ                                      string
		host, name, username, password, viewName sql.NullString
		port                                     sql.NullInt64
		annotationID                             sql.NullString
	)
	if err := s.Scan(&p.ID, &typ, &host, &port, &name, &username, &password, &viewName,
		&annotationID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Type = dialect.Type(typ)
	p.Host = host.String
	p.Port = int(port.Int64)
	p.Name = name.String
	p.Username = username.String
	p.Password = password.String
	p.ViewName = viewName.String
	if annotationID.Valid {
		p.AnnotationID = &annotationID.String
	}
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
