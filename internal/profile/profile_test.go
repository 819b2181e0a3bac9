package profile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/koustreak/qgenie/internal/credential"
	"github.com/koustreak/qgenie/internal/database"
	"github.com/koustreak/qgenie/internal/database/registry"
	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/logger"
	"github.com/koustreak/qgenie/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name string
		in   Input
		code errs.Code
	}{
		{"sqlite ok", Input{Type: "sqlite", Name: "/tmp/a.db"}, ""},
		{"sqlite needs name", Input{Type: "SQLite"}, errs.CodeNoValue},
		{"postgres ok", Input{Type: "postgresql", Host: "h", Port: 5432, Username: "u", Password: "p"}, ""},
		{"postgres blank password", Input{Type: "postgresql", Host: "h", Port: 5432, Username: "u", Password: "  "}, errs.CodeNoValue},
		{"oracle needs service name", Input{Type: "oracle", Host: "h", Port: 1521, Username: "u", Password: "p"}, errs.CodeNoValue},
		{"sqlserver ok", Input{Type: "sqlserver", Host: "h", Port: 1433, Username: "u", Password: "p"}, ""},
		{"port out of range", Input{Type: "mysql", Host: "h", Port: 70000, Username: "u", Password: "p"}, errs.CodeInvalidParameter},
		{"missing type", Input{Name: "x"}, errs.CodeNoDBDriver},
		{"unknown type", Input{Type: "db2"}, errs.CodeInvalidDBDriver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.in)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, errs.CodeOf(err))
		})
	}
}

func TestValidator_NamesMissingFields(t *testing.T) {
	err := NewValidator().Validate(Input{Type: "mysql", Port: 3306})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host")
	assert.Contains(t, err.Error(), "username")
	assert.Contains(t, err.Error(), "password")
}

type fixture struct {
	svc   *Service
	store *store.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{Path: filepath.Join(t.TempDir(), "store.sqlite")}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	key, err := credential.GenerateKey()
	require.NoError(t, err)
	c, err := credential.NewCipher(key)
	require.NoError(t, err)

	connector := registry.NewConnector(database.DefaultOptions())
	return fixture{svc: NewService(NewRepository(s.DB()), c, connector, logger.Nop()), store: s}
}

func targetFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.sqlite")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	return path
}

func TestService_CRUD(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Create(ctx, Input{Type: "postgresql", Host: "db", Port: 5432, Username: "app", Password: "pw", ViewName: "Main"})
	require.NoError(t, err)
	assert.Regexp(t, `^USER-DB-[0-9A-F]{32}$`, created.ID)
	assert.Equal(t, dialect.PostgreSQL, created.Type)
	assert.Empty(t, created.Password)
	assert.Nil(t, created.AnnotationID)

	var stored string
	require.NoError(t, f.store.DB().QueryRow(`SELECT password FROM db_profile WHERE id = ?`, created.ID).Scan(&stored))
	assert.NotEqual(t, "pw", stored, "password must be encrypted at rest")

	resolved, err := f.svc.Resolve(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "pw", resolved.Password)

	host := "replica"
	updated, err := f.svc.Update(ctx, created.ID, Patch{Host: &host})
	require.NoError(t, err)
	assert.Equal(t, "replica", updated.Host)
	assert.Equal(t, "app", updated.Username)

	resolved, err = f.svc.Resolve(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "pw", resolved.Password, "untouched password survives a patch")

	empty := ""
	_, err = f.svc.Update(ctx, created.ID, Patch{Username: &empty})
	assert.Equal(t, errs.CodeNoValue, errs.CodeOf(err))

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Password)

	require.NoError(t, f.svc.Delete(ctx, created.ID))
	_, err = f.svc.Get(ctx, created.ID)
	assert.True(t, errs.IsNotFound(err))
	assert.True(t, errs.IsNotFound(f.svc.Delete(ctx, created.ID)))
}

func TestService_DeleteCascadesAnnotation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, err := f.svc.Create(ctx, Input{Type: "sqlite", Name: targetFile(t)})
	require.NoError(t, err)

	_, err = f.store.DB().Exec(`INSERT INTO database_annotation (id, db_profile_id, database_name) VALUES ('A1', ?, 'main')`, p.ID)
	require.NoError(t, err)
	require.NoError(t, NewRepository(f.store.DB()).SetAnnotation(ctx, p.ID, "A1"))

	got, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AnnotationID)
	assert.Equal(t, "A1", *got.AnnotationID)

	require.NoError(t, f.svc.Delete(ctx, p.ID))
	var n int
	require.NoError(t, f.store.DB().QueryRow(`SELECT COUNT(*) FROM database_annotation`).Scan(&n))
	assert.Zero(t, n)
}

func TestService_TestConnection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.svc.Test(ctx, Input{Type: "sqlite", Name: targetFile(t)}))

	err := f.svc.Test(ctx, Input{Type: "sqlite", Name: filepath.Join(t.TempDir(), "missing.sqlite")})
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))

	p, err := f.svc.Create(ctx, Input{Type: "sqlite", Name: targetFile(t)})
	require.NoError(t, err)
	assert.NoError(t, f.svc.TestStored(ctx, p.ID))
}

func TestService_GetRequiresID(t *testing.T) {
	_, err := newFixture(t).svc.Get(context.Background(), "")
	assert.Equal(t, errs.CodeNoValue, errs.CodeOf(err))
}
