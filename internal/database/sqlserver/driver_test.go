package sqlserver

import (
	"errors"
	"net/url"
	"testing"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/koustreak/qgenie/internal/database"
	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToURL(t *testing.T) {
	args, err := dialect.BuildConnectArgs(dialect.Params{
		Type: dialect.SQLServer, Host: "mssql", Port: 14330, Username: "sa", Password: "Pa;ss", Name: "sales",
	}, "", false)
	require.NoError(t, err)

	raw, err := ToURL(args.Get(dialect.KeyConnectionString), database.Options{})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "sqlserver", u.Scheme)
	assert.Equal(t, "mssql:14330", u.Host)
	assert.Equal(t, "sa", u.User.Username())
	assert.Equal(t, "sales", u.Query().Get("database"))
}

func TestToURL_SpecialCharacters(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		password string
		database string
	}{
		{"separator and brace in password", "sa", "p;ss}w=rd", "sales"},
		{"leading brace", "sa", "{secret", "sales"},
		{"database with semicolon", "app;ro", "plain", "q1;archive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := dialect.BuildConnectArgs(dialect.Params{
				Type: dialect.SQLServer, Host: "mssql", Port: 1433, Username: tt.user, Password: tt.password, Name: tt.database,
			}, "", false)
			require.NoError(t, err)

			raw, err := ToURL(args.Get(dialect.KeyConnectionString), database.Options{})
			require.NoError(t, err)

			u, err := url.Parse(raw)
			require.NoError(t, err)
			pw, ok := u.User.Password()
			assert.True(t, ok)
			assert.Equal(t, tt.password, pw)
			assert.Equal(t, tt.user, u.User.Username())
			assert.Equal(t, tt.database, u.Query().Get("database"))
			assert.Equal(t, "mssql:1433", u.Host)
		})
	}
}

func TestToURL_NoDatabase(t *testing.T) {
	raw, err := ToURL("DRIVER={ODBC Driver 17 for SQL Server};SERVER=h,1433;UID=sa;PWD=x;", database.Options{})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Empty(t, u.Query().Get("database"))
}

func TestToURL_MissingServer(t *testing.T) {
	_, err := ToURL("UID=sa;PWD=x;", database.Options{})
	assert.True(t, errs.IsConnectionFailed(err))
}

func TestMapError(t *testing.T) {
	assert.Equal(t, errs.ErrKindConnectionFailed, errs.KindOf(mapError(mssql.Error{Number: 18456, Message: "Login failed"}, "op")))
	assert.Equal(t, errs.ErrKindPermissionDenied, errs.KindOf(mapError(mssql.Error{Number: 229, Message: "denied"}, "op")))
	assert.Equal(t, errs.ErrKindQueryFailed, errs.KindOf(mapError(mssql.Error{Number: 208, Message: "Invalid object name"}, "op")))
	assert.Equal(t, errs.ErrKindConnectionFailed, errs.KindOf(mapError(errors.New("eof"), "op")))
}
