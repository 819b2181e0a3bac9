package schema

import (
	"context"
	"sort"
	"strings"

	"github.com/koustreak/qgenie/internal/database"
	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/logger"
)

// DefaultSampleLimit is the number of preview rows fetched per table.
const DefaultSampleLimit = 3

// Connector opens one connection to a target database.
type Connector interface {
	Connect(ctx context.Context, args dialect.ConnectArgs) (database.Conn, error)
}

// Scanner runs whole-database introspection for a profile. Every public
// method opens exactly one connection per database it touches and closes it
// before returning.
type Scanner struct {
	connector Connector
	log       *logger.Logger
}

// NewScanner creates a Scanner.
func NewScanner(c Connector, log *logger.Logger) *Scanner {
	if log == nil {
		log = logger.Nop()
	}
	return &Scanner{connector: c, log: log.Component("schema")}
}

// withIntrospector connects for p (optionally overriding the database name)
// and runs fn with an Introspector bound to that connection.
func (s *Scanner) withIntrospector(ctx context.Context, p dialect.Params, override string, ignoreDB bool,
	fn func(Introspector) error) error {
	args, err := dialect.BuildConnectArgs(p, override, ignoreDB)
	if err != nil {
		return err
	}
	conn, err := s.connector.Connect(ctx, args)
	if err != nil {
		return err
	}
	defer conn.Close()

	in, err := New(conn)
	if err != nil {
		return err
	}
	return fn(in)
}

// ListSchemas returns the schemas of the profile's database.
func (s *Scanner) ListSchemas(ctx context.Context, p dialect.Params) ([]string, error) {
	var out []string
	err := s.withIntrospector(ctx, p, "", false, func(in Introspector) error {
		var err error
		out, err = in.ListSchemas(ctx, p.Name)
		return err
	})
	if err != nil {
		return nil, introspectionError(err, "failed to list schemas", errs.CodeFailFindSchemas)
	}
	return out, nil
}

// ListTables returns the tables of one schema.
func (s *Scanner) ListTables(ctx context.Context, p dialect.Params, schema string) ([]string, error) {
	var out []string
	err := s.withIntrospector(ctx, p, "", false, func(in Introspector) error {
		var err error
		out, err = in.ListTables(ctx, schema)
		return err
	})
	if err != nil {
		return nil, introspectionError(err, "failed to list tables", errs.CodeFail)
	}
	return out, nil
}

// ListColumns returns the columns of one table.
func (s *Scanner) ListColumns(ctx context.Context, p dialect.Params, schema, table string) ([]ColumnInfo, error) {
	var out []ColumnInfo
	err := s.withIntrospector(ctx, p, "", false, func(in Introspector) error {
		var err error
		out, err = in.ListColumns(ctx, schema, table)
		return err
	})
	if err != nil {
		return nil, introspectionError(err, "failed to list columns", errs.CodeFail)
	}
	return out, nil
}

// FullScan introspects every table the scan policy selects: for Oracle only
// the profile user's schema; otherwise every listed schema, falling back to
// the username when discovery returns nothing.
func (s *Scanner) FullScan(ctx context.Context, p dialect.Params) ([]TableInfo, error) {
	log := s.log.With().Str("db_type", string(p.Type)).Logger()
	log.Info("starting schema scan")

	var tables []TableInfo
	err := s.withIntrospector(ctx, p, "", false, func(in Introspector) error {
		schemas, err := s.schemasToScan(ctx, in, p)
		if err != nil {
			return err
		}
		for _, schemaName := range schemas {
			names, err := in.ListTables(ctx, schemaName)
			if err != nil {
				log.WarnWith("failed to list tables, skipping schema", err, map[string]any{"schema": schemaName})
				continue
			}
			log.InfoWith("found tables", map[string]any{"schema": schemaName, "count": len(names)})

			for _, name := range names {
				t, err := s.tableDetails(ctx, in, schemaName, name)
				if err != nil {
					return err
				}
				tables = append(tables, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.InfoWith("finished schema scan", map[string]any{"tables": len(tables)})
	return tables, nil
}

func (s *Scanner) schemasToScan(ctx context.Context, in Introspector, p dialect.Params) ([]string, error) {
	if p.Type == dialect.Oracle {
		if p.Username == "" {
			return nil, errs.New(errs.ErrKindIntrospectionFailed, "oracle profile has no username").
				WithCode(errs.CodeFailFindSchemas)
		}
		return []string{strings.ToUpper(p.Username)}, nil
	}

	found, err := in.ListSchemas(ctx, p.Name)
	if err != nil {
		s.log.WarnWith("could not retrieve schema list", err, nil)
	}

	set := map[string]struct{}{}
	for _, name := range found {
		set[name] = struct{}{}
	}
	if len(set) == 0 && p.Username != "" {
		s.log.Infof("schema discovery returned nothing, falling back to %q", p.Username)
		set[p.Username] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// tableDetails absorbs column failures but escalates constraint and index
// failures, which annotation correctness depends on.
func (s *Scanner) tableDetails(ctx context.Context, in Introspector, schemaName, table string) (TableInfo, error) {
	t := TableInfo{Schema: schemaName, Name: table, Columns: []ColumnInfo{}}

	cols, err := in.ListColumns(ctx, schemaName, table)
	if err != nil {
		s.log.WarnWith("failed to list columns", err, map[string]any{"schema": schemaName, "table": table})
	} else if cols != nil {
		t.Columns = cols
	}

	t.Constraints, err = in.ListConstraints(ctx, schemaName, table)
	if err != nil {
		s.log.ErrorWith("failed to list constraints", err, map[string]any{"schema": schemaName, "table": table})
		return t, errs.Wrap(errs.ErrKindIntrospectionFailed, "failed to find constraints for "+table, err).
			WithCode(errs.CodeFailFindConstraints)
	}
	if t.Constraints == nil {
		t.Constraints = []ConstraintInfo{}
	}

	t.Indexes, err = in.ListIndexes(ctx, schemaName, table)
	if err != nil {
		s.log.ErrorWith("failed to list indexes", err, map[string]any{"schema": schemaName, "table": table})
		return t, errs.Wrap(errs.ErrKindIntrospectionFailed, "failed to find indexes for "+table, err).
			WithCode(errs.CodeFailFindIndexes)
	}
	if t.Indexes == nil {
		t.Indexes = []IndexInfo{}
	}

	s.log.Debugf("fetched %s.%s: %d columns, %d constraints, %d indexes",
		schemaName, table, len(t.Columns), len(t.Constraints), len(t.Indexes))
	return t, nil
}

// SampleRows fetches up to limit rows from each table, keyed by
// TableInfo.Key. A failing table yields an empty list and never affects its
// siblings.
func (s *Scanner) SampleRows(ctx context.Context, p dialect.Params, tables []TableInfo, limit int) (map[string][]map[string]any, error) {
	out := make(map[string][]map[string]any, len(tables))
	if len(tables) == 0 {
		return out, nil
	}
	if limit <= 0 {
		limit = DefaultSampleLimit
	}

	args, err := dialect.BuildConnectArgs(p, "", false)
	if err != nil {
		return nil, err
	}
	conn, err := s.connector.Connect(ctx, args)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindIntrospectionFailed, "failed to fetch sample rows", err).
			WithCode(errs.CodeFailFindSampleRows)
	}
	defer conn.Close()

	in, err := New(conn)
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		out[t.Key()] = fetchSample(ctx, conn, in.SampleQuery(t.Schema, t.Name, limit), t.Key(), s.log)
	}
	return out, nil
}

func fetchSample(ctx context.Context, conn database.Conn, q, table string, log *logger.Logger) []map[string]any {
	rows, err := conn.Query(ctx, q)
	if err != nil {
		log.WarnWith("sample rows unavailable", err, map[string]any{"table": table})
		return []map[string]any{}
	}
	maps, err := database.ScanMaps(rows)
	if err != nil {
		log.WarnWith("sample rows unreadable", err, map[string]any{"table": table})
		return []map[string]any{}
	}
	return maps
}

// Hierarchy scans every database on the server into databases → schemas →
// tables. PostgreSQL lists databases without binding to one; SQLite has its
// single file.
func (s *Scanner) Hierarchy(ctx context.Context, p dialect.Params) ([]DatabaseDetail, error) {
	databases, err := s.listDatabases(ctx, p)
	if err != nil {
		return nil, err
	}

	var out []DatabaseDetail
	for _, dbName := range databases {
		detail, err := s.databaseDetail(ctx, p, dbName)
		if err != nil {
			if errs.IsIntrospectionFailed(err) {
				return nil, err
			}
			s.log.WarnWith("skipping database", err, map[string]any{"database": dbName})
			continue
		}
		if detail != nil {
			out = append(out, *detail)
		}
	}
	s.log.InfoWith("finished hierarchical scan", map[string]any{"databases": len(out)})
	return out, nil
}

func (s *Scanner) listDatabases(ctx context.Context, p dialect.Params) ([]string, error) {
	if p.Type == dialect.SQLite {
		return []string{p.Name}, nil
	}

	var names []string
	err := s.withIntrospector(ctx, p, "", p.Type == dialect.PostgreSQL, func(in Introspector) error {
		var err error
		names, err = in.ListDatabases(ctx)
		return err
	})
	if err != nil {
		return nil, introspectionError(err, "failed to find databases", errs.CodeFailFindDatabases)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Scanner) databaseDetail(ctx context.Context, p dialect.Params, dbName string) (*DatabaseDetail, error) {
	override := dbName
	if p.Type == dialect.SQLite || p.Type == dialect.Oracle {
		// Oracle's global name is not a connectable service name.
		override = ""
	}

	var detail *DatabaseDetail
	err := s.withIntrospector(ctx, p, override, false, func(in Introspector) error {
		schemas, err := in.ListSchemas(ctx, dbName)
		if err != nil {
			return err
		}
		if len(schemas) == 0 && p.Type == dialect.SQLite {
			schemas = []string{"main"}
		}
		sort.Strings(schemas)

		var details []SchemaDetail
		for _, schemaName := range schemas {
			names, err := in.ListTables(ctx, schemaName)
			if err != nil {
				s.log.WarnWith("failed to list tables, skipping schema", err, map[string]any{"schema": schemaName})
				continue
			}
			tables := make([]TableInfo, 0, len(names))
			for _, name := range names {
				t, err := s.tableDetails(ctx, in, schemaName, name)
				if err != nil {
					return err
				}
				tables = append(tables, t)
			}
			if len(tables) > 0 {
				details = append(details, SchemaDetail{Name: schemaName, Tables: tables})
			}
		}
		if len(details) > 0 {
			detail = &DatabaseDetail{Name: dbName, Type: string(p.Type), Schemas: details}
		}
		return nil
	})
	return detail, err
}

func introspectionError(err error, msg string, code errs.Code) error {
	if errs.IsConnectionFailed(err) || errs.IsUnsupportedDatabaseType(err) {
		return err
	}
	return errs.Wrap(errs.ErrKindIntrospectionFailed, msg, err).WithCode(code)
}
