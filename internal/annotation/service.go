package annotation

import (
	"context"
	"database/sql"
	"time"

	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/logger"
	"github.com/koustreak/qgenie/internal/metrics"
	"github.com/koustreak/qgenie/internal/profile"
	"github.com/koustreak/qgenie/internal/schema"
	"github.com/koustreak/qgenie/internal/store"
)

// State is a step of annotation creation.
type State string

const (
	StateValidating State = "ValidatingRequest"
	StateScanning   State = "ScanningSchema"
	StateRequesting State = "RequestingAI"
	StatePersisting State = "PersistingTransaction"
	StateDone       State = "Done"
	StateFailed     State = "Failed"
)

// ProfileResolver loads a profile with its password in clear.
type ProfileResolver interface {
	Resolve(ctx context.Context, id string) (*profile.Profile, error)
}

// SchemaSource introspects a live database.
type SchemaSource interface {
	FullScan(ctx context.Context, p dialect.Params) ([]schema.TableInfo, error)
	SampleRows(ctx context.Context, p dialect.Params, tables []schema.TableInfo, limit int) (map[string][]map[string]any, error)
}

// Service creates, reads and deletes annotations.
type Service struct {
	profiles ProfileResolver
	schemas  SchemaSource
	ai       Annotator
	store    *store.Store
	reader   *Reader
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewService wires the annotation pipeline. m may be nil.
func NewService(profiles ProfileResolver, schemas SchemaSource, ai Annotator, st *store.Store,
	m *metrics.Metrics, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		profiles: profiles,
		schemas:  schemas,
		ai:       ai,
		store:    st,
		reader:   NewReader(st.DB()),
		metrics:  m,
		log:      log.Component("annotation"),
	}
}

// Reader exposes the read side.
func (s *Service) Reader() *Reader { return s.reader }

// Create scans the profile's database, asks the AI for descriptions and
// persists them in one transaction, replacing any previous annotation of
// the profile.
func (s *Service) Create(ctx context.Context, profileID string) (out *FullAnnotation, err error) {
	start := time.Now()
	log := s.log.With().Str("profile_id", profileID).Logger()
	defer func() {
		if err != nil {
			s.enter(log, StateFailed)
			log.ErrorWith("annotation failed", err, nil)
		}
		s.metrics.RecordAnnotation(err == nil, time.Since(start))
	}()

	s.enter(log, StateValidating)
	if profileID == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "db_profile_id is required").
			WithCode(errs.CodeInvalidAnnotationReq)
	}

	s.enter(log, StateScanning)
	p, err := s.profiles.Resolve(ctx, profileID)
	if err != nil {
		return nil, err
	}
	params := p.Params()
	tables, err := s.schemas.FullScan(ctx, params)
	if err != nil {
		return nil, err
	}
	samples, err := s.schemas.SampleRows(ctx, params, tables, schema.DefaultSampleLimit)
	if err != nil {
		return nil, err
	}
	req := BuildRequest(p, tables, samples)

	s.enter(log, StateRequesting)
	resp, err := s.ai.Annotate(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Databases) == 0 {
		return nil, errs.New(errs.ErrKindAnnotationCreationFailed, "annotation service returned no databases").
			WithCode(errs.CodeFailCreateAnnotation)
	}
	for _, extra := range resp.Databases[1:] {
		log.Warnf("ignoring additional database %q in annotation response", extra.DatabaseName)
	}

	s.enter(log, StatePersisting)
	var (
		rootID string
		stats  persisted
	)
	err = s.store.InTx(ctx, func(tx *sql.Tx) error {
		w := &writer{q: tx, log: log}
		if err := w.replace(ctx, profileID); err != nil {
			return err
		}
		var err error
		rootID, stats, err = w.write(ctx, profileID, resp.Databases[0], tables)
		if err != nil {
			return err
		}
		return w.link(ctx, profileID, rootID)
	})
	if err != nil {
		return nil, creationError(err)
	}

	log.InfoWith("annotation persisted", map[string]any{
		"annotation_id": rootID,
		"tables":        stats.tables,
		"columns":       stats.columns,
		"constraints":   stats.constraints,
		"indexes":       stats.indexes,
		"relationships": stats.relationships,
	})

	out, err = s.reader.Full(ctx, rootID)
	if err != nil {
		return nil, err
	}
	s.enter(log, StateDone)
	return out, nil
}

// Get returns the full annotation id.
func (s *Service) Get(ctx context.Context, id string) (*FullAnnotation, error) {
	if id == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "annotation id is required").WithCode(errs.CodeNoValue)
	}
	return s.reader.Full(ctx, id)
}

// ByProfile returns the annotation linked to profileID.
func (s *Service) ByProfile(ctx context.Context, profileID string) (*FullAnnotation, error) {
	if profileID == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "db_profile_id is required").WithCode(errs.CodeNoValue)
	}
	return s.reader.ByProfile(ctx, profileID)
}

// Hierarchical returns the nested tree of the profile's annotation.
func (s *Service) Hierarchical(ctx context.Context, profileID string) (*Tree, error) {
	if profileID == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "db_profile_id is required").WithCode(errs.CodeNoValue)
	}
	return s.reader.Hierarchical(ctx, profileID)
}

// Delete removes annotation id and everything below it.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errs.New(errs.ErrKindInvalidInput, "annotation id is required").WithCode(errs.CodeNoValue)
	}
	found, err := s.reader.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return annotationNotFound(id)
	}
	s.log.With().Str("annotation_id", id).Logger().Info("annotation deleted")
	return nil
}

func (s *Service) enter(log *logger.Logger, st State) {
	log.With().Str("annotation_state", string(st)).Logger().Info("annotation state")
	s.metrics.RecordTransition(string(st))
}

// BuildRequest shapes a schema snapshot into the annotation request. The
// database is named after the profile's database, else its user.
func BuildRequest(p *profile.Profile, tables []schema.TableInfo, samples map[string][]map[string]any) *Request {
	name := p.Name
	if name == "" {
		name = p.Username
	}

	db := DatabaseRequest{
		DatabaseName:  name,
		Tables:        make([]TableRequest, 0, len(tables)),
		Relationships: []Relationship{},
	}
	names := schema.NewNames(tables)
	for _, t := range tables {
		tr := TableRequest{
			TableName:  names.Of(t),
			Columns:    make([]ColumnRequest, 0, len(t.Columns)),
			SampleRows: samples[t.Key()],
		}
		if tr.SampleRows == nil {
			tr.SampleRows = []map[string]any{}
		}
		for _, c := range t.Columns {
			tr.Columns = append(tr.Columns, ColumnRequest{ColumnName: c.Name, DataType: c.DataType})
		}
		db.Tables = append(db.Tables, tr)

		for _, fk := range t.ForeignKeys() {
			if fk.RefTable == "" || len(fk.RefColumns) == 0 {
				continue
			}
			db.Relationships = append(db.Relationships, Relationship{
				FromTable:   names.Of(t),
				FromColumns: fk.Columns,
				ToTable:     names.Ref(t, fk),
				ToColumns:   fk.RefColumns,
			})
		}
	}
	return &Request{DBMSType: string(p.Type), Databases: []DatabaseRequest{db}}
}

func creationError(err error) error {
	if errs.IsStoreBusy(err) {
		return err
	}
	return errs.Wrap(errs.ErrKindAnnotationCreationFailed, "failed to create annotation", err).
		WithCode(errs.CodeFailCreateAnnotation)
}
