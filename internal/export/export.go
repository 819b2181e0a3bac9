// Package export writes annotation trees to object storage as YAML
// documents and reads them back.
package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/qgenie/internal/annotation"
	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/filestore"
	"github.com/koustreak/qgenie/internal/logger"
)

const (
	// Prefix is the key prefix of every export.
	Prefix = "annotations/"

	// DocumentVersion is bumped when the document layout changes.
	DocumentVersion = 1

	DefaultURLTTL = 24 * time.Hour
	contentType   = "application/yaml"
)

// Source loads annotations by id.
type Source interface {
	Get(ctx context.Context, id string) (*annotation.FullAnnotation, error)
}

// Document is the YAML layout of one export.
type Document struct {
	Version    int                        `yaml:"version"`
	ExportedAt time.Time                  `yaml:"exported_at"`
	Annotation *annotation.FullAnnotation `yaml:"annotation"`
}

// Result describes a written export.
type Result struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Size   int64  `json:"size"`
	URL    string `json:"url"`
}

// Exporter writes annotations through a filestore.Store.
type Exporter struct {
	fs     filestore.Store
	bucket string
	source Source
	ttl    time.Duration
	now    func() time.Time
	log    *logger.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithURLTTL sets how long presigned download URLs stay valid.
func WithURLTTL(d time.Duration) Option {
	return func(e *Exporter) {
		if d > 0 {
			e.ttl = d
		}
	}
}

// New creates an Exporter writing into bucket.
func New(fs filestore.Store, bucket string, source Source, log *logger.Logger, opts ...Option) *Exporter {
	if bucket == "" {
		bucket = filestore.DefaultBucket
	}
	if log == nil {
		log = logger.Nop()
	}
	e := &Exporter{
		fs:     fs,
		bucket: bucket,
		source: source,
		ttl:    DefaultURLTTL,
		now:    time.Now,
		log:    log.Component("export"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Key returns the object key of annotation id.
func Key(id string) string {
	return Prefix + id + ".yaml"
}

// Export writes annotation id and returns where it landed with a
// presigned download URL.
func (e *Exporter) Export(ctx context.Context, id string) (*Result, error) {
	a, err := e.source.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Document{Version: DocumentVersion, ExportedAt: e.now().UTC(), Annotation: a}); err != nil {
		return nil, errs.Wrap(errs.ErrKindUnknown, "failed to encode annotation", err).WithCode(errs.CodeFailExportAnnotation)
	}
	if err := enc.Close(); err != nil {
		return nil, errs.Wrap(errs.ErrKindUnknown, "failed to encode annotation", err).WithCode(errs.CodeFailExportAnnotation)
	}

	if err := e.fs.EnsureBucket(ctx, e.bucket); err != nil {
		return nil, storageError(err, "failed to prepare export bucket")
	}

	key := Key(a.ID)
	size := int64(buf.Len())
	if _, err := e.fs.PutObject(ctx, e.bucket, key, &buf, size, contentType); err != nil {
		return nil, storageError(err, "failed to upload annotation")
	}

	url, err := e.fs.PresignGetURL(ctx, e.bucket, key, e.ttl)
	if err != nil {
		return nil, storageError(err, "failed to sign export url")
	}

	e.log.With().Str("annotation_id", a.ID).Str("key", key).Int("bytes", int(size)).Logger().Info("annotation exported")
	return &Result{Bucket: e.bucket, Key: key, Size: size, URL: url}, nil
}

// Load reads back the export stored under key.
func (e *Exporter) Load(ctx context.Context, key string) (*Document, error) {
	obj, err := e.fs.GetObject(ctx, e.bucket, key)
	if err != nil {
		return nil, storageError(err, "failed to read export")
	}
	defer obj.Close()

	var doc Document
	if err := yaml.NewDecoder(obj).Decode(&doc); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("export %s is not a valid document", key), err).
			WithCode(errs.CodeFailExportAnnotation)
	}
	if doc.Version != DocumentVersion || doc.Annotation == nil {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "export %s has unsupported version %d", key, doc.Version).
			WithCode(errs.CodeFailExportAnnotation)
	}
	return &doc, nil
}

// List returns the stored exports.
func (e *Exporter) List(ctx context.Context) ([]filestore.ObjectInfo, error) {
	objs, err := e.fs.ListObjects(ctx, e.bucket, filestore.ListOptions{Prefix: Prefix})
	if err != nil {
		return nil, storageError(err, "failed to list exports")
	}
	if objs == nil {
		objs = []filestore.ObjectInfo{}
	}
	return objs, nil
}

// storageError keeps not-found and timeouts recognisable and tags the rest
// as export failures.
func storageError(err error, msg string) error {
	if errs.IsNotFound(err) || errs.IsTimeout(err) {
		return err
	}
	return errs.Wrap(errs.KindOf(err), msg, err).WithCode(errs.CodeFailExportAnnotation)
}
