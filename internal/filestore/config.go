package filestore

import (
	"strings"

	"github.com/koustreak/qgenie/internal/errs"
)

// DefaultBucket holds annotation exports unless configured otherwise.
const DefaultBucket = "qgenie-annotations"

// Config holds the connection settings of an object-storage backend.
type Config struct {
	// Endpoint is host:port, e.g. "localhost:9000" for a local MinIO.
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool

	// Region is only needed by region-aware backends such as AWS S3.
	Region string

	Bucket string
}

// Validate checks the fields every backend needs and fills defaults.
func (c *Config) Validate() error {
	var missing []string
	if c.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if c.AccessKey == "" {
		missing = append(missing, "access_key")
	}
	if c.SecretKey == "" {
		missing = append(missing, "secret_key")
	}
	if len(missing) > 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "export storage is missing %s", strings.Join(missing, ", ")).
			WithCode(errs.CodeNoValue)
	}
	if c.Bucket == "" {
		c.Bucket = DefaultBucket
	}
	return nil
}
