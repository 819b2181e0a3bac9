package credential

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/koustreak/qgenie/internal/database/sqlite"
	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/logger"
	"github.com/koustreak/qgenie/internal/store"
)

// Provider names an external LLM service.
type Provider string

const (
	ProviderOpenAI    Provider = "OpenAI"
	ProviderAnthropic Provider = "Anthropic"
	ProviderGemini    Provider = "Gemini"
)

var providers = []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGemini}

// ParseProvider matches s case-insensitively against the known providers.
func ParseProvider(s string) (Provider, error) {
	for _, p := range providers {
		if strings.EqualFold(string(p), strings.TrimSpace(s)) {
			return p, nil
		}
	}
	return "", errs.Newf(errs.ErrKindInvalidInput, "unknown AI service %q", s).WithCode(errs.CodeInvalidParameter)
}

// Credential is a stored API key. Key is only populated by Vault.Key.
type Credential struct {
	ID        string    `json:"id"`
	Service   Provider  `json:"service_name"`
	Key       string    `json:"api_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Vault stores AI provider keys encrypted in the ai_credential table.
type Vault struct {
	db     store.Querier
	cipher *Cipher
	log    *logger.Logger
}

// NewVault creates a Vault.
func NewVault(db store.Querier, c *Cipher, log *logger.Logger) *Vault {
	if log == nil {
		log = logger.Nop()
	}
	return &Vault{db: db, cipher: c, log: log.Component("credential")}
}

const credentialColumns = `id, service_name, created_at, updated_at`

// Save stores a new key. A provider can hold one key; a second Save fails
// with CodeDuplication.
func (v *Vault) Save(ctx context.Context, p Provider, apiKey string) (*Credential, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "api key is empty").WithCode(errs.CodeNoValue)
	}
	enc, err := v.cipher.Encrypt(apiKey)
	if err != nil {
		return nil, err
	}

	id := store.NewID(store.PrefixCredential)
	_, err = v.db.ExecContext(ctx,
		`INSERT INTO ai_credential (id, service_name, api_key) VALUES (?, ?, ?)`, id, string(p), enc)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "a key for "+string(p)+" already exists", err).
				WithCode(errs.CodeDuplication)
		}
		return nil, store.MapError(err, "failed to store api key")
	}

	v.log.With().Str("service", string(p)).Logger().Info("stored api key")
	return v.find(ctx, `WHERE id = ?`, id)
}

// List returns every stored credential without its key.
func (v *Vault) List(ctx context.Context) ([]Credential, error) {
	rows, err := v.db.QueryContext(ctx, `SELECT `+credentialColumns+` FROM ai_credential ORDER BY service_name`)
	if err != nil {
		return nil, store.MapError(err, "failed to list api keys")
	}
	defer rows.Close()

	out := []Credential{}
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.ID, &c.Service, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, store.MapError(err, "failed to read api key")
		}
		out = append(out, c)
	}
	return out, store.MapError(rows.Err(), "failed to list api keys")
}

// Key returns the decrypted key of p.
func (v *Vault) Key(ctx context.Context, p Provider) (string, error) {
	var enc string
	err := v.db.QueryRowContext(ctx, `SELECT api_key FROM ai_credential WHERE service_name = ?`, string(p)).Scan(&enc)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errs.Newf(errs.ErrKindNotFound, "no api key stored for %s", p).WithCode(errs.CodeNoSearchData)
	}
	if err != nil {
		return "", store.MapError(err, "failed to read api key")
	}
	return v.cipher.Decrypt(enc)
}

// Update replaces the key of p.
func (v *Vault) Update(ctx context.Context, p Provider, apiKey string) (*Credential, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "api key is empty").WithCode(errs.CodeNoValue)
	}
	enc, err := v.cipher.Encrypt(apiKey)
	if err != nil {
		return nil, err
	}
	res, err := v.db.ExecContext(ctx, `UPDATE ai_credential SET api_key = ? WHERE service_name = ?`, enc, string(p))
	if err != nil {
		return nil, store.MapError(err, "failed to update api key")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errs.Newf(errs.ErrKindNotFound, "no api key stored for %s", p).WithCode(errs.CodeNoSearchData)
	}
	return v.find(ctx, `WHERE service_name = ?`, string(p))
}

// Delete removes the key of p.
func (v *Vault) Delete(ctx context.Context, p Provider) error {
	res, err := v.db.ExecContext(ctx, `DELETE FROM ai_credential WHERE service_name = ?`, string(p))
	if err != nil {
		return store.MapError(err, "failed to delete api key")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.Newf(errs.ErrKindNotFound, "no api key stored for %s", p).WithCode(errs.CodeNoSearchData)
	}
	return nil
}

func (v *Vault) find(ctx context.Context, where string, arg any) (*Credential, error) {
	var c Credential
	err := v.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM ai_credential `+where, arg).
		Scan(&c.ID, &c.Service, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, store.MapError(err, "failed to read api key")
	}
	return &c, nil
}
