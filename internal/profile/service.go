package profile

import (
	"context"

	"github.com/koustreak/qgenie/internal/credential"
	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/logger"
	"github.com/koustreak/qgenie/internal/store"
)

// Tester verifies that arguments reach a live database.
type Tester interface {
	Test(ctx context.Context, args dialect.ConnectArgs) error
}

// Service implements profile CRUD and connection testing.
type Service struct {
	repo      *Repository
	cipher    *credential.Cipher
	tester    Tester
	validator *Validator
	log       *logger.Logger
}

// NewService creates a Service.
func NewService(repo *Repository, c *credential.Cipher, tester Tester, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:      repo,
		cipher:    c,
		tester:    tester,
		validator: NewValidator(),
		log:       log.Component("profile"),
	}
}

// Create validates in and stores it under a fresh USER-DB id.
func (s *Service) Create(ctx context.Context, in Input) (*Profile, error) {
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}
	p, err := s.toRecord(store.NewID(store.PrefixProfile), in)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, p); err != nil {
		return nil, saveError(err)
	}

	s.log.With().Str("profile_id", p.ID).Str("db_type", string(p.Type)).Logger().Info("profile created")
	return s.Get(ctx, p.ID)
}

// Update merges patch into the stored profile and re-validates the result.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*Profile, error) {
	current, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	in := patch.apply(Input{
		Type:     string(current.Type),
		Host:     current.Host,
		Port:     current.Port,
		Name:     current.Name,
		Username: current.Username,
		Password: current.Password,
		ViewName: current.ViewName,
	})
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}

	p, err := s.toRecord(id, in)
	if err != nil {
		return nil, err
	}
	found, err := s.repo.Update(ctx, p)
	if err != nil {
		return nil, saveError(err)
	}
	if !found {
		return nil, notFound(id)
	}
	s.log.With().Str("profile_id", id).Logger().Info("profile updated")
	return s.Get(ctx, id)
}

// Delete removes the profile together with its annotation tree.
func (s *Service) Delete(ctx context.Context, id string) error {
	found, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return notFound(id)
	}
	s.log.With().Str("profile_id", id).Logger().Info("profile deleted")
	return nil
}

// Get returns the profile without its password.
func (s *Service) Get(ctx context.Context, id string) (*Profile, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Password = ""
	return p, nil
}

// List returns every profile without passwords.
func (s *Service) List(ctx context.Context) ([]*Profile, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, findError(err)
	}
	for _, p := range list {
		p.Password = ""
	}
	return list, nil
}

// Resolve returns the profile with its password decrypted, for connecting.
func (s *Service) Resolve(ctx context.Context, id string) (*Profile, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Password != "" {
		plain, err := s.cipher.Decrypt(p.Password)
		if err != nil {
			return nil, err
		}
		p.Password = plain
	}
	return p, nil
}

// Test checks unsaved connection fields against the live database.
func (s *Service) Test(ctx context.Context, in Input) error {
	if err := s.validator.Validate(in); err != nil {
		return err
	}
	return s.test(ctx, in.Params())
}

// TestStored checks a saved profile against the live database.
func (s *Service) TestStored(ctx context.Context, id string) error {
	p, err := s.Resolve(ctx, id)
	if err != nil {
		return err
	}
	return s.test(ctx, p.Params())
}

func (s *Service) test(ctx context.Context, p dialect.Params) error {
	args, err := dialect.BuildConnectArgs(p, "", false)
	if err != nil {
		return err
	}
	log := s.log.With().Str("db_type", string(p.Type)).Logger()
	if err := s.tester.Test(ctx, args); err != nil {
		log.WarnWith("connection test failed", err, nil)
		return err
	}
	log.Info("connection test succeeded")
	return nil
}

func (s *Service) load(ctx context.Context, id string) (*Profile, error) {
	if id == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "profile id is required").WithCode(errs.CodeNoValue)
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, findError(err)
	}
	if p == nil {
		return nil, notFound(id)
	}
	return p, nil
}

func (s *Service) toRecord(id string, in Input) (*Profile, error) {
	params := in.Params()
	p := &Profile{
		ID:       id,
		Type:     params.Type,
		Host:     params.Host,
		Port:     params.Port,
		Name:     params.Name,
		Username: params.Username,
		ViewName: in.ViewName,
	}
	if in.Password != "" {
		enc, err := s.cipher.Encrypt(in.Password)
		if err != nil {
			return nil, err
		}
		p.Password = enc
	}
	return p, nil
}

func notFound(id string) error {
	return errs.Newf(errs.ErrKindNotFound, "profile %s not found", id).WithCode(errs.CodeNoSearchData)
}

func saveError(err error) error {
	if errs.IsStoreBusy(err) {
		return err
	}
	return errs.Wrap(errs.KindOf(err), "failed to save profile", err).WithCode(errs.CodeFailSaveProfile)
}

func findError(err error) error {
	if errs.IsStoreBusy(err) {
		return err
	}
	return errs.Wrap(errs.KindOf(err), "failed to find profile", err).WithCode(errs.CodeFailFindProfile)
}
