package user

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/MikeMC777/campus-market/internal/apperr"
)

var validate = validator.New()

type Service struct {
	repo   Repository
	admins map[string]bool
	log    zerolog.Logger

	mu       sync.Mutex
	onChange []func(ctx context.Context, id string)
}

// NewService builds the user service. Ids in adminIDs get the admin role
// when they first register.
func NewService(repo Repository, adminIDs []string, log zerolog.Logger) *Service {
	admins := make(map[string]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &Service{repo: repo, admins: admins, log: log}
}

// OnChange registers fn to run after a user's role or active flag changes.
func (s *Service) OnChange(fn func(ctx context.Context, id string)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

func (s *Service) changed(ctx context.Context, id string) {
	s.mu.Lock()
	hooks := append([]func(context.Context, string){}, s.onChange...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(ctx, id)
	}
}

// Register creates the caller's profile on first call and updates it after.
func (s *Service) Register(ctx context.Context, id string, req ProfileRequest) (*User, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", apperr.ErrInvalidInput)
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}

	existing, err := s.repo.GetUser(ctx, id)
	switch {
	case err == nil:
		fields := map[string]any{"email": req.Email, "name": req.Name}
		if req.Location != nil {
			fields["location"] = req.Location
		}
		if err := s.repo.Update(ctx, id, fields); err != nil {
			return nil, err
		}
		existing.Email, existing.Name = req.Email, req.Name
		if req.Location != nil {
			existing.Location = req.Location
		}
		return existing, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	now := time.Now().UTC()
	u := &User{
		ID:        id,
		Email:     req.Email,
		Name:      req.Name,
		Role:      RoleCustomer,
		Active:    true,
		Location:  req.Location,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.admins[id] {
		u.Role = RoleAdmin
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info().Str("user", id).Str("role", string(u.Role)).Msg("user registered")
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s *Service) List(ctx context.Context, actor User) ([]User, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can list users", apperr.ErrForbidden)
	}
	return s.repo.List(ctx)
}

func (s *Service) SetActive(ctx context.Context, actor User, id string, active bool) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: only admins can change account status", apperr.ErrForbidden)
	}
	if id == actor.ID && !active {
		return fmt.Errorf("%w: admins cannot deactivate themselves", apperr.ErrInvalidInput)
	}
	if err := s.repo.Update(ctx, id, map[string]any{"active": active}); err != nil {
		return err
	}
	s.changed(ctx, id)
	return nil
}

// SetRole changes a user's role. Callers are responsible for authorization.
func (s *Service) SetRole(ctx context.Context, id string, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", apperr.ErrInvalidInput, role)
	}
	if err := s.repo.Update(ctx, id, map[string]any{"role": role}); err != nil {
		return err
	}
	s.log.Info().Str("user", id).Str("role", string(role)).Msg("role changed")
	s.changed(ctx, id)
	return nil
}
