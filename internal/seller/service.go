// Package seller handles applications from customers who want to sell.
package seller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MikeMC777/campus-market/internal/apperr"
	"github.com/MikeMC777/campus-market/internal/notify"
	"github.com/MikeMC777/campus-market/internal/user"
)

// RoleSetter promotes users. user.Service satisfies it; its change hooks
// take care of refreshing sessions and cached roles.
type RoleSetter interface {
	SetRole(ctx context.Context, id string, role user.Role) error
}

type Notifier interface {
	Notify(ctx context.Context, n notify.Notification)
}

var validate = validator.New()

type Service struct {
	repo     Repository
	roles    RoleSetter
	notifier Notifier
	log      zerolog.Logger
}

func NewService(repo Repository, roles RoleSetter, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{repo: repo, roles: roles, notifier: notifier, log: log}
}

// Submit files an application. Only customers may apply and only one
// application per user can be pending.
func (s *Service) Submit(ctx context.Context, actor user.User, req SubmitRequest) (*Application, error) {
	if actor.Role != user.RoleCustomer {
		return nil, fmt.Errorf("%w: only customers can apply to sell", apperr.ErrForbidden)
	}
	req.StoreName = strings.TrimSpace(req.StoreName)
	req.Justification = strings.TrimSpace(req.Justification)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}

	existing, err := s.repo.ListByUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	for _, a := range existing {
		if a.Status == StatusPending {
			return nil, fmt.Errorf("%w: an application is already pending", apperr.ErrConflict)
		}
	}

	now := time.Now().UTC()
	a := &Application{
		ID:            uuid.NewString(),
		UserID:        actor.ID,
		UserName:      actor.Name,
		UserEmail:     actor.Email,
		StoreName:     req.StoreName,
		Justification: req.Justification,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	s.log.Info().Str("application", a.ID).Str("user", actor.ID).Msg("seller application submitted")
	return a, nil
}

func (s *Service) ListMine(ctx context.Context, actor user.User) ([]Application, error) {
	return s.repo.ListByUser(ctx, actor.ID)
}

func (s *Service) ListPending(ctx context.Context, actor user.User) ([]Application, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can review applications", apperr.ErrForbidden)
	}
	return s.repo.ListByStatus(ctx, StatusPending)
}

// Review approves or rejects a pending application. Approval promotes the
// applicant to seller before the application is marked approved.
func (s *Service) Review(ctx context.Context, actor user.User, id string, req ReviewRequest) (*Application, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can review applications", apperr.ErrForbidden)
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusPending {
		return nil, fmt.Errorf("%w: application already %s", apperr.ErrConflict, a.Status)
	}

	status := StatusRejected
	if req.Approve {
		status = StatusApproved
		if err := s.roles.SetRole(ctx, a.UserID, user.RoleSeller); err != nil {
			return nil, fmt.Errorf("promote %s: %w", a.UserID, err)
		}
	}

	now := time.Now().UTC()
	if err := s.repo.Update(ctx, id, map[string]any{
		"status":     string(status),
		"reviewedBy": actor.ID,
		"reviewNote": req.Note,
		"reviewedAt": now,
	}); err != nil {
		return nil, err
	}
	a.Status, a.ReviewedBy, a.ReviewNote, a.ReviewedAt, a.UpdatedAt = status, actor.ID, req.Note, &now, now

	body := fmt.Sprintf("Your application for %q was approved. You can now list products.", a.StoreName)
	if status == StatusRejected {
		body = fmt.Sprintf("Your application for %q was not approved.", a.StoreName)
		if req.Note != "" {
			body += " " + req.Note
		}
	}
	s.notifier.Notify(ctx, notify.Notification{
		UserID: a.UserID,
		Kind:   notify.KindApplicationResult,
		Title:  "Seller application " + string(status),
		Body:   body,
	})
	s.log.Info().Str("application", id).Str("status", string(status)).Str("by", actor.ID).Msg("seller application reviewed")
	return a, nil
}
