package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/campus-market/internal/apperr"
	"github.com/MikeMC777/campus-market/internal/notify"
	"github.com/MikeMC777/campus-market/internal/user"
)

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification)
}

var validate = validator.New()

type Service struct {
	repo     Repository
	notifier Notifier
	log      zerolog.Logger
}

func NewService(repo Repository, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, log: log}
}

func parsePrice(s string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid price", apperr.ErrInvalidInput)
	}
	if !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: price must be greater than zero", apperr.ErrInvalidInput)
	}
	return p.Round(2), nil
}

func canManage(actor user.User, p *Product) bool {
	return actor.IsAdmin() || p.SellerID == actor.ID
}

// Create lists a new product for the seller. It starts unapproved.
func (s *Service) Create(ctx context.Context, actor user.User, req CreateProductRequest) (*Product, error) {
	if !actor.IsSeller() && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only sellers can list products", apperr.ErrForbidden)
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	if !req.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", apperr.ErrInvalidInput, req.Category)
	}
	price, err := parsePrice(req.Price)
	if err != nil {
		return nil, err
	}
	images, err := PrepareImages(req.Images)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &Product{
		ID:          uuid.NewString(),
		SellerID:    actor.ID,
		SellerName:  actor.Name,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Price:       price,
		Category:    req.Category,
		Images:      images,
		Approved:    false,
		Stock:       req.Stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info().Str("product", p.ID).Str("seller", actor.ID).Msg("product listed")
	return p, nil
}

// Get returns a product. Unapproved products are only visible to their
// seller and admins; everyone else gets ErrNotFound.
func (s *Service) Get(ctx context.Context, actor user.User, id string) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Approved && !canManage(actor, p) {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, actor user.User, id string, req UpdateProductRequest) (*Product, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, p) {
		return nil, fmt.Errorf("%w: not your product", apperr.ErrForbidden)
	}

	fields := map[string]any{}
	if req.Title != nil {
		p.Title = strings.TrimSpace(*req.Title)
		fields["title"] = p.Title
	}
	if req.Description != nil {
		p.Description = *req.Description
		fields["description"] = p.Description
	}
	if req.Price != nil {
		price, err := parsePrice(*req.Price)
		if err != nil {
			return nil, err
		}
		p.Price = price
		fields["price"] = price
	}
	if req.Category != nil {
		if !req.Category.Valid() {
			return nil, fmt.Errorf("%w: unknown category %q", apperr.ErrInvalidInput, *req.Category)
		}
		p.Category = *req.Category
		fields["category"] = string(p.Category)
	}
	if req.Images != nil {
		images, err := PrepareImages(req.Images)
		if err != nil {
			return nil, err
		}
		p.Images = images
		fields["images"] = images
	}
	if req.Stock != nil {
		p.Stock = *req.Stock
		fields["stock"] = p.Stock
	}
	if len(fields) == 0 {
		return p, nil
	}
	if err := s.repo.Update(ctx, id, fields); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, actor user.User, id string) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(actor, p) {
		return fmt.Errorf("%w: not your product", apperr.ErrForbidden)
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) Approve(ctx context.Context, actor user.User, id string) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: only admins can approve products", apperr.ErrForbidden)
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Approved {
		return nil
	}
	if err := s.repo.Update(ctx, id, map[string]any{"approved": true}); err != nil {
		return err
	}
	s.notifier.Notify(ctx, notify.Notification{
		UserID: p.SellerID,
		Kind:   notify.KindProductApproved,
		Title:  "Product approved",
		Body:   fmt.Sprintf("%q is now visible to customers.", p.Title),
	})
	return nil
}

// Reject removes the listing and tells the seller why.
func (s *Service) Reject(ctx context.Context, actor user.User, id, reason string) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: only admins can reject products", apperr.ErrForbidden)
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	body := fmt.Sprintf("%q was not approved.", p.Title)
	if reason = strings.TrimSpace(reason); reason != "" {
		body += " Reason: " + reason
	}
	s.notifier.Notify(ctx, notify.Notification{
		UserID: p.SellerID,
		Kind:   notify.KindProductRejected,
		Title:  "Product rejected",
		Body:   body,
	})
	return nil
}

func (s *Service) ListApproved(ctx context.Context, category Category) ([]Product, error) {
	if category != "" && !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", apperr.ErrInvalidInput, category)
	}
	return s.repo.ListApproved(ctx, category)
}

func (s *Service) ListMine(ctx context.Context, actor user.User) ([]Product, error) {
	return s.repo.ListBySeller(ctx, actor.ID)
}

func (s *Service) ListPending(ctx context.Context, actor user.User) ([]Product, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can review products", apperr.ErrForbidden)
	}
	return s.repo.ListPending(ctx)
}
