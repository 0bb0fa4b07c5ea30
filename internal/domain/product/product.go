package product

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const AggregateType = "Product"

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidPrice    = errors.New("price must not be negative")
	ErrInvalidStock    = errors.New("stock must not be negative")
	ErrInvalidName     = errors.New("name is required")
	ErrInvalidDesc     = errors.New("description is required")
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Image       string          `json:"image,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Repository persists catalog entries. Lookups of unknown ids return ErrProductNotFound.
type Repository interface {
	Insert(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*Product, error)
	// FindByIDs returns the products that exist; missing ids are simply absent from the map.
	FindByIDs(ctx context.Context, ids []string) (map[string]*Product, error)
	List(ctx context.Context) ([]*Product, error)
}

// Input carries the writable fields of a product.
type Input struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Image       string
}

func (in Input) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrInvalidName
	}
	if strings.TrimSpace(in.Description) == "" {
		return ErrInvalidDesc
	}
	if in.Price.IsNegative() {
		return ErrInvalidPrice
	}
	if in.Stock < 0 {
		return ErrInvalidStock
	}
	return nil
}

type Service struct {
	repo    Repository
	journal store.Journal
	logger  *zap.Logger
}

func NewService(repo Repository, journal store.Journal, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, journal: journal, logger: logger.Named("product")}
}

func (s *Service) Create(ctx context.Context, in Input) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &Product{
		ID:          uuid.New().String(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		Image:       in.Image,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, p); err != nil {
		return nil, err
	}

	s.record(ctx, p.ID, EventProductCreated, ProductCreated{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Stock:     p.Stock,
		CreatedAt: now,
	})
	return p, nil
}

func (s *Service) Update(ctx context.Context, id string, in Input) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Name = in.Name
	p.Description = in.Description
	p.Price = in.Price
	p.Stock = in.Stock
	p.Image = in.Image
	p.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}

	s.record(ctx, p.ID, EventProductUpdated, ProductUpdated{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Stock:     p.Stock,
		UpdatedAt: p.UpdatedAt,
	})
	return p, nil
}

// Delete removes a product from the catalog. Carts still referencing it resolve the item to nil.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, id, EventProductDeleted, ProductDeleted{ProductID: id, DeletedAt: time.Now().UTC()})
	return nil
}

func (s *Service) FindByID(ctx context.Context, id string) (*Product, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) FindByIDs(ctx context.Context, ids []string) (map[string]*Product, error) {
	if len(ids) == 0 {
		return map[string]*Product{}, nil
	}
	return s.repo.FindByIDs(ctx, ids)
}

func (s *Service) List(ctx context.Context) ([]*Product, error) {
	return s.repo.List(ctx)
}

func (s *Service) record(ctx context.Context, id, eventType string, data any) {
	if s.journal == nil {
		return
	}
	if _, err := s.journal.Append(ctx, id, AggregateType, eventType, data); err != nil {
		s.logger.Warn("failed to journal event",
			zap.String("event_type", eventType),
			zap.String("product_id", id),
			zap.Error(err))
	}
}
