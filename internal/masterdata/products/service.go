package products

import (
	"context"

	"github.com/go-playground/validator/v10"
)

// Repository is the catalog's persistence port.
type Repository interface {
	Finder
	GetProduct(ctx context.Context, id int64) (*Product, error)
	ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error)
	CreateProduct(ctx context.Context, p *Product) (int64, error)
	UpdateProduct(ctx context.Context, id int64, in ProductInput) error
}

// Service maintains the catalog. Order lines copy product fields when they are
// written, so edits here never reach existing orders.
type Service struct {
	repo     Repository
	validate *validator.Validate
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	return s.repo.ListProducts(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) Create(ctx context.Context, in ProductInput) (*Product, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	p := &Product{SKU: in.SKU, Name: in.Name, Description: in.Description, Price: in.Price, IsActive: true}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	id, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) Update(ctx context.Context, id int64, in ProductInput) (*Product, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProduct(ctx, id, in); err != nil {
		return nil, err
	}
	return s.repo.GetProduct(ctx, id)
}
