package products

import (
	"strings"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

func (s *Service) validateInput(in ProductInput) error {
	if err := s.validate.Struct(in); err != nil {
		return shared.Invalid("%v", err)
	}
	if strings.TrimSpace(in.SKU) == "" {
		return shared.Invalid("product sku is required")
	}
	if in.Price.IsNegative() {
		return shared.Invalid("product price must not be negative")
	}
	return nil
}
