package suppliers

import (
	"strings"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

func (s *Service) validateInput(in SupplierInput) error {
	if err := s.validate.Struct(in); err != nil {
		return shared.Invalid("%v", err)
	}
	if strings.TrimSpace(in.Code) == "" {
		return shared.Invalid("supplier code is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return shared.Invalid("supplier name is required")
	}
	return nil
}
