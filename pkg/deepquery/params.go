package deepquery

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/himanishpuri/DeepQuery/pkg/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateParams rejects window settings that cannot produce a plan:
// non-positive segment length, negative overlap, or overlap not below the segment length.
func ValidateParams(p models.Params) error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}
