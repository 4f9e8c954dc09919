package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"offline-sync-engine/internal/domain"

	"github.com/go-playground/validator/v10"
)

// SchemaValidator checks document payloads against their collection schema
// at the store boundary.
type SchemaValidator struct {
	validate *validator.Validate
}

func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{validate: validator.New()}
}

func (v *SchemaValidator) Validate(col *domain.Collection, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrValidation, col.Name, err)
	}

	target := col.Schema()
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrValidation, col.Name, err)
	}

	if err := v.validate.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s: %s", domain.ErrValidation, col.Name, strings.Join(msgs, ", "))
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrValidation, col.Name, err)
	}

	return nil
}
