package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lunahq/bulkops-api/internal/dto"
	"github.com/lunahq/bulkops-api/internal/models"
	"github.com/lunahq/bulkops-api/internal/soql"
)

// ValidationResult reports the validation gate's verdict. Errors block
// execution; warnings are surfaced but do not.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// MutationValidator checks a proposed mutation against field metadata and
// simple business rules before anything is sent to the store. Validation is
// best-effort: a degraded field set turns the gate into a warning-only pass.
type MutationValidator struct {
	validate *validator.Validate
	logger   *zap.Logger
}

// NewMutationValidator constructs the gate.
func NewMutationValidator(validate *validator.Validate, logger *zap.Logger) *MutationValidator {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MutationValidator{validate: validate, logger: logger}
}

// Validate applies structural and metadata checks to a mutation request.
func (v *MutationValidator) Validate(req dto.CreateMutationRequest, fields *models.FieldSet) ValidationResult {
	result := ValidationResult{Valid: true}

	if err := v.validate.Struct(req); err != nil {
		result.Errors = append(result.Errors, "invalid mutation payload: "+err.Error())
	}

	if strings.TrimSpace(req.ObjectType) == "" {
		result.Errors = append(result.Errors, "objectType is required")
	}

	if req.MultiField() {
		for name, value := range req.FieldUpdates {
			v.checkFieldUpdate(name, value, fields, &result)
		}
	} else {
		if strings.TrimSpace(req.FieldName) == "" {
			result.Errors = append(result.Errors, "fieldName is required for single-field mutations")
		} else {
			v.checkFieldUpdate(req.FieldName, req.NewValue, fields, &result)
		}
		switch req.UpdateMode {
		case "", dto.UpdateModeAll, dto.UpdateModeSpecific:
		default:
			result.Errors = append(result.Errors, fmt.Sprintf("unsupported updateMode %q", req.UpdateMode))
		}
	}

	if fields.Empty() {
		result.Warnings = append(result.Warnings,
			"field metadata unavailable: type and updateability checks were skipped")
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// checkFieldUpdate validates one field/value pair. An empty-string value is
// rejected because null and empty string are different states in the store;
// the none sentinel is the only way to clear a field.
func (v *MutationValidator) checkFieldUpdate(name, value string, fields *models.FieldSet, result *ValidationResult) {
	if value == "" {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"empty value for field %q: use %q to clear a field", name, soql.NoneSentinel))
		return
	}
	if soql.IsNone(value) {
		return
	}

	descriptor := fields.Field(name)
	if descriptor == nil {
		if !fields.Empty() {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"field %q does not exist on %s", name, fields.ObjectType))
		}
		return
	}

	if !descriptor.Updateable {
		result.Errors = append(result.Errors, fmt.Sprintf("field %q is not updateable", descriptor.Name))
		return
	}

	switch descriptor.Type {
	case models.FieldTypePicklist:
		if !matchesPicklist(value, descriptor.PicklistValues) {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"%q is not an active picklist value for field %q", value, descriptor.Name))
		}
	case models.FieldTypeBoolean:
		if _, ok := soql.ParseBool(value); !ok {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"%q is not a valid boolean for field %q", value, descriptor.Name))
		}
	case models.FieldTypeNumber:
		if _, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"%q is not a valid number for field %q", value, descriptor.Name))
		}
	}
}

func matchesPicklist(value string, allowed []string) bool {
	for _, entry := range allowed {
		if strings.EqualFold(strings.TrimSpace(value), entry) {
			return true
		}
	}
	return false
}
