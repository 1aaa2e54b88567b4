package soql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lunahq/bulkops-api/internal/dto"
	"github.com/lunahq/bulkops-api/internal/models"
	appErrors "github.com/lunahq/bulkops-api/pkg/errors"
)

// Escape doubles single quotes so a literal can never alter query
// structure. Values are always embedded through this function, never by
// plain concatenation.
func Escape(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}

// EscapeLike additionally escapes the LIKE wildcard characters so a literal
// embedded in a pattern matches itself only. An unescaped % or _ in a user
// value would widen the match set beyond what the filter asked for.
func EscapeLike(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, "%", `\%`)
	value = strings.ReplaceAll(value, "_", `\_`)
	return Escape(value)
}

// Compiled is the output of compiling filter criteria for one object type.
type Compiled struct {
	ObjectType string
	Where      string
	Unfiltered bool
	Warnings   []string
}

// SelectQuery renders the full query selecting Id plus the given fields.
func (c *Compiled) SelectQuery(fields []string) string {
	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, "Id")
	for _, f := range fields {
		if f != "" && !strings.EqualFold(f, "Id") {
			cols = append(cols, f)
		}
	}
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), c.ObjectType)
	if c.Where != "" {
		q += " WHERE " + c.Where
	}
	return q
}

// CountQuery renders a COUNT() query over the same conditions, used to
// estimate affected records before the approval gate.
func (c *Compiled) CountQuery() string {
	q := fmt.Sprintf("SELECT COUNT() FROM %s", c.ObjectType)
	if c.Where != "" {
		q += " WHERE " + c.Where
	}
	return q
}

// Compile turns a mutation request's filters into a store-native boolean
// expression. Every referenced field must exist in the field set unless
// metadata is degraded, in which case unknown fields are treated as opaque
// text. An empty condition set compiles to a valid unfiltered query with
// Unfiltered set; callers must surface that prominently.
func Compile(req dto.CreateMutationRequest, fields *models.FieldSet) (*Compiled, error) {
	compiled := &Compiled{ObjectType: req.ObjectType}
	conditions := make([]string, 0, len(req.Filters)+2)

	for _, criterion := range req.Filters {
		cond, err := compileCriterion(criterion, fields)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}

	if req.Parent != nil {
		cond, warning := parentCondition(req.Parent, fields)
		conditions = append(conditions, cond)
		if warning != "" {
			compiled.Warnings = append(compiled.Warnings, warning)
		}
	}

	if req.UpdateMode == dto.UpdateModeSpecific && !req.MultiField() {
		cond, err := currentValueCondition(req, fields)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}

	if len(conditions) == 0 {
		compiled.Unfiltered = true
		compiled.Warnings = append(compiled.Warnings,
			fmt.Sprintf("no filters supplied: this matches every %s record", req.ObjectType))
		return compiled, nil
	}

	compiled.Where = strings.Join(conditions, " AND ")
	return compiled, nil
}

func compileCriterion(criterion dto.FilterCriterion, fields *models.FieldSet) (string, error) {
	name := strings.TrimSpace(criterion.Field)
	if name == "" {
		return "", appErrors.Clone(appErrors.ErrCompilation, "filter field name is required")
	}

	descriptor := fields.Field(name)
	if descriptor == nil && !fields.Empty() {
		return "", appErrors.Clone(appErrors.ErrCompilation,
			fmt.Sprintf("unknown filter field %q on %s", name, fields.ObjectType))
	}
	if descriptor != nil {
		name = descriptor.Name
	}

	literal := renderLiteral(criterion.Value, descriptor)

	switch normalizeOperator(criterion.Operator) {
	case "equals":
		if IsNone(criterion.Value) {
			return fmt.Sprintf("(%s = null OR %s = '')", name, name), nil
		}
		return fmt.Sprintf("%s = %s", name, literal), nil
	case "not_equals":
		return fmt.Sprintf("%s != %s", name, literal), nil
	case "contains":
		return fmt.Sprintf("%s LIKE '%%%s%%'", name, EscapeLike(criterion.Value)), nil
	case "starts_with":
		return fmt.Sprintf("%s LIKE '%s%%'", name, EscapeLike(criterion.Value)), nil
	case "greater_than":
		return fmt.Sprintf("%s > %s", name, literal), nil
	case "less_than":
		return fmt.Sprintf("%s < %s", name, literal), nil
	default:
		return "", appErrors.Clone(appErrors.ErrCompilation,
			fmt.Sprintf("unsupported filter operator %q", criterion.Operator))
	}
}

// currentValueCondition narrows updateMode=specific to records whose target
// field currently holds the requested value.
func currentValueCondition(req dto.CreateMutationRequest, fields *models.FieldSet) (string, error) {
	name := strings.TrimSpace(req.FieldName)
	if name == "" {
		return "", appErrors.Clone(appErrors.ErrCompilation, "fieldName is required for updateMode=specific")
	}

	descriptor := fields.Field(name)
	if descriptor == nil && !fields.Empty() {
		return "", appErrors.Clone(appErrors.ErrCompilation,
			fmt.Sprintf("unknown field %q on %s", name, fields.ObjectType))
	}
	if descriptor != nil {
		name = descriptor.Name
	}

	if IsNone(req.CurrentValue) {
		return fmt.Sprintf("(%s = null OR %s = '')", name, name), nil
	}
	return fmt.Sprintf("%s = %s", name, renderLiteral(req.CurrentValue, descriptor)), nil
}

// parentCondition restricts the run to children of a parent record. The
// reference-field name is discovered from live metadata because the same
// logical relationship can be exposed under different field names per
// deployment; when discovery fails or is ambiguous, an OR across candidate
// names is safer than guessing one.
func parentCondition(parent *dto.ParentFilter, fields *models.FieldSet) (cond, warning string) {
	id := Escape(parent.ID)
	candidates := fields.ReferenceFieldsTo(parent.ObjectType)

	switch len(candidates) {
	case 1:
		return fmt.Sprintf("%s = '%s'", candidates[0], id), ""
	case 0:
		candidates = []string{parent.ObjectType + "Id", parent.ObjectType + "__c"}
		warning = fmt.Sprintf("no reference field to %s found in metadata; matching candidate names", parent.ObjectType)
	default:
		warning = fmt.Sprintf("multiple reference fields to %s; matching any of them", parent.ObjectType)
	}

	parts := make([]string, 0, len(candidates))
	for _, name := range candidates {
		parts = append(parts, fmt.Sprintf("%s = '%s'", name, id))
	}
	return "(" + strings.Join(parts, " OR ") + ")", warning
}

// renderLiteral embeds a value with type-aware quoting: booleans and
// numbers unquoted, everything else a quoted escaped string.
func renderLiteral(value string, d *models.FieldDescriptor) string {
	if d != nil {
		switch d.Type {
		case models.FieldTypeBoolean:
			b, _ := ParseBool(value)
			return strconv.FormatBool(b)
		case models.FieldTypeNumber:
			if _, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
				return strings.TrimSpace(value)
			}
		case models.FieldTypeDate:
			// date literals are unquoted in SOQL when already ISO formatted
			trimmed := strings.TrimSpace(value)
			if isDateLiteral(trimmed) {
				return trimmed
			}
		}
	}
	return "'" + Escape(value) + "'"
}

func isDateLiteral(value string) bool {
	if len(value) < 10 {
		return false
	}
	for i, r := range value[:10] {
		if i == 4 || i == 7 {
			if r != '-' {
				return false
			}
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func normalizeOperator(op string) string {
	switch strings.ToLower(strings.TrimSpace(op)) {
	case "", "=", "==", "equals", "eq":
		return "equals"
	case "!=", "<>", "not_equals", "ne":
		return "not_equals"
	case "contains", "like":
		return "contains"
	case "starts_with", "startswith":
		return "starts_with"
	case ">", "greater_than", "gt":
		return "greater_than"
	case "<", "less_than", "lt":
		return "less_than"
	default:
		return strings.ToLower(strings.TrimSpace(op))
	}
}
