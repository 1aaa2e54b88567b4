package service

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunahq/bulkops-api/internal/dto"
	"github.com/lunahq/bulkops-api/internal/models"
)

func newValidator() *MutationValidator {
	return NewMutationValidator(validator.New(), nil)
}

func TestValidateAcceptsWellFormedRequest(t *testing.T) {
	result := newValidator().Validate(dto.CreateMutationRequest{
		ObjectType: "Opportunity",
		FieldName:  "StageName",
		NewValue:   "Closed",
	}, opportunityFields())
	require.True(t, result.Valid)
	require.Empty(t, result.Errors)
}

func TestValidateRejectsEmptyValue(t *testing.T) {
	result := newValidator().Validate(dto.CreateMutationRequest{
		ObjectType: "Opportunity",
		FieldName:  "StageName",
		NewValue:   "",
	}, opportunityFields())
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `use "--None--" to clear`)
}

func TestValidateAcceptsSentinel(t *testing.T) {
	result := newValidator().Validate(dto.CreateMutationRequest{
		ObjectType: "Opportunity",
		FieldName:  "Description",
		NewValue:   "--None--",
	}, opportunityFields())
	require.True(t, result.Valid)
}

func TestValidateRejectsUnknownField(t *testing.T) {
	result := newValidator().Validate(dto.CreateMutationRequest{
		ObjectType: "Opportunity",
		FieldName:  "NoSuchField",
		NewValue:   "x",
	}, opportunityFields())
	require.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "does not exist")
}

func TestValidateRejectsNonUpdateableField(t *testing.T) {
	result := newValidator().Validate(dto.CreateMutationRequest{
		ObjectType: "Opportunity",
		FieldName:  "CreatedDate",
		NewValue:   "2026-01-01",
	}, opportunityFields())
	require.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "not updateable")
}

func TestValidateTypeChecks(t *testing.T) {
	fields := opportunityFields()
	v := newValidator()

	result := v.Validate(dto.CreateMutationRequest{
		ObjectType: "Opportunity",
		FieldName:  "StageName",
		NewValue:   "NotAStage",
	}, fields)
	require.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "not an active picklist value")

	result = v.Validate(dto.CreateMutationRequest{
		ObjectType: "Opportunity",
		FieldName:  "IsPrivate",
		NewValue:   "maybe",
	}, fields)
	require.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "not a valid boolean")

	result = v.Validate(dto.CreateMutationRequest{
		ObjectType: "Opportunity",
		FieldName:  "Amount",
		NewValue:   "lots",
	}, fields)
	require.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "not a valid number")
}

func TestValidateMultiFieldChecksEveryPair(t *testing.T) {
	result := newValidator().Validate(dto.CreateMutationRequest{
		ObjectType: "Opportunity",
		FieldUpdates: map[string]string{
			"StageName": "Closed",
			"Amount":    "not-a-number",
		},
	}, opportunityFields())
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
}

func TestValidateRejectsUnsupportedUpdateMode(t *testing.T) {
	result := newValidator().Validate(dto.CreateMutationRequest{
		ObjectType: "Opportunity",
		UpdateMode: "everything",
		FieldName:  "StageName",
		NewValue:   "Closed",
	}, opportunityFields())
	require.False(t, result.Valid)
}

func TestValidateDegradedMetadataWarnsInsteadOfBlocking(t *testing.T) {
	result := newValidator().Validate(dto.CreateMutationRequest{
		ObjectType: "Opportunity",
		FieldName:  "Anything__c",
		NewValue:   "x",
	}, models.NewFieldSet("Opportunity", nil))
	require.True(t, result.Valid)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "metadata unavailable")
}
