package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=resolved dismissed"`
	Note   string `json:"note,omitempty" validate:"max=10"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	v := New()

	result := v.Struct(statusRequest{Status: "open", Note: "this note is too long"})
	assert.False(t, result.IsValid)
	assert.ElementsMatch(t, []ValidationError{
		{Field: "status", Message: "must be one of: resolved dismissed"},
		{Field: "note", Message: "must be at most 10"},
	}, result.Errors)
	assert.Contains(t, result.Error(), "status must be one of")
}

func TestStructValid(t *testing.T) {
	result := New().Struct(statusRequest{Status: "resolved"})
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "", result.Error())
}
