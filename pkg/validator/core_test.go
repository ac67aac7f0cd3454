package validator_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/agentpay/pkg/validator"
)

func TestApply(t *testing.T) {
	t.Run("returns nil when all rules pass", func(t *testing.T) {
		err := validator.Apply(
			validator.Required("name", "billing"),
			validator.MaxLen("name", "billing", 255),
		)
		assert.NoError(t, err)
	})

	t.Run("collects all failures", func(t *testing.T) {
		err := validator.Apply(
			validator.Required("name", ""),
			validator.NonNegativeAmount("amount", -5.0),
		)
		require.Error(t, err)

		var ve validator.ValidationErrors
		require.ErrorAs(t, err, &ve)
		assert.Len(t, ve, 2)
		assert.True(t, ve.Has("name"))
		assert.True(t, ve.Has("amount"))
	})

	t.Run("failure carries field and value", func(t *testing.T) {
		err := validator.Apply(validator.NonNegativeAmount("cost", -1.0))

		ve := validator.ExtractValidationErrors(err)
		require.Len(t, ve, 1)
		assert.Equal(t, "cost", ve[0].Field)
		assert.Equal(t, -1.0, ve[0].Value)
	})
}

func TestNewError(t *testing.T) {
	err := validator.NewError("status", "refunded", "illegal transition")
	require.Error(t, err)
	assert.True(t, validator.IsValidationError(err))

	ve := validator.ExtractValidationErrors(err)
	require.Len(t, ve, 1)
	assert.Equal(t, "status", ve[0].Field)
	assert.Equal(t, "refunded", ve[0].Value)
}

func TestIsValidationError(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.False(t, validator.IsValidationError(nil))
	})

	t.Run("unrelated error", func(t *testing.T) {
		assert.False(t, validator.IsValidationError(errors.New("boom")))
	})

	t.Run("wrapped validation error", func(t *testing.T) {
		err := fmt.Errorf("saving plan: %w", validator.NewError("id", "", "field is required"))
		assert.True(t, validator.IsValidationError(err))
	})
}

func TestValidationErrorsAccessors(t *testing.T) {
	ve := validator.ValidationErrors{
		{Field: "id", Message: "field is required"},
		{Field: "id", Message: "must be at most 100 characters long"},
		{Field: "price", Message: "amount cannot be negative"},
	}

	assert.Equal(t, []string{"id", "price"}, ve.Fields())
	assert.Len(t, ve.Get("id"), 2)
	assert.Contains(t, ve.Error(), "price: amount cannot be negative")
}
