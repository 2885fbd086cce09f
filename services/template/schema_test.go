package template

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailgate/mailgate/internal/enum"
	"github.com/mailgate/mailgate/internal/models"
	"github.com/mailgate/mailgate/services/render"
)

func TestValidateKey(t *testing.T) {
	assert.NoError(t, ValidateKey("welcome"))
	assert.NoError(t, ValidateKey("invoice_v2"))
	assert.NoError(t, ValidateKey("order-shipped"))
	assert.Error(t, ValidateKey("Welcome"))
	assert.Error(t, ValidateKey("has space"))
	assert.Error(t, ValidateKey(""))
}

func TestValidateSchema(t *testing.T) {
	valid := models.VariableList{
		{Name: "user_name", Type: enum.VariableString, Required: true},
		{Name: "amount", Type: enum.VariableNumber},
	}
	assert.NoError(t, ValidateSchema(valid))

	duplicate := models.VariableList{
		{Name: "x", Type: enum.VariableString},
		{Name: "x", Type: enum.VariableNumber},
	}
	assert.Error(t, ValidateSchema(duplicate))

	badType := models.VariableList{{Name: "x", Type: "uuid"}}
	assert.Error(t, ValidateSchema(badType))
}

func TestValidateBindings_RequiredMissing(t *testing.T) {
	schema := models.VariableList{{Name: "user_name", Type: enum.VariableString, Required: true}}

	_, err := ValidateBindings(schema, render.Bindings{})
	require.Error(t, err)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "user_name", validationErr.Variable)
}

func TestValidateBindings_DefaultApplied(t *testing.T) {
	schema := models.VariableList{{Name: "greeting", Type: enum.VariableString, Default: "Hello"}}

	effective, err := ValidateBindings(schema, render.Bindings{})
	require.NoError(t, err)
	assert.Equal(t, "Hello", effective["greeting"])
}

func TestValidateBindings_ProvidedValueWins(t *testing.T) {
	schema := models.VariableList{{Name: "greeting", Type: enum.VariableString, Default: "Hello"}}

	effective, err := ValidateBindings(schema, render.Bindings{"greeting": "Kia ora"})
	require.NoError(t, err)
	assert.Equal(t, "Kia ora", effective["greeting"])
}

func TestValidateBindings_TypeChecks(t *testing.T) {
	tests := []struct {
		name    string
		varType enum.VariableType
		good    interface{}
		bad     interface{}
	}{
		{"string", enum.VariableString, "hi", 42},
		{"number", enum.VariableNumber, 3.14, "3.14x"},
		{"boolean", enum.VariableBoolean, true, "true"},
		{"date", enum.VariableDate, "2024-06-01", "June 1st"},
		{"url", enum.VariableURL, "https://example.com/x", "not a url"},
		{"email", enum.VariableEmail, "ada@example.com", "ada@"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			schema := models.VariableList{{Name: "v", Type: tc.varType}}

			_, err := ValidateBindings(schema, render.Bindings{"v": tc.good})
			assert.NoError(t, err)

			_, err = ValidateBindings(schema, render.Bindings{"v": tc.bad})
			assert.Error(t, err)
		})
	}
}

func TestValidateBindings_UndeclaredBindingsPassThrough(t *testing.T) {
	effective, err := ValidateBindings(nil, render.Bindings{"extra": "kept"})
	require.NoError(t, err)
	assert.Equal(t, "kept", effective["extra"])
}

func TestSampleBindings(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	schema := models.VariableList{
		{Name: "name", Type: enum.VariableString},
		{Name: "count", Type: enum.VariableNumber},
		{Name: "active", Type: enum.VariableBoolean},
		{Name: "when", Type: enum.VariableDate},
		{Name: "link", Type: enum.VariableURL},
		{Name: "contact", Type: enum.VariableEmail},
	}

	samples := SampleBindings(schema, now)
	assert.Equal(t, "Sample Text", samples["name"])
	assert.Equal(t, 100, samples["count"])
	assert.Equal(t, true, samples["active"])
	assert.Equal(t, "2024-06-01", samples["when"])
	assert.Equal(t, "https://example.com", samples["link"])
	assert.Equal(t, "test@example.com", samples["contact"])
}

func TestCheckSyntax(t *testing.T) {
	now := time.Now()
	schema := models.VariableList{{Name: "user_name", Type: enum.VariableString}}

	assert.NoError(t, CheckSyntax("Hi {{ user_name }}", "<p>Hello {{ user_name }}</p>", schema, now))
	assert.Error(t, CheckSyntax("Hi", "@if(user_name)unclosed", schema, now))
	assert.Error(t, CheckSyntax("", "<p>body</p>", schema, now))
	assert.Error(t, CheckSyntax("subject", "  ", schema, now))
}
