package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Interpolation(t *testing.T) {
	out, err := Render("Welcome {{ user_name }}!", Bindings{"user_name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Welcome Ada!", out)
}

func TestRender_DollarPrefix(t *testing.T) {
	out, err := Render("Welcome {{ $user_name }}!", Bindings{"user_name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Welcome Ada!", out)
}

func TestRender_EscapesHTMLByDefault(t *testing.T) {
	out, err := Render("<p>{{ name }}</p>", Bindings{"name": "<script>alert(1)</script>"})
	require.NoError(t, err)
	assert.Equal(t, "<p>&lt;script&gt;alert(1)&lt;/script&gt;</p>", out)
}

func TestRender_RawInterpolationSkipsEscaping(t *testing.T) {
	out, err := Render("{!! content !!}", Bindings{"content": "<b>bold</b>"})
	require.NoError(t, err)
	assert.Equal(t, "<b>bold</b>", out)
}

func TestRender_WithoutEscapingForSubjects(t *testing.T) {
	out, err := Render("Order <{{ id }}>", Bindings{"id": "A&B"}, WithoutEscaping())
	require.NoError(t, err)
	assert.Equal(t, "Order <A&B>", out)
}

func TestRender_MissingBindingRendersEmpty(t *testing.T) {
	out, err := Render("Hello {{ nickname }}!", Bindings{})
	require.NoError(t, err)
	assert.Equal(t, "Hello !", out)
}

func TestRender_Conditional(t *testing.T) {
	tmpl := "@if(premium)Thanks for subscribing!@else Upgrade today.@endif"

	out, err := Render(tmpl, Bindings{"premium": true})
	require.NoError(t, err)
	assert.Equal(t, "Thanks for subscribing!", out)

	out, err = Render(tmpl, Bindings{"premium": false})
	require.NoError(t, err)
	assert.Equal(t, " Upgrade today.", out)

	// absent binding is falsy
	out, err = Render(tmpl, Bindings{})
	require.NoError(t, err)
	assert.Equal(t, " Upgrade today.", out)
}

func TestRender_ConditionalTruthiness(t *testing.T) {
	tmpl := "@if(count)yes@else no@endif"

	out, err := Render(tmpl, Bindings{"count": 0})
	require.NoError(t, err)
	assert.Equal(t, " no", out)

	out, err = Render(tmpl, Bindings{"count": 3})
	require.NoError(t, err)
	assert.Equal(t, "yes", out)

	out, err = Render(tmpl, Bindings{"count": ""})
	require.NoError(t, err)
	assert.Equal(t, " no", out)
}

func TestRender_ForeachWithFields(t *testing.T) {
	tmpl := "@foreach(items as item)<tr><td>{{ item.name }}</td><td>{{ number_format(item.price) }}</td></tr>@endforeach"
	bindings := Bindings{
		"items": []interface{}{
			map[string]interface{}{"name": "Widget", "price": 9.5},
			map[string]interface{}{"name": "Gadget", "price": 120},
		},
	}

	out, err := Render(tmpl, bindings)
	require.NoError(t, err)
	assert.Equal(t, "<tr><td>Widget</td><td>9.50</td></tr><tr><td>Gadget</td><td>120.00</td></tr>", out)
}

func TestRender_ForeachEmptyList(t *testing.T) {
	out, err := Render("@foreach(items as item)x@endforeach", Bindings{"items": []interface{}{}})
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestRender_ForeachNonListFails(t *testing.T) {
	_, err := Render("@foreach(items as item)x@endforeach", Bindings{"items": "not-a-list"})
	require.Error(t, err)
	var renderErr *RenderError
	assert.ErrorAs(t, err, &renderErr)
}

func TestRender_NumberFormat(t *testing.T) {
	out, err := Render("Total: {{ number_format(total) }}", Bindings{"total": 1234.5})
	require.NoError(t, err)
	assert.Equal(t, "Total: 1234.50", out)
}

func TestRender_NumberFormatNonNumeric(t *testing.T) {
	_, err := Render("{{ number_format(total) }}", Bindings{"total": "abc"})
	require.Error(t, err)
	var renderErr *RenderError
	assert.ErrorAs(t, err, &renderErr)
}

func TestRender_UnknownDirectiveFails(t *testing.T) {
	_, err := Render("@unless(x)y@endunless", Bindings{})
	require.Error(t, err)
	var renderErr *RenderError
	assert.ErrorAs(t, err, &renderErr)
}

func TestRender_UnterminatedIfFails(t *testing.T) {
	_, err := Render("@if(x)never closed", Bindings{"x": true})
	require.Error(t, err)
}

func TestRender_UnterminatedInterpolationFails(t *testing.T) {
	_, err := Render("Hello {{ name", Bindings{"name": "Ada"})
	require.Error(t, err)
}

func TestRender_StrayEndifFails(t *testing.T) {
	_, err := Render("text @endif", Bindings{})
	require.Error(t, err)
}

func TestRender_EmailAddressesAreNotDirectives(t *testing.T) {
	out, err := Render("Contact us at support@example.com", Bindings{})
	require.NoError(t, err)
	assert.Equal(t, "Contact us at support@example.com", out)
}

func TestRender_IfOnDottedField(t *testing.T) {
	tmpl := "@if(user.active)welcome back@else account disabled@endif"

	out, err := Render(tmpl, Bindings{"user": map[string]interface{}{"active": true}})
	require.NoError(t, err)
	assert.Equal(t, "welcome back", out)

	out, err = Render(tmpl, Bindings{"user": map[string]interface{}{"active": false}})
	require.NoError(t, err)
	assert.Equal(t, " account disabled", out)

	// a missing field is falsy, not an error
	out, err = Render(tmpl, Bindings{"user": map[string]interface{}{}})
	require.NoError(t, err)
	assert.Equal(t, " account disabled", out)
}

func TestRender_NestedBlocks(t *testing.T) {
	tmpl := "@foreach(rows as row)@if(row.visible){{ row.label }};@endif@endforeach"
	bindings := Bindings{
		"rows": []interface{}{
			map[string]interface{}{"label": "a", "visible": true},
			map[string]interface{}{"label": "b", "visible": false},
			map[string]interface{}{"label": "c", "visible": true},
		},
	}

	out, err := Render(tmpl, bindings)
	require.NoError(t, err)
	assert.Equal(t, "a;c;", out)
}

func TestRender_Deterministic(t *testing.T) {
	tmpl := "@foreach(items as i){{ i }},@endforeach{{ name }}"
	bindings := Bindings{"items": []interface{}{"x", "y"}, "name": "Ada"}

	first, err := Render(tmpl, bindings)
	require.NoError(t, err)
	for range 20 {
		again, err := Render(tmpl, bindings)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
