package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey(t *testing.T) {
	key := GenerateAPIKey()
	assert.True(t, strings.HasPrefix(key, APIKeyPrefix))
	assert.Len(t, key, len(APIKeyPrefix)+40)

	// keys are random
	assert.NotEqual(t, key, GenerateAPIKey())
}

func TestHashAPIKey(t *testing.T) {
	hash := HashAPIKey("eak_test")
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, HashAPIKey("eak_test"))
	assert.NotEqual(t, hash, HashAPIKey("eak_other"))
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, SecureCompare("secret", "secret"))
	assert.False(t, SecureCompare("secret", "Secret"))
	assert.False(t, SecureCompare("secret", "secret1"))
}

func TestGenerateNanoIDWithPrefix(t *testing.T) {
	id := GenerateNanoIDWithPrefix("dom", 16)
	require.True(t, strings.HasPrefix(id, "dom_"))
	assert.Len(t, id, len("dom_")+16)
}

func TestGenerateMessageID(t *testing.T) {
	id := GenerateMessageID()
	assert.True(t, strings.HasPrefix(id, "eak_"))
	assert.Contains(t, id, ".")
}

func TestGenerateRFCMessageID(t *testing.T) {
	id := GenerateRFCMessageID("acme.example.com")
	assert.True(t, strings.HasPrefix(id, "<"))
	assert.True(t, strings.HasSuffix(id, "@acme.example.com>"))
}

func TestStartOfDayUTC(t *testing.T) {
	in := time.Date(2025, 3, 10, 14, 35, 12, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), StartOfDayUTC(in))

	// non-UTC input is normalized first
	loc := time.FixedZone("UTC+5", 5*3600)
	in = time.Date(2025, 3, 10, 3, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC), StartOfDayUTC(in))
}

func TestStartOfWeekUTC(t *testing.T) {
	// 2025-03-12 is a Wednesday; the week starts Monday 2025-03-10
	in := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), StartOfWeekUTC(in))

	// Sunday belongs to the week that started the previous Monday
	in = time.Date(2025, 3, 16, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), StartOfWeekUTC(in))

	// Monday is its own week start
	in = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, in, StartOfWeekUTC(in))
}

func TestStartOfMonthUTC(t *testing.T) {
	in := time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), StartOfMonthUTC(in))
}

func TestExtractDomainFromEmail(t *testing.T) {
	assert.Equal(t, "acme.example.com", ExtractDomainFromEmail("hello@acme.example.com"))
	assert.Equal(t, "acme.example.com", ExtractDomainFromEmail("Acme <hello@ACME.example.com>"))
	assert.Equal(t, "", ExtractDomainFromEmail("not-an-address"))
	assert.Equal(t, "", ExtractDomainFromEmail(""))
}
