package urlvalid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-labs/scrapeforge/internal/apperr"
)

func TestValidate_AddsSchemeAndLowercasesHost(t *testing.T) {
	v := New(nil)

	got, err := v.Validate("Example.com/Path")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/Path", got)
}

func TestValidate_RejectsNonHTTPScheme(t *testing.T) {
	v := New(nil)

	_, err := v.Validate("ftp://example.com")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUnsupportedProtocol))
}

func TestValidate_RejectsBlocklistedHost(t *testing.T) {
	v := New(nil)

	_, err := v.Validate("https://www.facebook.com/page")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindBlocklistedURL))
}

func TestValidate_CustomBlocklistOverridesDefault(t *testing.T) {
	v := New([]string{"blocked.example"})

	_, err := v.Validate("https://facebook.com")
	require.NoError(t, err)

	_, err = v.Validate("https://sub.blocked.example/page")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindBlocklistedURL))
}

func TestValidate_RejectsMissingTLD(t *testing.T) {
	v := New(nil)

	_, err := v.Validate("http://notadomain")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidURL))
}

func TestValidate_AllowsLocalhost(t *testing.T) {
	v := New(nil)

	got, err := v.Validate("http://localhost:8080/health")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/health", got)
}

func TestValidate_RejectsEmpty(t *testing.T) {
	v := New(nil)

	_, err := v.Validate("   ")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidURL))
}

func TestValidateForMap_StripsTrailingSlashAndQuery(t *testing.T) {
	v := New(nil)

	got, err := v.ValidateForMap("https://example.com/docs/?utm_source=x")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/docs", got)
}

func TestIsSameRegistrableDomain(t *testing.T) {
	assert.True(t, IsSameRegistrableDomain("https://www.example.com", "https://blog.example.com"))
	assert.False(t, IsSameRegistrableDomain("https://example.com", "https://example.org"))
}

func TestIsSameRegistrableDomain_MultiLabelSuffix(t *testing.T) {
	assert.True(t, IsSameRegistrableDomain("https://www.example.co.uk", "https://shop.example.co.uk"))
	assert.False(t, IsSameRegistrableDomain("https://example.co.uk", "https://other.co.uk"))
}

func TestIsSubdomainOf(t *testing.T) {
	assert.True(t, IsSubdomainOf("https://docs.example.com", "https://example.com"))
	assert.False(t, IsSubdomainOf("https://docs.example.com", "https://other.com"))
}

func TestRemoveDuplicateUrls_PrefersHTTPSAndNonWWW(t *testing.T) {
	in := []string{
		"http://www.example.com/page",
		"https://example.com/page",
		"https://example.com/other",
	}

	out := RemoveDuplicateUrls(in)
	assert.ElementsMatch(t, []string{"https://example.com/page", "https://example.com/other"}, out)
}

func TestRemoveDuplicateUrls_IsIdempotent(t *testing.T) {
	in := []string{
		"https://example.com/a?b=2&a=1",
		"http://www.example.com/a?a=1&b=2",
		"https://example.com/b",
	}

	once := RemoveDuplicateUrls(in)
	twice := RemoveDuplicateUrls(once)
	assert.Equal(t, once, twice)
}

func TestNormalize_SortsQueryAndStripsFragment(t *testing.T) {
	got := Normalize("HTTP://Example.com/path?b=2&a=1#section")
	assert.Equal(t, "http://example.com/path?a=1&b=2", got)
}
