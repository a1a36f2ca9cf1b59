package digest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	d, err := Compute(SHA256, "hello world")
	require.NoError(t, err)

	parsed, err := Parse(d.String())
	require.NoError(t, err)
	assert.True(t, d.Equal(parsed))
}

func TestParseIgnoresWhitespace(t *testing.T) {
	d, err := Compute(SHA1, "abc")
	require.NoError(t, err)

	spaced := "  " + strings.ReplaceAll(d.ToHex(), ":", ": ") + "\n"
	parsed, err := Parse(spaced)
	require.NoError(t, err)
	assert.True(t, d.Equal(parsed))
}

func TestParseNormalizesAlgorithmAliases(t *testing.T) {
	d, err := Compute(SHA256, "x")
	require.NoError(t, err)
	hexOnly := strings.SplitN(d.ToHex(), ":", 2)[1]

	parsed, err := Parse("SHA-256:" + hexOnly)
	require.NoError(t, err)
	assert.Equal(t, SHA256, parsed.Algorithm())
}

func TestParseRejectsOddHexLength(t *testing.T) {
	_, err := Parse("sha256:abc")
	require.Error(t, err)
}

func TestParseRejectsWrongLengthForAlgorithm(t *testing.T) {
	_, err := Parse("sha256:aabb")
	require.Error(t, err)
}

func TestVerifyDetectsMismatch(t *testing.T) {
	expected, err := Compute(SHA256, "expected-content")
	require.NoError(t, err)

	err = Verify(strings.NewReader("different-content"), expected)
	require.Error(t, err)
	var mismatch *Mismatch
	require.ErrorAs(t, err, &mismatch)
}

func TestVerifySucceedsOnMatch(t *testing.T) {
	content := "matching-content"
	expected, err := Compute(SHA512, content)
	require.NoError(t, err)

	err = Verify(strings.NewReader(content), expected)
	require.NoError(t, err)
}

func TestEqualityByAlgorithmAndBytes(t *testing.T) {
	a, _ := Compute(SHA256, "same")
	b, _ := Compute(SHA256, "same")
	c, _ := Compute(SHA1, "same")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
