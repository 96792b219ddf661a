package keys

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidates_ContainsLettersDigitsAndSymbols(t *testing.T) {
	t.Parallel()

	got := Candidates()
	assert.Len(t, got, 26+10+34)
	assert.True(t, IsCandidate(A))
	assert.True(t, IsCandidate(Digit7))
	assert.True(t, IsCandidate(Underscore))
	assert.True(t, IsCandidate(EuroSign))
}

func TestCandidates_ExcludesStatefulKeys(t *testing.T) {
	t.Parallel()

	for _, c := range []Code{Shift, Control, Alt, Enter, Escape, Tab, Backspace, Up, F1, F12, Space} {
		assert.False(t, IsCandidate(c), "%s must not be probed", c)
	}
}

func TestCandidates_ReturnsCopy(t *testing.T) {
	t.Parallel()

	got := Candidates()
	got[0] = Escape
	assert.Equal(t, A, Candidates()[0])
}

func TestParse_RoundTripsEveryName(t *testing.T) {
	t.Parallel()

	for c := A; c < maxCode; c++ {
		parsed, err := Parse(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
	_, err := Parse("NOPE")
	assert.Error(t, err)
	_, err = Parse("UNDEFINED")
	assert.Error(t, err)
}

func TestDescriptor_EncodesCodeByName(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Descriptor{Code: BackSlash, Shift: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"BACK_SLASH","shift":true}`, string(data))

	var d Descriptor
	require.NoError(t, json.Unmarshal(data, &d))
	assert.Equal(t, Descriptor{Code: BackSlash, Shift: true}, d)
	assert.Equal(t, "SHIFT+BACK_SLASH", d.String())
}

func TestCode_StringFallsBack_When_OutOfRange(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Code(999)", Code(999).String())
	assert.False(t, Code(999).Valid())
	assert.False(t, Undefined.Valid())
}
