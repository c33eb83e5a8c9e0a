package rsnerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryKindHasNameAndCategory(t *testing.T) {
	for k := kindInvalid + 1; k < kindCount; k++ {
		assert.NotEmpty(t, kindNames[k], "kind %d", k)
		assert.NotEqual(t, CategoryUnknown, k.Category(), "kind %s", k)
	}
	assert.Equal(t, CategoryUnknown, kindCount.Category())
	assert.True(t, strings.HasPrefix(kindCount.String(), "rsnerr.Kind("))
}

func TestIsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("message 3: %w", New(InvalidMic, "kck %d bytes", 16))
	assert.ErrorIs(t, err, InvalidMic)
	assert.ErrorIs(t, err, New(InvalidMic, ""))
	assert.NotErrorIs(t, err, InvalidKeyDataLength)
	assert.Equal(t, "message 3: invalid MIC: kck 16 bytes", err.Error())

	k, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, InvalidMic, k)
	assert.Equal(t, CategoryCrypto, CategoryOf(err))

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
	assert.Equal(t, CategoryUnknown, CategoryOf(errors.New("plain")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("read /dev/urandom: device busy")
	err := Wrap(EntropyUnavailable, cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, EntropyUnavailable)
	assert.Contains(t, err.Error(), "device busy")
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(Wrap(EntropyUnavailable, errors.New("x"))))
	assert.True(t, IsFatal(NonceExhausted))
	assert.False(t, IsFatal(New(InvalidMic, "")))
	assert.False(t, IsFatal(New(ReplayCounterNotIncreasing, "")))
	assert.False(t, IsFatal(nil))
}

func TestCategoryNames(t *testing.T) {
	assert.Equal(t, "role-misuse", SupplicantCannotInitiate.Category().String())
	assert.Equal(t, "downgrade", RsneMismatch.Category().String())
	assert.Equal(t, "replay", UnexpectedReplayCounter.Category().String())
}
