package section_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodiumlight/stm8tc/pkg/section"
)

func TestSelectCreatesAndReuses(t *testing.T) {
	tab := section.New()
	s1, err := tab.Select("text", false)
	require.NoError(t, err)
	s2, err := tab.Select("text", false)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
}

func TestNoloadMismatchIsError(t *testing.T) {
	tab := section.New()
	_, err := tab.Select("bss", true)
	require.NoError(t, err)
	_, err = tab.Select("bss", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, section.ErrNoloadMismatch))
}

func TestNoloadAppendAdvancesLengthOnly(t *testing.T) {
	tab := section.New()
	s, err := tab.Select("bss", true)
	require.NoError(t, err)
	s.PushData([]byte{1, 2, 3})
	assert.Equal(t, 3, s.Length)
	assert.Empty(t, s.Data)
}

func TestPatchOutOfBoundsIsError(t *testing.T) {
	tab := section.New()
	s, _ := tab.Select("text", false)
	s.PushData([]byte{0, 0})
	err := s.Patch(1, []byte{1, 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, section.ErrPatchOutOfBound))
}

func TestPatchOnNoloadIsNoOp(t *testing.T) {
	tab := section.New()
	s, _ := tab.Select("bss", true)
	s.PushData([]byte{1, 2, 3})
	require.NoError(t, s.Patch(0, []byte{9, 9, 9}))
	assert.Empty(t, s.Data)
}

func TestPatchOverwritesInPlace(t *testing.T) {
	tab := section.New()
	s, _ := tab.Select("text", false)
	s.PushData([]byte{0x9D, 0x00, 0x00})
	require.NoError(t, s.Patch(1, []byte{0x12, 0x34}))
	assert.Equal(t, []byte{0x9D, 0x12, 0x34}, s.Data)
}
