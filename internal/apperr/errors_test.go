package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfUnwraps(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("create: %w", Invalid(TooFewOptions, "need at least %d options", 2))
	require.Equal(t, TooFewOptions, KindOf(err))
	require.Equal(t, "create: need at least 2 options", err.Error())
	require.Equal(t, Kind(""), KindOf(errors.New("boom")))
}

func TestIsUserFacing(t *testing.T) {
	t.Parallel()
	require.True(t, IsUserFacing(ErrNotFound))
	require.True(t, IsUserFacing(fmt.Errorf("cancel: %w", ErrPermissionDenied)))
	require.True(t, IsUserFacing(Invalid(InvalidTarget, "no")))
	require.False(t, IsUserFacing(errors.New("internal")))
	require.False(t, IsUserFacing(nil))
}
