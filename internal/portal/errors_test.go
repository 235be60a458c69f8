package portal

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	require.NoError(t, Classify(KindLogin, "login", nil))

	err := Classify(KindProbe, "probe", fmt.Errorf("wait for %q: %w", "logout", ErrElementNotFound))
	require.Equal(t, KindProbe, KindOf(err))
	require.ErrorIs(t, err, ErrElementNotFound)
	require.Equal(t, `probe: wait for "logout": element not found`, err.Error())

	dead := &Error{Kind: KindSession, Op: "navigate", Err: ErrSessionClosed}
	wrapped := Classify(KindLogin, "login", fmt.Errorf("fill username: %w", dead))
	require.True(t, IsSessionError(wrapped), "session failures keep their kind")
	require.ErrorIs(t, wrapped, ErrSessionClosed)
}

func TestKindOf_Unknown(t *testing.T) {
	t.Parallel()

	require.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	require.Equal(t, KindUnknown, KindOf(nil))
	require.Equal(t, "unknown", KindUnknown.String())
	require.Equal(t, "session", KindSession.String())
}
