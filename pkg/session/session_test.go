package session

import (
	"testing"
	"time"

	"reviewhub/pkg/authz"
	"reviewhub/pkg/errutil"

	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	m, err := newManager("secret", "reviewhub", time.Hour, func() time.Time { return now })
	require.NoError(t, err)

	token, expiry, err := m.Issue(authz.Principal{UserID: "42", Role: authz.RoleReviewer})
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Hour), expiry)

	p, err := m.Parse(token)
	require.NoError(t, err)
	require.Equal(t, authz.Principal{UserID: "42", Role: authz.RoleReviewer}, p)
}

func TestParseRejectsExpired(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	m, err := newManager("secret", "reviewhub", time.Minute, func() time.Time { return now })
	require.NoError(t, err)

	token, _, err := m.Issue(authz.Principal{UserID: "42", Role: authz.RoleAdmin})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = m.Parse(token)
	require.Equal(t, errutil.StatusUnauthorized, errutil.Code(err))
}

func TestParseRejectsForeignKey(t *testing.T) {
	clock := func() time.Time { return time.Now() }
	a, err := newManager("secret-a", "reviewhub", time.Hour, clock)
	require.NoError(t, err)
	b, err := newManager("secret-b", "reviewhub", time.Hour, clock)
	require.NoError(t, err)

	token, _, err := a.Issue(authz.Principal{UserID: "1", Role: authz.RoleAdmin})
	require.NoError(t, err)

	_, err = b.Parse(token)
	require.Equal(t, errutil.StatusUnauthorized, errutil.Code(err))

	_, err = b.Parse("not-a-token")
	require.Equal(t, errutil.StatusUnauthorized, errutil.Code(err))
}
