package identity

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"reviewhub/pkg/authz"
	"reviewhub/pkg/config"
	"reviewhub/pkg/errutil"
	"reviewhub/pkg/session"
	"reviewhub/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeStore struct {
	uploads map[string][]byte
	err     error
}

func (f *fakeStore) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	b, _ := io.ReadAll(r)
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[key] = b
	return "docs/" + key, nil
}

func newTestService(t *testing.T, store *fakeStore) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &User{}, &Business{}, &Reviewer{})
	a, err := authz.New()
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Session.Secret = "test-secret"
	cfg.Session.Name = "reviewhub"
	cfg.Session.TTL = time.Hour
	sm, err := session.NewManager(cfg)
	require.NoError(t, err)

	p := ServiceParams{DB: db, Node: testutil.NewNode(t), Authz: a, Session: sm}
	if store != nil {
		p.Store = store
	}
	svc := NewService(p)
	svc.cost = bcrypt.MinCost
	return svc
}

func as(id string, role authz.Role) context.Context {
	return authz.WithPrincipal(context.Background(), authz.Principal{UserID: id, Role: role})
}

func TestSignUpCreatesRoleProfile(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	reviewer, err := svc.SignUp(ctx, SignUpRequest{Email: " Rev@Example.com ", Password: "password1", Role: "reviewer", Bio: "hi"})
	require.NoError(t, err)
	require.Equal(t, "rev@example.com", reviewer.Email)
	require.NotEqual(t, "password1", reviewer.PasswordHash)

	profile, err := svc.GetProfile(ctx, reviewer.ID)
	require.NoError(t, err)
	require.NotNil(t, profile.Reviewer)
	require.Equal(t, "hi", profile.Reviewer.Bio)
	require.Nil(t, profile.Business)

	business, err := svc.SignUp(ctx, SignUpRequest{Email: "biz@example.com", Password: "password1", Role: "business", CompanyName: "Acme"})
	require.NoError(t, err)
	profile, err = svc.GetProfile(ctx, business.ID)
	require.NoError(t, err)
	require.Equal(t, "Acme", profile.Business.CompanyName)
}

func TestSignUpValidation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, SignUpRequest{Email: "a@x.com", Password: "password1", Role: "admin"})
	require.Equal(t, errutil.StatusValidationFailed, errutil.Code(err))

	_, err = svc.SignUp(ctx, SignUpRequest{Email: "a@x.com", Password: "short", Role: "reviewer"})
	require.Equal(t, errutil.StatusValidationFailed, errutil.Code(err))

	_, err = svc.SignUp(ctx, SignUpRequest{Email: "a@x.com", Password: "password1", Role: "business"})
	require.Equal(t, errutil.StatusValidationFailed, errutil.Code(err))

	_, err = svc.SignUp(ctx, SignUpRequest{Email: "a@x.com", Password: "password1", Role: "reviewer"})
	require.NoError(t, err)
	_, err = svc.SignUp(ctx, SignUpRequest{Email: "A@X.com", Password: "password1", Role: "reviewer"})
	require.Equal(t, errutil.StatusConflict, errutil.Code(err))
}

func TestSignInIssuesSession(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	user, err := svc.SignUp(ctx, SignUpRequest{Email: "u@x.com", Password: "password1", Role: "reviewer"})
	require.NoError(t, err)

	resp, err := svc.SignIn(ctx, SignInRequest{Email: "U@x.com", Password: "password1"})
	require.NoError(t, err)
	require.Equal(t, user.ID, resp.User.ID)

	p, err := svc.session.Parse(resp.Token)
	require.NoError(t, err)
	require.Equal(t, authz.Principal{UserID: user.ID, Role: authz.RoleReviewer}, p)

	_, err = svc.SignIn(ctx, SignInRequest{Email: "u@x.com", Password: "wrong-pass"})
	require.Equal(t, errutil.StatusUnauthorized, errutil.Code(err))

	_, err = svc.SignIn(ctx, SignInRequest{Email: "nobody@x.com", Password: "password1"})
	require.Equal(t, errutil.StatusUnauthorized, errutil.Code(err))
}

func TestMeRequiresPrincipal(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.Me(context.Background())
	require.Equal(t, errutil.StatusUnauthorized, errutil.Code(err))

	user, err := svc.SignUp(context.Background(), SignUpRequest{Email: "u@x.com", Password: "password1", Role: "reviewer"})
	require.NoError(t, err)

	profile, err := svc.Me(as(user.ID, authz.RoleReviewer))
	require.NoError(t, err)
	require.Equal(t, user.ID, profile.User.ID)
}

func TestSetVerified(t *testing.T) {
	svc := newTestService(t, nil)
	user, err := svc.SignUp(context.Background(), SignUpRequest{Email: "biz@x.com", Password: "password1", Role: "business", CompanyName: "Acme"})
	require.NoError(t, err)

	_, err = svc.SetVerified(as(user.ID, authz.RoleBusiness), user.ID, true)
	require.Equal(t, errutil.StatusForbidden, errutil.Code(err))

	updated, err := svc.SetVerified(as("admin", authz.RoleAdmin), user.ID, true)
	require.NoError(t, err)
	require.True(t, updated.IsVerified)

	updated, err = svc.SetVerified(as("admin", authz.RoleAdmin), user.ID, false)
	require.NoError(t, err)
	require.False(t, updated.IsVerified)

	_, err = svc.SetVerified(as("admin", authz.RoleAdmin), "missing", true)
	require.Equal(t, errutil.StatusNotFound, errutil.Code(err))
}

func TestUploadVerificationDocument(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(t, store)
	user, err := svc.SignUp(context.Background(), SignUpRequest{Email: "biz@x.com", Password: "password1", Role: "business", CompanyName: "Acme"})
	require.NoError(t, err)
	ctx := as(user.ID, authz.RoleBusiness)

	b, err := svc.UploadVerificationDocument(ctx, "Trade License.PDF", bytes.NewBufferString("pdf"), 3, "application/pdf")
	require.NoError(t, err)
	require.Len(t, b.VerificationDocuments, 1)
	require.True(t, strings.HasPrefix(b.VerificationDocuments[0], "docs/verification/"+user.ID+"/"))
	require.True(t, strings.HasSuffix(b.VerificationDocuments[0], "-trade-license.pdf"))

	b, err = svc.UploadVerificationDocument(ctx, "tax.png", bytes.NewBufferString("png"), 3, "image/png")
	require.NoError(t, err)
	require.Len(t, b.VerificationDocuments, 2)
	require.Len(t, store.uploads, 2)

	_, err = svc.UploadVerificationDocument(as("r1", authz.RoleReviewer), "x.pdf", bytes.NewBufferString("x"), 1, "")
	require.Equal(t, errutil.StatusForbidden, errutil.Code(err))

	store.err = errors.New("minio down")
	_, err = svc.UploadVerificationDocument(ctx, "x.pdf", bytes.NewBufferString("x"), 1, "")
	require.Equal(t, errutil.StatusBadGateway, errutil.Code(err))
}

func TestSeedFirstAdminIsIdempotent(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.SeedFirstAdmin(ctx, "", ""))
	require.NoError(t, svc.SeedFirstAdmin(ctx, "root@x.com", "password1"))
	require.NoError(t, svc.SeedFirstAdmin(ctx, "other@x.com", "password1"))

	n, err := svc.user.Count(ctx, &User{Role: authz.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	resp, err := svc.SignIn(ctx, SignInRequest{Email: "root@x.com", Password: "password1"})
	require.NoError(t, err)
	require.Equal(t, authz.RoleAdmin, resp.User.Role)
	require.True(t, resp.User.IsVerified)
}
