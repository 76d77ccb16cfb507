// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package account_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/accounts-service/internal/models"
	"codeberg.org/oliverandrich/accounts-service/internal/repository"
	"codeberg.org/oliverandrich/accounts-service/internal/services/account"
	"codeberg.org/oliverandrich/accounts-service/internal/services/avatar"
	"codeberg.org/oliverandrich/accounts-service/internal/services/token"
	"codeberg.org/oliverandrich/accounts-service/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	to    string
	token string
}

// mockMailer records verification mail instead of talking to a relay.
type mockMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *mockMailer) SendVerification(_ context.Context, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, token: token})
	return nil
}

func (m *mockMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

func testJPEG(t *testing.T, width, height int) *bytes.Buffer {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(y % 256), B: uint8(x % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return &buf
}

func newTestService(t *testing.T) (*account.Service, *repository.Repository, *mockMailer) {
	t.Helper()

	_, repo := testutil.NewTestDB(t)

	issuer, err := token.NewIssuer("test-secret", 23*time.Hour)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(testJPEG(t, 128, 128).Bytes())
	}))
	t.Cleanup(srv.Close)

	store, err := avatar.NewStore(t.TempDir(), srv.URL)
	require.NoError(t, err)

	mailer := &mockMailer{}
	return account.NewService(repo, issuer, mailer, store), repo, mailer
}

func TestRegister(t *testing.T) {
	svc, repo, mailer := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, account.RegisterParams{
		Email:    "mail@example.com",
		Password: "correct-horse",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, models.SubscriptionStarter, user.Subscription)
	assert.False(t, user.Verified)
	assert.NotEmpty(t, user.VerificationToken)
	assert.Contains(t, user.AvatarURL, "gravatar.com")

	stored, err := repo.GetUserByEmail(ctx, "mail@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "correct-horse", stored.PasswordHash)

	// The verification email is sent in the background with the stored token.
	assert.Eventually(t, func() bool { return mailer.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, sentMail{to: "mail@example.com", token: stored.VerificationToken}, mailer.last())
}

func TestRegister_EmailInUse(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, account.RegisterParams{Email: "mail@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, account.RegisterParams{Email: "mail@example.com", Password: "other-pass"})

	assert.ErrorIs(t, err, account.ErrEmailInUse)
}

func TestRegister_InvalidEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), account.RegisterParams{Email: "not-an-email", Password: "correct-horse"})

	assert.ErrorIs(t, err, account.ErrInvalidEmail)
}

func TestRegister_WeakPassword(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), account.RegisterParams{Email: "mail@example.com", Password: "short"})

	assert.ErrorIs(t, err, account.ErrWeakPassword)
}

func TestRegister_PasswordTooLong(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), account.RegisterParams{
		Email:    "mail@example.com",
		Password: strings.Repeat("x", 73),
	})

	assert.ErrorIs(t, err, account.ErrPasswordTooLong)
}

func TestRegister_InvalidSubscription(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), account.RegisterParams{
		Email:        "mail@example.com",
		Password:     "correct-horse",
		Subscription: "platinum",
	})

	assert.ErrorIs(t, err, account.ErrInvalidSubscription)
}

func TestRegister_MailFailureDoesNotRollBack(t *testing.T) {
	svc, repo, mailer := newTestService(t)
	mailer.err = errors.New("relay unreachable")
	ctx := context.Background()

	_, err := svc.Register(ctx, account.RegisterParams{Email: "mail@example.com", Password: "correct-horse"})

	require.NoError(t, err)
	_, err = repo.GetUserByEmail(ctx, "mail@example.com")
	assert.NoError(t, err, "account must exist despite mail failure")
}

func TestVerify(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, account.RegisterParams{Email: "mail@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	verified, err := svc.Verify(ctx, user.VerificationToken)

	require.NoError(t, err)
	assert.True(t, verified.Verified)
	assert.Empty(t, verified.VerificationToken)

	stored, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified)
	assert.Empty(t, stored.VerificationToken)
}

func TestVerify_TokenIsSingleUse(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, account.RegisterParams{Email: "mail@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	_, err = svc.Verify(ctx, user.VerificationToken)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, user.VerificationToken)

	assert.ErrorIs(t, err, account.ErrTokenNotFound)
}

func TestVerify_UnknownToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Verify(context.Background(), "no-such-token")

	assert.ErrorIs(t, err, account.ErrTokenNotFound)
}

func TestResendVerification_ReusesExistingToken(t *testing.T) {
	svc, _, mailer := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, account.RegisterParams{Email: "mail@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return mailer.count() == 1 }, time.Second, 10*time.Millisecond)

	err = svc.ResendVerification(ctx, "mail@example.com")

	require.NoError(t, err)
	assert.Equal(t, 2, mailer.count())
	assert.Equal(t, user.VerificationToken, mailer.last().token)
}

func TestResendVerification_AccountNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.ResendVerification(context.Background(), "unknown@example.com")

	assert.ErrorIs(t, err, account.ErrAccountNotFound)
}

func TestResendVerification_AlreadyVerified(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, account.RegisterParams{Email: "mail@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	_, err = svc.Verify(ctx, user.VerificationToken)
	require.NoError(t, err)

	err = svc.ResendVerification(ctx, "mail@example.com")

	assert.ErrorIs(t, err, account.ErrAlreadyVerified)
}

func TestResendVerification_RelayFailureSurfaces(t *testing.T) {
	svc, _, mailer := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, account.RegisterParams{Email: "mail@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	mailer.err = errors.New("relay unreachable")
	err = svc.ResendVerification(ctx, "mail@example.com")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay unreachable")
}

func registerVerified(t *testing.T, svc *account.Service, email string) *models.User {
	t.Helper()
	ctx := context.Background()
	user, err := svc.Register(ctx, account.RegisterParams{Email: email, Password: "correct-horse"})
	require.NoError(t, err)
	verified, err := svc.Verify(ctx, user.VerificationToken)
	require.NoError(t, err)
	return verified
}

func TestLogin(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	user := registerVerified(t, svc, "mail@example.com")

	result, err := svc.Login(ctx, "mail@example.com", "correct-horse")

	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, user.ID, result.User.ID)

	stored, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Token, stored.SessionToken)
}

func TestLogin_OverwritesPreviousSession(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	user := registerVerified(t, svc, "mail@example.com")

	first, err := svc.Login(ctx, "mail@example.com", "correct-horse")
	require.NoError(t, err)
	second, err := svc.Login(ctx, "mail@example.com", "correct-horse")
	require.NoError(t, err)

	stored, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, second.Token, stored.SessionToken)
	assert.NotEqual(t, first.Token, stored.SessionToken)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, _, _ := newTestService(t)

	registerVerified(t, svc, "mail@example.com")

	_, err := svc.Login(context.Background(), "mail@example.com", "wrong-pass")

	assert.ErrorIs(t, err, account.ErrInvalidCredentials)
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Login(context.Background(), "unknown@example.com", "correct-horse")

	assert.ErrorIs(t, err, account.ErrInvalidCredentials)
}

func TestLogin_UnverifiedIsDistinctError(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, account.RegisterParams{Email: "mail@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "mail@example.com", "correct-horse")

	assert.ErrorIs(t, err, account.ErrEmailNotVerified)
	assert.NotErrorIs(t, err, account.ErrInvalidCredentials)
}

func TestLogout(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	user := registerVerified(t, svc, "mail@example.com")
	_, err := svc.Login(ctx, "mail@example.com", "correct-horse")
	require.NoError(t, err)

	err = svc.Logout(ctx, user.ID)

	require.NoError(t, err)
	stored, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.SessionToken)
}

func TestChangeSubscription(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	user := registerVerified(t, svc, "mail@example.com")

	err := svc.ChangeSubscription(ctx, user.ID, models.SubscriptionBusiness)

	require.NoError(t, err)
	stored, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionBusiness, stored.Subscription)
}

func TestChangeSubscription_Missing(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	user := registerVerified(t, svc, "mail@example.com")

	err := svc.ChangeSubscription(ctx, user.ID, "")

	assert.ErrorIs(t, err, account.ErrMissingSubscription)

	stored, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStarter, stored.Subscription, "tier must be unchanged")
}

func TestChangeSubscription_Invalid(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user := registerVerified(t, svc, "mail@example.com")

	err := svc.ChangeSubscription(ctx, user.ID, "platinum")

	assert.ErrorIs(t, err, account.ErrInvalidSubscription)
}

func TestChangeAvatar_Upload(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	user := registerVerified(t, svc, "mail@example.com")

	url, err := svc.ChangeAvatar(ctx, user.ID, &account.Upload{
		Name: "holiday.jpg",
		Data: testJPEG(t, 640, 480),
	})

	require.NoError(t, err)
	assert.Equal(t, "/avatars/"+user.ID+"_holiday.jpg", url)

	stored, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, url, stored.AvatarURL)
}

func TestChangeAvatar_Default(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	user := registerVerified(t, svc, "mail@example.com")

	url, err := svc.ChangeAvatar(ctx, user.ID, nil)

	require.NoError(t, err)
	assert.Equal(t, "/avatars/"+user.ID+"_default_avatar.jpg", url)

	stored, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, url, stored.AvatarURL)
}

func TestChangeAvatar_FailureLeavesRecordUnchanged(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	user := registerVerified(t, svc, "mail@example.com")
	before, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)

	_, err = svc.ChangeAvatar(ctx, user.ID, &account.Upload{
		Name: "broken.jpg",
		Data: strings.NewReader("not an image"),
	})

	require.Error(t, err)
	after, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, before.AvatarURL, after.AvatarURL)
}
