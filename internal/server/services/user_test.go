package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/clock"
	"github.com/dmitrijs2005/geocapsule/internal/common"
	"github.com/dmitrijs2005/geocapsule/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserService(t *testing.T) (*UserService, *fakeRepoManager, *clock.FakeClock) {
	t.Helper()
	db, mock := newTxDB(t)
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 4; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}

	m := newFakeRepoManager()
	clk := clock.Fake(time.Now().UTC())
	cfg := &config.Config{
		SecretKey:                    "k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
	}
	return NewUserService(db, m, clk, cfg), m, clk
}

func TestUserService_RegisterAndLogin(t *testing.T) {
	s, m, _ := newUserService(t)
	ctx := context.Background()

	pair, err := s.Register(ctx, " alice@example.com ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "user-alice@example.com", pair.UserID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Len(t, pair.RefreshToken, 64)

	u := m.users.byLogin["alice@example.com"]
	require.NotNil(t, u)
	assert.NotContains(t, u.PasswordHash, "correct horse")
	assert.Contains(t, m.refresh.tokens, hashToken(pair.RefreshToken), "only the digest is stored")

	uid, err := s.UserIDFromAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, pair.UserID, uid)

	pair, err = s.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "user-alice@example.com", pair.UserID)

	_, err = s.Login(ctx, "alice@example.com", "wrong password")
	assert.ErrorIs(t, err, common.ErrorInvalidLoginPassword)
	_, err = s.Login(ctx, "bob@example.com", "correct horse")
	assert.ErrorIs(t, err, common.ErrorInvalidLoginPassword)
}

func TestUserService_RegisterErrors(t *testing.T) {
	s, _, _ := newUserService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, "", "correct horse")
	assert.ErrorIs(t, err, common.ErrorValidation)
	_, err = s.Register(ctx, "alice@example.com", "short")
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = s.Register(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	_, err = s.Register(ctx, "alice@example.com", "correct horse")
	assert.ErrorIs(t, err, common.ErrorLoginAlreadyExists)
}

func TestUserService_LoginRepoError(t *testing.T) {
	s, m, _ := newUserService(t)
	m.users.getErr = errors.New("db down")

	_, err := s.Login(context.Background(), "alice@example.com", "x")
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestUserService_RefreshRotates(t *testing.T) {
	s, _, _ := newUserService(t)
	ctx := context.Background()

	first, err := s.Register(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)

	second, err := s.RefreshToken(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, first.UserID, second.UserID)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = s.RefreshToken(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshTokenExpired, "a refresh token works once")
}

func TestUserService_RefreshExpired(t *testing.T) {
	s, _, clk := newUserService(t)
	ctx := context.Background()

	first, err := s.Register(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	clk.Advance(3 * time.Hour)

	_, err = s.RefreshToken(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshTokenExpired)
}

func TestUserService_PurgeExpiredTokens(t *testing.T) {
	s, m, clk := newUserService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	clk.Advance(time.Hour)
	_, err = s.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)

	clk.Advance(90 * time.Minute)
	n, err := s.PurgeExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, m.refresh.tokens, 1)
}
