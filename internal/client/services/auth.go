// Package services contains the application services behind the CLI.
// This file holds authentication: online sign-in with an offline fallback,
// registration, token persistence and the liveness probe.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/geocapsule/internal/api"
	"github.com/dmitrijs2005/geocapsule/internal/client/client"
	"github.com/dmitrijs2005/geocapsule/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/geocapsule/internal/cryptox"
	"github.com/dmitrijs2005/geocapsule/internal/dbx"
	"github.com/dmitrijs2005/geocapsule/internal/logging"
)

// ErrNoOfflineData is returned by OfflineLogin when this device has never
// completed an online sign-in.
var ErrNoOfflineData = errors.New("no offline sign-in data on this device")

// Session identifies the signed-in user.
type Session struct {
	UserID  string
	Login   string
	Offline bool
}

// Resumer is told when a fresh credential is available. The sync engine
// implements it.
type Resumer interface {
	Resume()
}

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - OnlineLogin: authenticate against the server and persist tokens and
//     the offline verifier.
//   - OfflineLogin: verify the password against the cached verifier and
//     reuse the stored tokens.
//   - Restore: pick up the session saved by an earlier run, if any.
//   - Logout: forget tokens and offline data.
type AuthService interface {
	Register(ctx context.Context, login string, password []byte) (*Session, error)
	OnlineLogin(ctx context.Context, login string, password []byte) (*Session, error)
	OfflineLogin(ctx context.Context, login string, password []byte) (*Session, error)
	Restore(ctx context.Context) (*Session, error)
	Logout(ctx context.Context) error
	Ping(ctx context.Context) error
}

type authService struct {
	accounts client.Accounts
	pinger   client.Pinger
	db       *sql.DB
	resumer  Resumer
	log      logging.Logger
}

// NewAuthService binds the service to the backend and the local database.
// Tokens obtained by silent refreshes are persisted as they arrive. r may
// be nil.
func NewAuthService(accounts client.Accounts, pinger client.Pinger, db *sql.DB, r Resumer, log logging.Logger) AuthService {
	a := &authService{accounts: accounts, pinger: pinger, db: db, resumer: r, log: log}
	accounts.OnTokens(a.persistRefreshed)
	return a
}

// sessionKeys are the metadata entries owned by the signed-in session.
var sessionKeys = []string{
	metadata.KeyUserID, metadata.KeyLogin, metadata.KeyAccessToken,
	metadata.KeyRefreshToken, metadata.KeySalt, metadata.KeyVerifier,
}

func (a *authService) metadataRepo() *metadata.SQLiteRepository {
	return metadata.NewSQLiteRepository(a.db)
}

func (a *authService) resume() {
	if a.resumer != nil {
		a.resumer.Resume()
	}
}

func (a *authService) Register(ctx context.Context, login string, password []byte) (*Session, error) {
	t, err := a.accounts.Register(ctx, login, string(password))
	if err != nil {
		return nil, err
	}
	return a.signedIn(ctx, login, password, t)
}

func (a *authService) OnlineLogin(ctx context.Context, login string, password []byte) (*Session, error) {
	t, err := a.accounts.Login(ctx, login, string(password))
	if err != nil {
		return nil, fmt.Errorf("login error: %w", err)
	}
	return a.signedIn(ctx, login, password, t)
}

func (a *authService) signedIn(ctx context.Context, login string, password []byte, t *api.TokenResponse) (*Session, error) {
	salt, err := cryptox.RandomBytes(16)
	if err != nil {
		return nil, err
	}
	verifier := cryptox.DeriveKey(password, salt)

	err = dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return a.metadataRepo().WithTx(tx).Store(ctx, map[string][]byte{
			metadata.KeyUserID:       []byte(t.UserID),
			metadata.KeyLogin:        []byte(login),
			metadata.KeyAccessToken:  []byte(t.AccessToken),
			metadata.KeyRefreshToken: []byte(t.RefreshToken),
			metadata.KeySalt:         salt,
			metadata.KeyVerifier:     verifier,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("offline data saving error: %w", err)
	}

	a.resume()
	return &Session{UserID: t.UserID, Login: login}, nil
}

func (a *authService) OfflineLogin(ctx context.Context, login string, password []byte) (*Session, error) {
	repo := a.metadataRepo()
	saved, err := repo.Load(ctx, sessionKeys...)
	if err != nil {
		return nil, err
	}

	salt, verifier := saved[metadata.KeySalt], saved[metadata.KeyVerifier]
	if salt == nil || verifier == nil {
		return nil, ErrNoOfflineData
	}
	if string(saved[metadata.KeyLogin]) != login {
		return nil, client.ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(cryptox.DeriveKey(password, salt), verifier) == 0 {
		return nil, client.ErrUnauthorized
	}

	a.accounts.SetTokens(string(saved[metadata.KeyAccessToken]), string(saved[metadata.KeyRefreshToken]))
	return &Session{UserID: string(saved[metadata.KeyUserID]), Login: login, Offline: true}, nil
}

// Restore loads the saved tokens into the client. It returns nil when no
// one has signed in on this device.
func (a *authService) Restore(ctx context.Context) (*Session, error) {
	saved, err := a.metadataRepo().Load(ctx, sessionKeys...)
	if err != nil {
		return nil, err
	}
	userID := string(saved[metadata.KeyUserID])
	if userID == "" {
		return nil, nil
	}
	a.accounts.SetTokens(string(saved[metadata.KeyAccessToken]), string(saved[metadata.KeyRefreshToken]))
	return &Session{UserID: userID, Login: string(saved[metadata.KeyLogin])}, nil
}

func (a *authService) persistRefreshed(ctx context.Context, t *api.TokenResponse) {
	err := a.metadataRepo().Store(ctx, map[string][]byte{
		metadata.KeyAccessToken:  []byte(t.AccessToken),
		metadata.KeyRefreshToken: []byte(t.RefreshToken),
	})
	if err != nil {
		a.log.Warn(ctx, "failed to persist refreshed tokens", "error", err)
	}
}

// Logout wipes tokens and the offline verifier. Notes stay on the device.
func (a *authService) Logout(ctx context.Context) error {
	if err := a.metadataRepo().Forget(ctx, sessionKeys...); err != nil {
		return err
	}
	a.accounts.SetTokens("", "")
	return nil
}

func (a *authService) Ping(ctx context.Context) error {
	return a.pinger.Ping(ctx)
}
