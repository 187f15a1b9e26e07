package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/geocapsule/internal/client/client"
	"github.com/dmitrijs2005/geocapsule/internal/client/services"
	"github.com/dmitrijs2005/geocapsule/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword
var getMultiline = GetMultiline

func (a *App) ask(prompt string) (string, error) {
	return getSimpleText(a.reader, prompt, a.out)
}

// argOr returns args[i] when present and prompts otherwise.
func (a *App) argOr(args []string, i int, prompt string) (string, error) {
	if i < len(args) {
		return args[i], nil
	}
	return a.ask(prompt)
}

func (a *App) credentials() (string, []byte, error) {
	login, err := a.ask("Enter email")
	if err != nil {
		return "", nil, err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return "", nil, err
	}
	return login, password, nil
}

// Register prompts the user for an email and password, creates the
// account and signs in.
//
// The password byte slice is wiped before returning.
func (a *App) Register(ctx context.Context, _ []string) error {
	login, password, err := a.credentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	s, err := a.authService.Register(ctx, login, password)
	if err != nil {
		return err
	}

	a.startSession(ctx, s, ModeOnline)
	fmt.Fprintln(a.out, "Success!")
	return nil
}

// Login prompts the user for credentials and tries to authenticate.
//
// The method first attempts an online login. If the server is unavailable
// (errors.Is(err, client.ErrUnavailable)), it falls back to offline login.
// Connectivity Mode ends up as:
//   - ModeOnline if online login succeeds,
//   - ModeOffline if offline login succeeds,
//   - ModeDisabled if both fail.
func (a *App) Login(ctx context.Context, _ []string) error {
	login, password, err := a.credentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	s, err := a.authService.OnlineLogin(ctx, login, password)
	if err == nil {
		a.log.Info(ctx, "Login successful")
		a.startSession(ctx, s, ModeOnline)
		return nil
	}
	if !errors.Is(err, client.ErrUnavailable) {
		return err
	}

	a.log.Info(ctx, "Server unavailable, trying offline login...")
	s, err = a.authService.OfflineLogin(ctx, login, password)
	if err != nil {
		a.setMode(ModeDisabled)
		if errors.Is(err, services.ErrNoOfflineData) {
			return fmt.Errorf("server unavailable and this device has no saved sign-in: %w", err)
		}
		return err
	}
	a.log.Info(ctx, "Offline login successful")
	a.startSession(ctx, s, ModeOffline)
	return nil
}

// Logout forgets tokens and offline sign-in data. Notes stay in the local
// store.
func (a *App) Logout(ctx context.Context, _ []string) error {
	if err := a.authService.Logout(ctx); err != nil {
		return err
	}
	a.endSession()
	return nil
}
