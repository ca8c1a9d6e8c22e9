package main

import (
	"context"
	"errors"
	"strings"

	"github.com/desertthunder/tunedeck/internal/server"
	"github.com/desertthunder/tunedeck/internal/shared"
	"github.com/urfave/cli/v3"
)

// Login runs the browser login: a local callback listener receives the token
// once the backend finishes the provider's OAuth flow.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	if err := r.setup(ctx); err != nil {
		return err
	}

	if token := strings.TrimSpace(cmd.String("token")); token != "" {
		return r.storeToken(ctx, token)
	}

	state, err := shared.GenerateState()
	if err != nil {
		return err
	}

	srv := server.NewCallbackServer(r.config.Callback.Addr(), state, r.logger)
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Shutdown()

	loginURL, err := r.client.LoginURL(ctx, srv.CallbackURL(), state)
	if err != nil {
		return r.describeError(err)
	}

	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL to log in:\n%s\n", loginURL)
	} else {
		r.writePlain("Opening browser for login...\n")
		if err := shared.OpenBrowser(loginURL); err != nil {
			r.logger.Warn("failed to open browser", "error", err)
			r.writePlain("Open this URL manually:\n%s\n", loginURL)
		}
	}

	token, err := srv.Wait(ctx, cmd.Duration("timeout"))
	if err != nil {
		return err
	}

	return r.storeToken(ctx, token)
}

func (r *Runner) storeToken(ctx context.Context, token string) error {
	if err := r.store.SetToken(ctx, token); err != nil {
		return err
	}

	user, err := r.queries.ValidateSession(ctx)
	if err != nil {
		return r.describeError(err)
	}

	r.logger.Info("logged in", "user_id", user.ID)
	return r.writePlain("✓ Logged in as %s\n", userLabel(user.Username, user.DisplayName, user.ID))
}

// Logout clears the stored token.
func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	if err := r.setup(ctx); err != nil {
		return err
	}

	if _, ok := r.store.Current(); !ok {
		return r.writePlain("Not logged in\n")
	}

	if err := r.store.Clear(ctx); err != nil {
		return err
	}
	r.cache.Reset()
	return r.writePlain("✓ Logged out\n")
}

// Status validates the stored token against the backend. A rejected token is cleared.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	if err := r.setup(ctx); err != nil {
		return err
	}

	user, err := r.queries.ValidateSession(ctx)
	switch {
	case errors.Is(err, shared.ErrNotAuthenticated):
		return r.writePlain("✗ Not logged in\n")
	case errors.Is(err, shared.ErrInvalidToken):
		return r.writePlain("✗ Session expired, the stored token was cleared\n")
	case err != nil:
		return r.describeError(err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(user, true)
	}

	r.writePlain("✓ Logged in as %s\n", userLabel(user.Username, user.DisplayName, user.ID))
	if user.Email != "" {
		r.writePlain("Email: %s\n", user.Email)
	}
	return r.writePlain("Server: %s\n", r.client.BaseURL())
}

func userLabel(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return "unknown user"
}
