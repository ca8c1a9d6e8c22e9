package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/tunedeck/internal/services"
	"github.com/desertthunder/tunedeck/internal/shared"
	"github.com/urfave/cli/v3"
)

func apiPath(cmd *cli.Command) (string, error) {
	path := strings.TrimSpace(cmd.StringArg("path"))
	if path == "" {
		return "", fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}
	return path, nil
}

// APIGet makes a direct GET request to the backend, attaching the stored token when present.
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	path, err := apiPath(cmd)
	if err != nil {
		return err
	}
	if err := r.setup(ctx); err != nil {
		return err
	}

	r.logger.Info("GET request", "path", path)
	resp, err := r.client.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	return r.writeAPIResponse(resp, cmd.Bool("pretty"))
}

// APIPatch sends a JSON body with PATCH. Cached playlist queries are dropped
// afterwards since the request may have changed them.
func (r *Runner) APIPatch(ctx context.Context, cmd *cli.Command) error {
	path, err := apiPath(cmd)
	if err != nil {
		return err
	}
	if err := r.setup(ctx); err != nil {
		return err
	}

	var body []byte
	if data := strings.TrimSpace(cmd.String("data")); data != "" {
		body = []byte(data)
	}

	r.logger.Info("PATCH request", "path", path)
	resp, err := r.client.Patch(ctx, path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	r.cache.Reset()
	return r.writeAPIResponse(resp, cmd.Bool("pretty"))
}

func (r *Runner) writeAPIResponse(resp *services.APIResponse, pretty bool) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d, body: %s", shared.ErrAPIRequest, resp.StatusCode, string(resp.Body))
	}

	if resp.IsJSON {
		return r.writeJSON(resp.JSONData, pretty)
	}

	if err := r.writeBytes(resp.Body); err != nil {
		return err
	}
	return r.writePlain("\n")
}
