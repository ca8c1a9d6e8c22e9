package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tunedeck/internal/listview"
	"github.com/desertthunder/tunedeck/internal/shared"
	"github.com/desertthunder/tunedeck/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI for playlist browsing.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(r.config.Log.File)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, shared.ParseLevel(r.config.Log.Level))
	r.SetLogger(fileLogger)

	if err := r.setup(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deps := ui.Deps{
		Queries: r.queries,
		List:    listview.New(r.config.List.PageSize),
		Logger:  r.logger,
	}

	engine := r.engine(nil)
	if !cmd.Bool("offline") {
		ch, done, err := r.connect(ctx)
		if err != nil {
			r.logger.Warn("live notifications unavailable", "error", err)
		} else {
			defer func() {
				ch.Close()
				<-done
			}()
			deps.Notices = ch
			engine = r.engine(ch)
		}
	}
	deps.Engine = engine

	model := ui.NewModel(ctx, deps)
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
