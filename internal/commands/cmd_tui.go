package commands

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/kestreldev/kestrel/internal/core/config"
	"github.com/kestreldev/kestrel/internal/core/eventbus"
	"github.com/kestreldev/kestrel/internal/core/logging"
	"github.com/kestreldev/kestrel/internal/core/scheduler"
	"github.com/kestreldev/kestrel/internal/core/search"
	"github.com/kestreldev/kestrel/internal/core/store"
	"github.com/kestreldev/kestrel/internal/tui"
)

type TuiCmd struct {
	flags *Flags
}

// NewTuiCmd creates a new tui command.
func NewTuiCmd(flags *Flags) *TuiCmd {
	return &TuiCmd{flags: flags}
}

// Run executes the TUI. Exported for use as the default command.
func (cmd *TuiCmd) Run(ctx context.Context, _ *cli.Command) error {
	client, err := newClient(cmd.flags)
	if err != nil {
		return err
	}

	me, err := client.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("verify credentials: %w", err)
	}

	ws, err := selectWorkspace(ctx, client, cmd.flags)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := cmd.flags.Config

	bus := eventbus.New()
	eventbus.RegisterDebugLogger(bus, logging.Component("eventbus"))
	bus.Start(runCtx)

	st := store.New(store.Options{
		TTL:        cfg.TTL.ByKind(),
		MaxEntries: cfg.Cache.MaxEntries,
		Bus:        bus,
	})
	st.Put(ws, ws.FetchedAt)
	st.Put(me, me.FetchedAt)

	sched := scheduler.New(scheduler.Options{
		Client:         client,
		Store:          st,
		Bus:            bus,
		MaxConcurrent:  cfg.MaxConcurrentJobs,
		RetryAttempts:  cfg.RetryAttempts,
		BackoffBase:    cfg.RetryBackoffBase,
		RequestTimeout: cfg.RequestTimeout,
	})
	go sched.Run(runCtx) //nolint:errcheck

	idx := search.New()
	go idx.Watch(runCtx, st)

	// Live config reload: a token change revives a suspended scheduler,
	// everything else applies on next start.
	err = config.Watch(runCtx, cmd.flags.ConfigPath, func(next config.Config) {
		if next.APIToken != "" && next.APIToken != cmd.flags.Config.APIToken {
			client.SetToken(next.APIToken)
			sched.Resume()
		}
		cmd.flags.Config = next
		bus.PublishConfigReloaded(eventbus.ConfigReloadedPayload{})
	})
	if err != nil {
		log.Warn().Err(err).Msg("config watcher unavailable")
	}

	model := tui.New(tui.Options{
		Store:         st,
		Scheduler:     sched,
		Index:         idx,
		Bus:           bus,
		WorkspaceGID:  ws.Gid,
		WorkspaceName: ws.Name,
		UserGID:       me.Gid,
	})
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
