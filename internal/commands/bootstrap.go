package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/rs/zerolog/log"

	"github.com/kestreldev/kestrel/internal/api"
	"github.com/kestreldev/kestrel/internal/core/config"
	"github.com/kestreldev/kestrel/internal/core/entity"
)

var errNoToken = errors.New("no API token configured: run `kestrel auth`, set ASANA_TOKEN, or pass --token")

// newClient builds the API client from the resolved token.
func newClient(flags *Flags) (*api.Client, error) {
	token := flags.APIToken()
	if token == "" {
		return nil, errNoToken
	}
	return api.New(token, api.WithPageSize(flags.Config.PageSize)), nil
}

// selectWorkspace resolves which workspace to operate in. A configured
// or flagged workspace is matched by gid or name; otherwise a sole
// workspace is auto-selected, and multiple workspaces prompt a picker.
func selectWorkspace(ctx context.Context, client *api.Client, flags *Flags) (*entity.Workspace, error) {
	workspaces, err := fetchWorkspaces(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	if len(workspaces) == 0 {
		return nil, errors.New("account has no workspaces")
	}

	if want := flags.WorkspaceGID(); want != "" {
		for _, ws := range workspaces {
			if ws.Gid == want || ws.Name == want {
				return ws, nil
			}
		}
		return nil, fmt.Errorf("workspace %q not found", want)
	}

	if len(workspaces) == 1 {
		log.Debug().Str("workspace", workspaces[0].Name).Msg("auto-selected sole workspace")
		return workspaces[0], nil
	}

	return pickWorkspace(workspaces, flags)
}

func fetchWorkspaces(ctx context.Context, client *api.Client) ([]*entity.Workspace, error) {
	var out []*entity.Workspace
	pageToken := ""
	for {
		page, err := client.Fetch(ctx, api.Scope{Kind: entity.KindWorkspace}, pageToken)
		if err != nil {
			return nil, err
		}
		for _, e := range page.Entities {
			if ws, ok := e.(*entity.Workspace); ok {
				out = append(out, ws)
			}
		}
		if page.NextPage == "" {
			return out, nil
		}
		pageToken = page.NextPage
	}
}

func pickWorkspace(workspaces []*entity.Workspace, flags *Flags) (*entity.Workspace, error) {
	options := make([]huh.Option[string], 0, len(workspaces))
	for _, ws := range workspaces {
		options = append(options, huh.NewOption(ws.Name, ws.Gid))
	}

	var (
		picked      string
		saveDefault = true
	)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select a workspace").
				Options(options...).
				Value(&picked),
			huh.NewConfirm().
				Title("Save as default workspace?").
				Value(&saveDefault),
		),
	)
	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("select workspace: %w", err)
	}

	for _, ws := range workspaces {
		if ws.Gid != picked {
			continue
		}
		if saveDefault {
			flags.Config.DefaultWorkspace = ws.Gid
			if err := config.Save(flags.ConfigPath, flags.Config); err != nil {
				log.Warn().Err(err).Msg("failed to save default workspace")
			}
		}
		return ws, nil
	}
	return nil, fmt.Errorf("workspace %q not found", picked)
}
