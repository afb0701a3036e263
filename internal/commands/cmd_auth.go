package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/kestreldev/kestrel/internal/api"
	"github.com/kestreldev/kestrel/internal/core/config"
)

type AuthCmd struct {
	flags *Flags
}

// NewAuthCmd creates the auth command.
func NewAuthCmd(flags *Flags) *AuthCmd {
	return &AuthCmd{flags: flags}
}

// Register adds the auth command to the application.
func (cmd *AuthCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "auth",
		Usage:     "Store and verify an Asana personal access token",
		UsageText: "kestrel auth",
		Description: `Prompts for a personal access token, verifies it against the API,
and stores it in the config file with owner-only permissions.

Create a token at https://app.asana.com/0/my-apps.`,
		Action: cmd.run,
	})
	return app
}

func (cmd *AuthCmd) run(ctx context.Context, _ *cli.Command) error {
	token, err := readToken()
	if err != nil {
		return err
	}

	// Verify before persisting; a typo'd token should fail here, not on
	// first sync.
	client := api.New(token)
	me, err := client.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return errors.New("token rejected by Asana: check it and try again")
		}
		return fmt.Errorf("verify token: %w", err)
	}
	fmt.Printf("Authenticated as %s (%s)\n", me.Name, me.Email)

	save := true
	confirm := huh.NewConfirm().
		Title(fmt.Sprintf("Save token to %s?", cmd.flags.ConfigPath)).
		Value(&save)
	if err := confirm.Run(); err != nil {
		return err
	}
	if !save {
		return nil
	}

	cmd.flags.Config.APIToken = token
	if err := config.Save(cmd.flags.ConfigPath, cmd.flags.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Println("Token saved.")
	return nil
}

// readToken reads the token without echoing when stdin is a terminal,
// and falls back to a plain line read for piped input.
func readToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		var token string
		if _, err := fmt.Scanln(&token); err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}
		return strings.TrimSpace(token), nil
	}

	fmt.Print("Personal access token: ")
	raw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", errors.New("empty token")
	}
	return token, nil
}
