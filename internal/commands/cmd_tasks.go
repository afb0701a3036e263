package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/kestreldev/kestrel/internal/api"
	"github.com/kestreldev/kestrel/internal/core/entity"
)

type TasksCmd struct {
	flags *Flags

	format        string
	showCompleted bool
}

// NewTasksCmd creates the tasks command group.
func NewTasksCmd(flags *Flags) *TasksCmd {
	return &TasksCmd{flags: flags}
}

// Register adds the tasks commands to the application.
func (cmd *TasksCmd) Register(app *cli.Command) *cli.Command {
	formatFlag := &cli.StringFlag{
		Name:        "format",
		Usage:       "output format (text, json)",
		Value:       "text",
		Destination: &cmd.format,
	}

	app.Commands = append(app.Commands, &cli.Command{
		Name:  "tasks",
		Usage: "Inspect tasks without opening the TUI",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List your tasks in the workspace",
				UsageText: "kestrel tasks list [options]",
				Flags: []cli.Flag{
					formatFlag,
					&cli.BoolFlag{
						Name:        "completed",
						Usage:       "include completed tasks",
						Destination: &cmd.showCompleted,
					},
				},
				Action: cmd.runList,
			},
			{
				Name:      "get",
				Usage:     "Show one task by gid",
				UsageText: "kestrel tasks get <gid>",
				Flags:     []cli.Flag{formatFlag},
				Action:    cmd.runGet,
			},
			{
				Name:      "stories",
				Usage:     "Show a task's comments",
				UsageText: "kestrel tasks stories <gid>",
				Flags:     []cli.Flag{formatFlag},
				Action:    cmd.runStories,
			},
		},
	})
	return app
}

func (cmd *TasksCmd) runList(ctx context.Context, _ *cli.Command) error {
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

	scope := api.Scope{
		Kind:             entity.KindTask,
		WorkspaceGID:     ws.Gid,
		AssigneeGID:      me.Gid,
		IncludeCompleted: cmd.showCompleted,
	}
	entities, err := fetchAllPages(ctx, client, scope)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if cmd.format == "json" {
		return printJSON(entities)
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GID\tDONE\tDUE\tNAME")
	for _, e := range entities {
		t, ok := e.(*entity.Task)
		if !ok {
			continue
		}
		done := " "
		if t.Completed {
			done = "x"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Gid, done, t.DueDisplay(now), t.Name)
	}
	return w.Flush()
}

func (cmd *TasksCmd) runGet(ctx context.Context, c *cli.Command) error {
	gid := c.Args().First()
	if gid == "" {
		return fmt.Errorf("usage: %s", c.UsageText)
	}

	client, err := newClient(cmd.flags)
	if err != nil {
		return err
	}

	page, err := client.Fetch(ctx, api.Scope{Kind: entity.KindTask, GID: gid}, "")
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if len(page.Entities) == 0 {
		return fmt.Errorf("task %s not found", gid)
	}
	task := page.Entities[0].(*entity.Task)

	if cmd.format == "json" {
		return printJSON(task)
	}

	now := time.Now()
	fmt.Println(task.Name)
	fmt.Println("  gid:      ", task.Gid)
	fmt.Println("  completed:", task.Completed)
	fmt.Println("  due:      ", task.DueDisplay(now))
	if task.AssigneeName != "" {
		fmt.Println("  assignee: ", task.AssigneeName)
	}
	if task.Notes != "" {
		fmt.Println()
		fmt.Println(task.Notes)
	}
	return nil
}

func (cmd *TasksCmd) runStories(ctx context.Context, c *cli.Command) error {
	gid := c.Args().First()
	if gid == "" {
		return fmt.Errorf("usage: %s", c.UsageText)
	}

	client, err := newClient(cmd.flags)
	if err != nil {
		return err
	}

	entities, err := fetchAllPages(ctx, client, api.Scope{Kind: entity.KindComment, TaskGID: gid})
	if err != nil {
		return fmt.Errorf("list stories: %w", err)
	}

	if cmd.format == "json" {
		return printJSON(entities)
	}

	for _, e := range entities {
		comment, ok := e.(*entity.Comment)
		if !ok || !comment.IsUserComment() {
			continue
		}
		author := comment.AuthorName
		if author == "" {
			author = "unknown"
		}
		fmt.Printf("%s  %s\n%s\n\n",
			author,
			comment.CreatedAt.Local().Format("2006-01-02 15:04"),
			comment.Text,
		)
	}
	return nil
}

func fetchAllPages(ctx context.Context, client *api.Client, scope api.Scope) ([]entity.Entity, error) {
	var out []entity.Entity
	pageToken := ""
	for {
		page, err := client.Fetch(ctx, scope, pageToken)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Entities...)
		if page.NextPage == "" {
			return out, nil
		}
		pageToken = page.NextPage
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
