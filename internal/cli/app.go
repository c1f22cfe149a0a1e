// Package cli implements the frontier command line: market data refresh,
// asset assumptions and optimisation runs printed as terminal markdown.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"

	"github.com/aristath/frontier/internal/modules/analysis"
	"github.com/aristath/frontier/internal/modules/marketdata"
)

// Refresher downloads and stores the market data.
type Refresher interface {
	Refresh(ctx context.Context) (*marketdata.Dataset, error)
	Status(ctx context.Context) ([]marketdata.RefreshInfo, error)
}

// Analyzer runs the optimisation pipeline.
type Analyzer interface {
	Objective(ctx context.Context) (*analysis.Objective, error)
	RunMVO(ctx context.Context, req analysis.Request) (*analysis.Report, error)
	RunBlackLitterman(ctx context.Context, req analysis.Request) (*analysis.Report, error)
}

// Defaults supplies the stored optimisation inputs.
type Defaults interface {
	DefaultRequest() (analysis.Request, error)
}

// Deps are the services a command needs.
type Deps struct {
	Data     Refresher
	Analysis Analyzer
	Defaults Defaults
}

// RenderFunc turns markdown into terminal output.
type RenderFunc func(markdown string) (string, error)

// App carries what every command shares. Open is called once a command has
// parsed its flags so that help output never touches the databases.
type App struct {
	Out    io.Writer
	Err    io.Writer
	Open   func(ctx context.Context) (*Deps, func(), error)
	Render RenderFunc
}

// Register adds the frontier commands to the commander.
func Register(c *subcommands.Commander, app *App) {
	c.Register(&fetchCmd{app: app}, "data")
	c.Register(&assumptionsCmd{app: app}, "data")
	c.Register(&optimizeCmd{app: app}, "optimisation")
	c.Register(&blCmd{app: app}, "optimisation")
}

// TerminalRenderer renders markdown with glamour, wrapping at width columns.
func TerminalRenderer(width int) (RenderFunc, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return r.Render, nil
}

// PlainRenderer prints markdown as is.
func PlainRenderer(markdown string) (string, error) {
	return markdown, nil
}

func (a *App) print(markdown string) {
	render := a.Render
	if render == nil {
		render = PlainRenderer
	}
	out, err := render(markdown)
	if err != nil {
		out = markdown
	}
	fmt.Fprint(a.Out, out)
}

func (a *App) fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(a.Err, "Error: %v\n", err)
	return subcommands.ExitFailure
}

// with opens the services, runs fn and closes them again.
func (a *App) with(ctx context.Context, fn func(*Deps) error) subcommands.ExitStatus {
	deps, closeFn, err := a.Open(ctx)
	if err != nil {
		return a.fail(err)
	}
	defer closeFn()

	if err := fn(deps); err != nil {
		return a.fail(err)
	}
	return subcommands.ExitSuccess
}
