package cli

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/aristath/frontier/internal/modules/analysis"
	"github.com/aristath/frontier/internal/modules/optimization"
)

type fetchCmd struct {
	app *App
}

func (*fetchCmd) Name() string     { return "fetch" }
func (*fetchCmd) Synopsis() string { return "download the factor and benchmark prices" }
func (*fetchCmd) Usage() string {
	return `frontier fetch

  Downloads the configured price files and stores them in the market database.
`
}

func (c *fetchCmd) SetFlags(f *flag.FlagSet) {}

func (c *fetchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.with(ctx, func(d *Deps) error {
		if _, err := d.Data.Refresh(ctx); err != nil {
			return err
		}
		status, err := d.Data.Status(ctx)
		if err != nil {
			return err
		}
		c.app.print(RefreshMarkdown(status))
		return nil
	})
}

type assumptionsCmd struct {
	app *App
}

func (*assumptionsCmd) Name() string     { return "assumptions" }
func (*assumptionsCmd) Synopsis() string { return "show expected returns, volatility and correlations" }
func (*assumptionsCmd) Usage() string {
	return `frontier assumptions

  Prints the annualised asset assumptions and the return correlation matrix.
`
}

func (c *assumptionsCmd) SetFlags(f *flag.FlagSet) {}

func (c *assumptionsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.with(ctx, func(d *Deps) error {
		obj, err := d.Analysis.Objective(ctx)
		if err != nil {
			return err
		}
		c.app.print(AssumptionsMarkdown(obj))
		return nil
	})
}

// requestFlags are the optimisation inputs shared by optimize and bl. Only
// flags given on the command line override the stored defaults.
type requestFlags struct {
	method       string
	lowerBound   float64
	upperBound   float64
	riskFreeRate float64
	targetReturn float64
}

func (r *requestFlags) register(f *flag.FlagSet) {
	f.StringVar(&r.method, "method", string(analysis.DefaultMethod), "efficient_return, max_sharpe or min_volatility")
	f.Float64Var(&r.lowerBound, "lower", analysis.DefaultLowerBound, "minimum weight per asset")
	f.Float64Var(&r.upperBound, "upper", analysis.DefaultUpperBound, "maximum weight per asset")
	f.Float64Var(&r.riskFreeRate, "rf", analysis.DefaultRiskFreeRate, "annual risk-free rate")
	f.Float64Var(&r.targetReturn, "target", analysis.DefaultTargetReturn, "target return for efficient_return")
}

// apply overwrites the fields of req whose flags were set.
func (r *requestFlags) apply(f *flag.FlagSet, req *analysis.Request) {
	f.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "method":
			req.Method = optimization.Method(r.method)
		case "lower":
			req.LowerBound = r.lowerBound
		case "upper":
			req.UpperBound = r.upperBound
		case "rf":
			req.RiskFreeRate = r.riskFreeRate
		case "target":
			req.TargetReturn = r.targetReturn
		}
	})
}

func (r *requestFlags) request(f *flag.FlagSet, d *Deps) (analysis.Request, error) {
	req := analysis.DefaultRequest()
	if d.Defaults != nil {
		stored, err := d.Defaults.DefaultRequest()
		if err != nil {
			return req, err
		}
		req = stored
	}
	r.apply(f, &req)
	return req, nil
}

type optimizeCmd struct {
	app   *App
	flags requestFlags
}

func (*optimizeCmd) Name() string     { return "optimize" }
func (*optimizeCmd) Synopsis() string { return "run a mean-variance optimisation" }
func (*optimizeCmd) Usage() string {
	return `frontier optimize [-method <method>] [-lower w] [-upper w] [-rf r] [-target r]

  Optimises on the historical expected returns and prints the weights,
  the dollar allocation and the realised performance against the benchmark.
`
}

func (c *optimizeCmd) SetFlags(f *flag.FlagSet) {
	c.flags.register(f)
}

func (c *optimizeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.with(ctx, func(d *Deps) error {
		req, err := c.flags.request(f, d)
		if err != nil {
			return err
		}
		report, err := d.Analysis.RunMVO(ctx, req)
		if err != nil {
			return err
		}
		c.app.print(ReportMarkdown(report))
		return nil
	})
}

type blCmd struct {
	app   *App
	flags requestFlags
	views viewList
	tau   float64
}

func (*blCmd) Name() string     { return "bl" }
func (*blCmd) Synopsis() string { return "run a Black-Litterman optimisation with views" }
func (*blCmd) Usage() string {
	return `frontier bl [-view ASSET=r]... [-view ASSET>OTHER=r]... [-tau t] [optimize flags]

  Blends the views into the historical returns and optimises on the
  posterior. A view may end with @c to give its confidence, e.g.
  -view "MSCI USA Quality=0.10@0.6". Without views the result matches
  frontier optimize.
`
}

func (c *blCmd) SetFlags(f *flag.FlagSet) {
	c.flags.register(f)
	f.Var(&c.views, "view", "investor view, repeatable")
	f.Float64Var(&c.tau, "tau", 0, "prior uncertainty scale (0 uses the default)")
}

func (c *blCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.with(ctx, func(d *Deps) error {
		req, err := c.flags.request(f, d)
		if err != nil {
			return err
		}
		req.Views = c.views
		req.Tau = c.tau
		report, err := d.Analysis.RunBlackLitterman(ctx, req)
		if err != nil {
			return err
		}
		c.app.print(ReportMarkdown(report))
		return nil
	})
}
