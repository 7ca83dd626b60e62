package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/liamcoop/calcengine/access"
	"github.com/liamcoop/calcengine/calcservice"
	"github.com/liamcoop/calcengine/calculations"
	"github.com/liamcoop/calcengine/calculations/catalog"
	"github.com/liamcoop/calcengine/internal/config"
	"github.com/liamcoop/calcengine/internal/logger"
)

// backend is what the commands need. The local calculation service and the
// remote access client both satisfy it.
type backend interface {
	Templates(ctx context.Context, filter calculations.TemplateFilter) ([]*calculations.Template, error)
	Template(ctx context.Context, id string) (*calculations.Template, error)
	Execute(ctx context.Context, req calcservice.ExecuteRequest) (*calculations.Result, error)
	SaveResult(ctx context.Context, req calculations.SaveRequest) (*calculations.Result, error)
	Recommendations(ctx context.Context, req calcservice.RecommendationRequest) ([]*calculations.Template, error)
}

// app holds the global flags and the lazily built backend
type app struct {
	cfgFile   string
	serverURL string
	output    string
	verbose   bool

	logger  *zap.Logger
	backend backend
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "calc",
		Short: "Run construction calculation templates",
		Long: `calc lists the calculation templates, runs them from flags, files or
interactive prompts and compares saved results side by side.

Without --server the built-in catalog is executed locally.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a.logger != nil {
				a.logger.Sync()
			}
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: none, CALC_* environment only)")
	root.PersistentFlags().StringVar(&a.serverURL, "server", "", "calculation server base URL (default: run locally)")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "text", "output format: text, yaml or json")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newListCmd(a),
		newShowCmd(a),
		newRunCmd(a),
		newCompareCmd(a),
		newRecommendCmd(a),
		newCheckCmd(a),
	)
	return root
}

// setup builds the logger and picks the local or remote backend
func (a *app) setup() error {
	switch a.output {
	case "text", "yaml", "json":
	default:
		return fmt.Errorf("invalid output format %q (use text, yaml or json)", a.output)
	}

	conf, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}

	logConf := conf.Logging
	logConf.Format = "console"
	logConf.Level = "warn"
	if a.verbose {
		logConf.Level = "debug"
	}
	if a.logger, err = logger.New(logConf); err != nil {
		return err
	}

	if a.serverURL != "" {
		client, err := access.New(a.serverURL, access.WithLogger(a.logger))
		if err != nil {
			return err
		}
		a.backend = client
		return nil
	}

	svc, err := localService(context.Background(), a.logger)
	if err != nil {
		return err
	}
	a.backend = svc
	return nil
}

// localService runs the built-in catalog on in-memory stores
func localService(ctx context.Context, log *zap.Logger) (*calcservice.Service, error) {
	svc, err := calcservice.New(calculations.NewInMemoryTemplateStore(), calculations.NewInMemoryResultStore(), calcservice.Options{Logger: log})
	if err != nil {
		return nil, err
	}

	builtin, err := catalog.Load()
	if err != nil {
		return nil, err
	}
	if _, err := svc.SeedCatalog(ctx, builtin); err != nil {
		return nil, err
	}
	if err := svc.LoadTemplates(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}
