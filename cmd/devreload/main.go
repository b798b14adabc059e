// Command devreload loads a dev server page in a headless browser that runs
// the live-reload notifier, and reloads it whenever the server pushes an
// event on /__dev_reload.
//
//	devreload --page-url http://127.0.0.1:3000/
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kbukum/devreload/bootstrap"
	"github.com/kbukum/devreload/headless"
	"github.com/kbukum/devreload/observability"
	"github.com/kbukum/devreload/version"
)

const telemetryShutdownTimeout = 5 * time.Second

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "devreload: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs, opts := newFlagSet()
	fs.SetOutput(stdout)
	if err := fs.Parse(args); err != nil {
		if stderrors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "%s %s\n", serviceName, version.Get())
		return nil
	}

	cfg, err := loadConfig(fs, opts)
	if err != nil {
		return err
	}

	app, err := bootstrap.NewApp(cfg, bootstrap.WithSummaryWriter(stdout))
	if err != nil {
		return err
	}

	shutdown, err := observability.Setup(ctx, cfg.Telemetry, observability.ServiceInfo{
		Name:        cfg.Name,
		Version:     cfg.Version,
		Environment: cfg.Environment,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		_ = shutdown(sctx)
	}()

	browser, err := headless.NewBrowser(cfg.Headless, nil,
		headless.WithLogger(app.Logger),
		headless.WithConsole(stdout),
	)
	if err != nil {
		return err
	}
	if err := app.RegisterComponent(browser); err != nil {
		return err
	}
	if cfg.Telemetry.Enabled {
		app.Summary.AddNote("telemetry → %s", cfg.Telemetry.Endpoint)
	}

	return app.RunTask(ctx, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return nil
		case <-browser.Done():
			return browser.Err()
		}
	})
}
