// Package bootstrap runs an application through a uniform lifecycle:
// validate config, start components, run hooks, do the work, shut down.
//
//	app, err := bootstrap.NewApp(&cfg)
//	app.RegisterComponent(browser)
//	err = app.RunTask(ctx, func(ctx context.Context) error {
//	    <-ctx.Done()
//	    return nil
//	})
//
// SIGINT and SIGTERM cancel the task and trigger a graceful shutdown.
package bootstrap
