package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"arcsync/cmd/internal/app"
	"arcsync/cmd/internal/realtime"
	"arcsync/cmd/internal/session"
	rtv1 "arcsync/shared/contracts/realtime/v1"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

// ErrSessionEnded stops watch when the session is gone.
var ErrSessionEnded = errors.New("session ended")

// watchAction keeps the process in the foreground state, renewing the token
// proactively and applying realtime invalidations. SIGUSR1 moves it to the
// background, SIGUSR2 back to the foreground.
func watchAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	ended := app.WithSessionEnded(func(reason session.LogoutReason, cause error) {
		fmt.Fprintf(c.App.ErrWriter, "session ended: %s\n", reason)
		cancel(fmt.Errorf("%w: %s", ErrSessionEnded, reason))
	})

	return withApp(c, func(_ context.Context, a *app.App) error {
		if _, ok, err := a.Session.Current(ctx); err != nil {
			return err
		} else if !ok {
			return cli.Exit("watch: not logged in", 1)
		}

		release := a.Session.BindLifecycle(a.Lifecycle)
		defer release()

		w, err := a.Watcher(ctx, realtime.WithEventHook(func(env rtv1.Envelope) {
			if env.ConvID != "" {
				fmt.Fprintf(c.App.Writer, "%s %s\n", env.Type, env.ConvID)
			}
		}))
		if err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return w.Run(gctx) })
		g.Go(func() error { return a.ServeOps(gctx) })
		g.Go(func() error { return followSignals(gctx, a.Lifecycle) })

		err = g.Wait()
		if cause := context.Cause(ctx); errors.Is(cause, ErrSessionEnded) {
			return cause
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}, ended)
}

func followSignals(ctx context.Context, l *session.Lifecycle) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sig)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-sig:
			if s == syscall.SIGUSR1 {
				l.Background()
			} else {
				l.Foreground()
			}
		}
	}
}
