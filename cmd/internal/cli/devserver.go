package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"arcsync/cmd/internal/app"
	"arcsync/cmd/internal/devserver"

	"github.com/urfave/cli/v2"
)

func devServerAction(c *cli.Context) error {
	cfg := devserver.DefaultConfig()
	if ttl := c.Duration("access-ttl"); ttl > 0 {
		cfg.AccessTTL = ttl
	}
	cfg.PageSize = app.EnvInt("ARCSYNC_DEV_PAGE_SIZE", cfg.PageSize)
	cfg.RateLimit = app.EnvInt("ARCSYNC_DEV_RATE_LIMIT", cfg.RateLimit)

	log := app.NewLogger(c.App.ErrWriter,
		app.EnvString("ARCSYNC_LOG_LEVEL", "info"),
		app.EnvString("ARCSYNC_LOG_FORMAT", "pretty"),
		app.EnvBool("ARCSYNC_LOG_COLOR", os.Getenv("NO_COLOR") == ""),
	)

	srv, err := devserver.New(cfg, devserver.WithLogger(log))
	if err != nil {
		return err
	}
	if err := seed(srv, c.StringSlice("user"), c.StringSlice("conversation")); err != nil {
		return cli.Exit(err.Error(), 2)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hs := &http.Server{
		Addr:              c.String("addr"),
		Handler:           app.WithRequestLogging(srv, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("devserver.start", "addr", hs.Addr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}

// seed parses id:email:password users and id:title:member,member conversations.
func seed(srv *devserver.Server, users, convs []string) error {
	for _, u := range users {
		parts := strings.SplitN(u, ":", 3)
		if len(parts) != 3 {
			return fmt.Errorf("dev-server: bad --user %q", u)
		}
		if err := srv.AddUser(parts[0], parts[1], parts[2]); err != nil {
			return err
		}
	}
	for _, cv := range convs {
		parts := strings.SplitN(cv, ":", 3)
		if len(parts) != 3 || parts[0] == "" {
			return fmt.Errorf("dev-server: bad --conversation %q", cv)
		}
		srv.AddConversation(parts[0], parts[1], strings.Split(parts[2], ",")...)
	}
	return nil
}
