// Package main is a CI smoke test for the sync layer against a running API
// (for example `arcsync dev-server`).
//
// It checks, with an in-memory store:
//   - login and the conversations list
//   - realtime connect and a message_new invalidation after a send
//   - the sent message on the refetched first page
//   - mark read clearing the unread counter
//   - logout wiping local state
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"arcsync/cmd/internal/app"
	"arcsync/cmd/internal/chat"
	"arcsync/cmd/internal/realtime"
	rtv1 "arcsync/shared/contracts/realtime/v1"
)

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "API base URL")
		email    = flag.String("email", "ada@example.com", "login email")
		password = flag.String("password", "correct horse", "login password")
		convID   = flag.String("conv", "C1", "conversation to write to")
		timeout  = flag.Duration("timeout", 7*time.Second, "per-step timeout")
		verbose  = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	level := "error"
	if *verbose {
		level = "debug"
	}
	log := app.NewLogger(os.Stderr, level, "pretty", false)

	cfg := app.DefaultConfig()
	cfg.API.BaseURL = *baseURL
	cfg.Store = app.StoreMemory

	if err := run(cfg, log, *email, *password, *convID, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "FAIL:", err)
		os.Exit(1)
	}
	fmt.Println("OK")
}

func run(cfg app.Config, log *slog.Logger, email, password, convID string, timeout time.Duration) error {
	ctx := context.Background()
	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	step := func(name string, fn func(context.Context) error) error {
		sctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := fn(sctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		log.Info("smoke.step.ok", "step", name)
		return nil
	}

	if err := step("login", func(ctx context.Context) error {
		return a.Chat.Login(ctx, email, password)
	}); err != nil {
		return err
	}
	if err := step("conversations", func(ctx context.Context) error {
		_, err := a.Chat.Conversations(ctx)
		return err
	}); err != nil {
		return err
	}

	events := make(chan rtv1.Envelope, 16)
	w, err := a.Watcher(ctx, realtime.WithEventHook(func(env rtv1.Envelope) {
		select {
		case events <- env:
		default:
		}
	}))
	if err != nil {
		return err
	}
	wctx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = w.Run(wctx) }()

	if err := step("realtime.hello", func(ctx context.Context) error {
		return waitEvent(ctx, events, rtv1.TypeHelloAck)
	}); err != nil {
		return err
	}

	text := "smoke " + time.Now().UTC().Format(time.RFC3339Nano)
	var seq int64
	if err := step("send", func(ctx context.Context) error {
		m, err := a.Chat.SendMessage(ctx, convID, text)
		seq = m.Sequence
		return err
	}); err != nil {
		return err
	}
	if err := step("realtime.message_new", func(ctx context.Context) error {
		if err := waitEvent(ctx, events, rtv1.TypeMessageNew); err != nil {
			return err
		}
		if !a.Cache.IsStale(chat.MessagesKey(convID)) {
			return errors.New("messages not invalidated")
		}
		return nil
	}); err != nil {
		return err
	}
	if err := step("messages", func(ctx context.Context) error {
		l, err := a.Chat.Messages(ctx, convID)
		if err != nil {
			return err
		}
		if len(l.Items) == 0 || l.Items[0].Content != text {
			return errors.New("sent message is not the newest entry")
		}
		return nil
	}); err != nil {
		return err
	}
	if err := step("read", func(ctx context.Context) error {
		res, err := a.Chat.MarkRead(ctx, convID, seq)
		if err != nil {
			return err
		}
		if res.UnreadCount != 0 {
			return fmt.Errorf("unread = %d after marking #%d", res.UnreadCount, seq)
		}
		return nil
	}); err != nil {
		return err
	}
	return step("logout", func(ctx context.Context) error {
		if err := a.Chat.Logout(ctx); err != nil {
			return err
		}
		if _, ok, _ := a.Session.Current(ctx); ok {
			return errors.New("credentials survived logout")
		}
		return nil
	})
}

func waitEvent(ctx context.Context, ch <-chan rtv1.Envelope, typ string) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", typ, ctx.Err())
		case env := <-ch:
			if env.Type == typ {
				return nil
			}
		}
	}
}
