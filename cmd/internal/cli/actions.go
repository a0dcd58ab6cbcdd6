package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"arcsync/cmd/internal/app"
	"arcsync/cmd/internal/chat"
	"arcsync/cmd/internal/gateway"
	apiv1 "arcsync/shared/contracts/api/v1"

	"github.com/urfave/cli/v2"
)

// withApp loads configuration, builds the runtime and closes it when fn returns.
func withApp(c *cli.Context, fn func(ctx context.Context, a *app.App) error, opts ...app.Option) error {
	cfg, err := app.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	log := app.NewLogger(c.App.ErrWriter, cfg.LogLevel, cfg.LogFormat, cfg.LogColor)

	a, err := app.New(c.Context, cfg, log, opts...)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(c.Context, a)
}

func loginAction(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App) error {
		if err := a.Chat.Login(ctx, c.String("email"), c.String("password")); err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, "logged in")
		return nil
	})
}

func logoutAction(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App) error {
		if err := a.Chat.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, "logged out")
		return nil
	})
}

func statusAction(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App) error {
		p, ok, err := a.Session.Current(ctx)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(c.App.Writer, "logged out")
			return nil
		}
		left := p.Remaining(time.Now()).Round(time.Second)
		if left <= 0 {
			fmt.Fprintln(c.App.Writer, "logged in, access token expired (renews on next request)")
			return nil
		}
		fmt.Fprintf(c.App.Writer, "logged in, access token expires in %s\n", left)
		return nil
	})
}

func conversationsAction(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App) error {
		l, err := a.Chat.Conversations(ctx)
		for i := 1; err == nil && i < c.Int("pages") && l.HasMore; i++ {
			l, err = a.Chat.MoreConversations(ctx)
		}
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tUNREAD\tTITLE\tLAST")
		for _, cv := range l.Items {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", cv.ID, cv.UnreadCount, cv.Title, cv.LastMessagePreview)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		footer(c.App.Writer, l.Stale, l.HasMore, a.Gateway.RateLimit())
		return nil
	})
}

func messagesAction(c *cli.Context) error {
	convID := c.Args().First()
	if convID == "" {
		return cli.Exit("messages: CONVERSATION_ID is required", 2)
	}
	return withApp(c, func(ctx context.Context, a *app.App) error {
		l, err := a.Chat.Messages(ctx, convID)
		for i := 1; err == nil && i < c.Int("pages") && l.HasMore; i++ {
			l, err = a.Chat.OlderMessages(ctx, convID)
		}
		if err != nil {
			return err
		}

		for _, m := range l.Items {
			fmt.Fprintf(c.App.Writer, "#%d %s %s: %s\n", m.Sequence, m.CreatedAt.Local().Format("Jan 02 15:04"), m.SenderID, m.Content)
		}
		footer(c.App.Writer, l.Stale, l.HasMore, a.Gateway.RateLimit())
		return nil
	})
}

func footer(w io.Writer, stale, more bool, rl gateway.RateLimit) {
	if stale {
		fmt.Fprintln(w, "(offline: showing the last saved copy)")
	}
	if more {
		fmt.Fprintln(w, "(more available: raise --pages)")
	}
	if rl.Exhausted(time.Now()) {
		fmt.Fprintf(w, "(request quota used up until %s)\n", rl.Reset.Local().Format("15:04:05"))
	}
}

func sendAction(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.Exit("send: CONVERSATION_ID and TEXT are required", 2)
	}
	convID := c.Args().First()
	text := strings.Join(c.Args().Tail(), " ")

	return withApp(c, func(ctx context.Context, a *app.App) error {
		m, err := a.Chat.SendMessage(ctx, convID, text, chat.SendHooks{
			RolledBack: func(p apiv1.Message, err error) {
				fmt.Fprintf(c.App.ErrWriter, "send failed, removed pending %s: %v\n", p.ID, err)
			},
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "sent #%d %s\n", m.Sequence, m.ID)
		return nil
	})
}

func readAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("read: CONVERSATION_ID and SEQUENCE are required", 2)
	}
	convID := c.Args().Get(0)
	seq, err := strconv.ParseInt(c.Args().Get(1), 10, 64)
	if err != nil || seq < 0 {
		return cli.Exit("read: SEQUENCE must be a non-negative integer", 2)
	}

	return withApp(c, func(ctx context.Context, a *app.App) error {
		res, err := a.Chat.MarkRead(ctx, convID, seq)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s read up to #%d, %d unread\n", res.ConversationID, res.LastReadSequence, res.UnreadCount)
		return nil
	})
}
