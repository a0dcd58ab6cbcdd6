// Package cli is the arcsync command line: account commands, chat reads and
// writes through the sync layer, a long-running watch mode, and a local
// development API server.
package cli

import (
	"github.com/urfave/cli/v2"
)

// NewApp builds the arcsync command tree.
func NewApp() *cli.App {
	return &cli.App{
		Name:  "arcsync",
		Usage: "session-aware sync client for the Arc chat API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "HCL configuration file",
				EnvVars: []string{"ARCSYNC_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (overrides config)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in and store the credential pair",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, EnvVars: []string{"ARCSYNC_PASSWORD"}, Required: true},
				},
				Action: loginAction,
			},
			{
				Name:   "logout",
				Usage:  "End the session and wipe local state",
				Action: logoutAction,
			},
			{
				Name:   "status",
				Usage:  "Show whether a session is stored and when its token expires",
				Action: statusAction,
			},
			{
				Name:    "conversations",
				Aliases: []string{"ls"},
				Usage:   "List conversations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "pages", Value: 1, Usage: "number of pages to load"},
				},
				Action: conversationsAction,
			},
			{
				Name:      "messages",
				Usage:     "List messages of a conversation, newest first",
				ArgsUsage: "CONVERSATION_ID",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "pages", Value: 1, Usage: "number of pages to load"},
				},
				Action: messagesAction,
			},
			{
				Name:      "send",
				Usage:     "Send a message",
				ArgsUsage: "CONVERSATION_ID TEXT...",
				Action:    sendAction,
			},
			{
				Name:      "read",
				Usage:     "Move the read marker of a conversation",
				ArgsUsage: "CONVERSATION_ID SEQUENCE",
				Action:    readAction,
			},
			{
				Name:   "watch",
				Usage:  "Keep the session fresh and follow realtime changes until interrupted",
				Action: watchAction,
			},
			{
				Name:  "dev-server",
				Usage: "Run an in-memory development API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Value: "127.0.0.1:8080", EnvVars: []string{"ARCSYNC_DEV_ADDR"}},
					&cli.DurationFlag{Name: "access-ttl", Value: 0, Usage: "access token lifetime (default 15m)"},
					&cli.StringSliceFlag{
						Name:  "user",
						Usage: "seed user as id:email:password (repeatable)",
						Value: cli.NewStringSlice("u1:ada@example.com:correct horse", "u2:bob@example.com:battery staple"),
					},
					&cli.StringSliceFlag{
						Name:  "conversation",
						Usage: "seed conversation as id:title:member,member (repeatable)",
						Value: cli.NewStringSlice("C1:Ada & Bob:u1,u2"),
					},
				},
				Action: devServerAction,
			},
		},
	}
}
