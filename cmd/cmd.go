package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/fx"

	"github.com/artmarket/session-sync/config"
	"github.com/artmarket/session-sync/infra/client/api"
	"github.com/artmarket/session-sync/internal/adapter/pubsub"
	"github.com/artmarket/session-sync/internal/domain/channel"
	"github.com/artmarket/session-sync/internal/domain/event"
	"github.com/artmarket/session-sync/internal/domain/guard"
	"github.com/artmarket/session-sync/internal/domain/model"
	"github.com/artmarket/session-sync/internal/handler/marshaller"
	"github.com/artmarket/session-sync/internal/handler/tui"
	"github.com/artmarket/session-sync/internal/handler/view"
	"github.com/artmarket/session-sync/internal/service"
)

const (
	ServiceName      = "session-sync"
	ServiceNamespace = "artmarket"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	app := &cli.App{
		Name:    ServiceName,
		Usage:   "Session and notification sync client for the artist/employer marketplace",
		Version: fmt.Sprintf("%s (%s@%s, %s)", version, branch, commit, commitDate),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config_file",
				Usage:   "Path to the configuration file",
				EnvVars: []string{config.EnvFile},
			},
		},
		Commands: []*cli.Command{
			loginCmd(),
			registerCmd(),
			logoutCmd(),
			whoamiCmd(),
			notificationsCmd(),
			guardCmd(),
			watchCmd(),
			serveCmd(),
			dashboardCmd(),
		},
	}

	return app.Run(os.Args)
}

// client holds the components a command works with.
type client struct {
	Session *service.Container
	Store   *service.NotificationStore
	Sync    *service.Synchronizer
	Auth    *service.Authenticator
	Guard   *guard.Guard
	Channel *channel.Channel
	Bus     pubsub.EventDispatcher
	Catalog model.Catalog
	Logger  *slog.Logger
}

// withClient starts the app for the duration of fn.
func withClient(c *cli.Context, fn func(ctx context.Context, cl *client) error, opts ...fx.Option) error {
	cfg, err := config.LoadConfig(c.String("config_file"))
	if err != nil {
		return err
	}

	var cl client
	opts = append(opts, fx.Populate(
		&cl.Session, &cl.Store, &cl.Sync, &cl.Auth, &cl.Guard,
		&cl.Channel, &cl.Bus, &cl.Catalog, &cl.Logger,
	))
	app := NewApp(cfg, opts...)
	if err := app.Err(); err != nil {
		return err
	}

	if err := app.Start(c.Context); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	// [SETTLE] the reset for the restored identity has run before a command
	// touches the store
	cl.Sync.Reconcile(c.Context)

	return fn(c.Context, &cl)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func loginCmd() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Exchange credentials for a session",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{config.EnvPrefix + "_PASSWORD"}},
		},
		Action: func(c *cli.Context) error {
			return withClient(c, func(ctx context.Context, cl *client) error {
				sess, err := cl.Auth.Login(ctx, c.String("email"), c.String("password"))
				if err != nil {
					return err
				}
				return printJSON(marshaller.MarshalSession(sess))
			})
		},
	}
}

func registerCmd() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Create an account and log it in",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{config.EnvPrefix + "_PASSWORD"}},
			&cli.StringFlag{Name: "fullname"},
			&cli.StringFlag{Name: "role", Value: string(model.RoleArtist), Usage: "Artist or Employer"},
		},
		Action: func(c *cli.Context) error {
			role := model.Role(c.String("role"))
			if role != model.RoleArtist && role != model.RoleEmployer {
				return fmt.Errorf("register: role must be %s or %s", model.RoleArtist, model.RoleEmployer)
			}
			return withClient(c, func(ctx context.Context, cl *client) error {
				sess, err := cl.Auth.Register(ctx, api.RegisterRequest{
					Email:    c.String("email"),
					Password: c.String("password"),
					Fullname: c.String("fullname"),
					Role:     role,
				})
				if err != nil {
					return err
				}
				return printJSON(marshaller.MarshalSession(sess))
			})
		},
	}
}

func logoutCmd() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the session and wipe local state",
		Action: func(c *cli.Context) error {
			return withClient(c, func(ctx context.Context, cl *client) error {
				cl.Session.Logout(ctx)
				return nil
			})
		},
	}
}

func whoamiCmd() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the resident session",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "refresh", Usage: "Refetch the profile from the API"},
		},
		Action: func(c *cli.Context) error {
			return withClient(c, func(ctx context.Context, cl *client) error {
				sess := cl.Session.Snapshot()
				if c.Bool("refresh") && sess.Authenticated() {
					var err error
					if sess, err = cl.Auth.RefreshProfile(ctx); err != nil {
						return err
					}
				}

				out := struct {
					marshaller.SessionView
					Unread *int `json:"unread,omitempty"`
				}{SessionView: marshaller.MarshalSession(sess)}

				if sess.Authenticated() {
					if err := cl.Store.Hydrate(ctx); err == nil {
						n := cl.Store.UnreadCount()
						out.Unread = &n
					}
				}
				return printJSON(out)
			})
		},
	}
}

func notificationsCmd() *cli.Command {
	idArg := func(c *cli.Context) (int64, error) {
		id, err := strconv.ParseInt(c.Args().First(), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("notification id: %w", err)
		}
		return id, nil
	}

	// mutate hydrates first: the store only touches records it holds
	mutate := func(op func(cl *client) func(context.Context, int64) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			id, err := idArg(c)
			if err != nil {
				return err
			}
			return withClient(c, func(ctx context.Context, cl *client) error {
				if err := cl.Store.Hydrate(ctx); err != nil {
					return err
				}
				return op(cl)(ctx, id)
			})
		}
	}

	return &cli.Command{
		Name:    "notifications",
		Aliases: []string{"n"},
		Usage:   "Inspect and manage notifications",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List notifications, newest first",
				Action: func(c *cli.Context) error {
					return withClient(c, func(ctx context.Context, cl *client) error {
						if err := cl.Store.Hydrate(ctx); err != nil {
							return err
						}
						return printJSON(marshaller.MarshalNotifications(cl.Store.List(), cl.Catalog))
					})
				},
			},
			{
				Name:      "read",
				Usage:     "Mark a notification read",
				ArgsUsage: "<id>",
				Action: mutate(func(cl *client) func(context.Context, int64) error {
					return cl.Store.MarkRead
				}),
			},
			{
				Name:      "delete",
				Usage:     "Delete a notification",
				ArgsUsage: "<id>",
				Action: mutate(func(cl *client) func(context.Context, int64) error {
					return cl.Store.Remove
				}),
			},
		},
	}
}

func guardCmd() *cli.Command {
	return &cli.Command{
		Name:      "guard",
		Usage:     "Evaluate a route requirement against the resident session",
		ArgsUsage: "<public|authenticated|admin>",
		Action: func(c *cli.Context) error {
			req, err := guard.ParseRequirement(c.Args().First())
			if err != nil {
				return err
			}
			return withClient(c, func(ctx context.Context, cl *client) error {
				fmt.Println(cl.Guard.Check(req))
				return nil
			})
		},
	}
}

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Print notifications as they are pushed until interrupted",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			c.Context = ctx

			return withClient(c, func(ctx context.Context, cl *client) error {
				if cl.Session.UserID() == nil {
					return service.ErrNoSession
				}
				msgs, err := cl.Bus.Subscribe(ctx, event.TopicNotifications)
				if err != nil {
					return err
				}

				for msg := range msgs {
					ev, err := pubsub.Decode[event.NotificationsChangedEvent](msg)
					if err != nil || ev.Reason != event.ReasonPushed {
						continue
					}
					for _, n := range cl.Store.List() {
						if n.ID == ev.NotificationID {
							if err := printJSON(marshaller.MarshalNotification(n, cl.Catalog)); err != nil {
								return err
							}
							break
						}
					}
				}
				return nil
			})
		},
	}
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Serve the local guarded views",
		Action: func(c *cli.Context) error {
			return withClient(c, func(ctx context.Context, cl *client) error {
				stop := make(chan os.Signal, 1)
				signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
				<-stop

				cl.Logger.Info("SHUTTING_DOWN")
				return nil
			}, view.Module)
		},
	}
}

func dashboardCmd() *cli.Command {
	return &cli.Command{
		Name:  "dashboard",
		Usage: "Live terminal view of the session and notifications",
		Action: func(c *cli.Context) error {
			return withClient(c, func(ctx context.Context, cl *client) error {
				d := tui.NewDashboard(cl.Session, cl.Store, cl.Channel, cl.Bus, cl.Catalog, cl.Logger)
				return d.Run(ctx)
			})
		},
	}
}
