package coursechat

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/cors"
	"github.com/putto11262002/coursechat/core"
	"github.com/putto11262002/coursechat/pkg/router"
	"github.com/redis/go-redis/v9"
)

var defaultTLSConfig = tls.Config{
	MinVersion: tls.VersionTLS12,
	CurvePreferences: []tls.CurveID{
		tls.X25519,
		tls.CurveP256,
		tls.CurveP384,
	},
}

type App struct {
	config  *Config
	db      *core.SQLiteDB
	context context.Context
	server  *http.Server
	logger  *slog.Logger
	router  *router.Router

	userStore core.UserStore
	chatStore core.ChatStore
	authStore core.AuthStore
	feed      core.Feed

	userHandler *UserHandler
	chatHandler *ChatHandler
	authHandler *AuthHandler
	feedHandler *FeedHandler

	cleanupFuncs []func(context.Context)

	wg sync.WaitGroup
}

type AppOption func(*App)

func WithLogger(logger *slog.Logger) AppOption {
	return func(app *App) {
		app.logger = logger
	}
}

// NewLogger is the text logger the server logs with.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}))
}

// New wires the stores, change feed and routes. ctx bounds the lifetime of the
// app: feed connections close when it is done.
func New(ctx context.Context, config *Config, opts ...AppOption) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%s", FormatValidationErrors(err))
	}

	app := &App{config: config, context: ctx}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		level := slog.LevelDebug
		if config.Mode == ProdMode {
			level = slog.LevelInfo
		}
		app.logger = NewLogger(level)
	}

	var err error
	if config.SQLite.File == MemoryDB {
		app.db, err = core.NewMemorySQLiteDB()
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
	} else {
		app.db, err = core.NewSQLiteDB(config.SQLite.File, &core.SQLiteDBOption{
			Mode:        "rwc",
			Cache:       "shared",
			JournalMode: "WAL",
		})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := app.db.Migrate(); err != nil {
			app.db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}
	app.AddCleanupFunc(func(ctx context.Context) {
		app.db.Close()
	})

	app.feed, err = newFeed(ctx, config, app.logger)
	if err != nil {
		app.db.Close()
		return nil, err
	}
	app.AddCleanupFunc(func(ctx context.Context) {
		app.feed.Close()
	})

	app.userStore = core.NewSQLiteUserStore(app.db.DB)
	app.authStore = core.NewSQLiteAuthStore(app.db.DB, app.userStore, config.Auth.Secret,
		core.WithTokenExp(config.Auth.TokenExp))
	app.chatStore = core.NewSQLiteChatStore(app.db.DB, app.userStore,
		core.WithPublisher(app.feed), core.WithChatLogger(app.logger))

	app.userHandler = NewUserHandler(app.userStore)
	app.chatHandler = NewChatHandler(app.chatStore)
	app.authHandler = NewAuthHandler(app.authStore)
	app.feedHandler = NewFeedHandler(ctx, &app.wg, app.chatStore, app.feed, config.AllowedOrigins, app.logger)

	app.router = app.routes()

	app.server = &http.Server{
		Addr:    config.Addr(),
		Handler: app.router,
		BaseContext: func(listener net.Listener) context.Context {
			return app.context
		},
	}
	if config.Mode == ProdMode {
		app.server.TLSConfig = &defaultTLSConfig
	}

	return app, nil
}

func newFeed(ctx context.Context, config *Config, logger *slog.Logger) (core.Feed, error) {
	switch config.Feed.Driver {
	case RedisFeed:
		client := redis.NewClient(&redis.Options{Addr: config.Feed.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", config.Feed.RedisAddr, err)
		}
		return core.NewRedisFeed(client, config.Feed.Prefix, core.WithFeedLogger(logger)), nil
	default:
		return core.NewMemoryFeed(core.WithFeedLogger(logger)), nil
	}
}

func notFound(msg string) router.ErrorMapper {
	return func(error) router.Error {
		return router.NotFound(msg)
	}
}

func badRequest(err error) router.Error {
	return router.BadRequest(err.Error())
}

func (app *App) routes() *router.Router {
	r := router.New(router.WithLogger(app.logger))

	r.RegisterErrorMapper(core.ErrInvalidRoom, notFound("room not found"))
	r.RegisterErrorMapper(core.ErrInvalidCourse, notFound("course not found"))
	r.RegisterErrorMapper(core.ErrInvalidMessage, badRequest)
	r.RegisterErrorMapper(core.ErrInvalidUser, badRequest)
	r.RegisterErrorMapper(core.ErrUnauthenticated, func(err error) router.Error {
		return router.Unauthorized(err.Error())
	})

	r.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	authMiddleware := core.JWTMiddleware(app.authStore)

	r.Route("/api", func(api *router.Router) {
		api.Route("/users", func(r *router.Router) {
			r.Post("/", app.userHandler.RegisterUserHandler)
			r.With(authMiddleware).Get("/me", app.userHandler.MeHandler)
		})

		api.Route("/auth", func(r *router.Router) {
			r.Post("/signin", app.authHandler.SigninHandler)
			r.With(authMiddleware).Post("/signout", app.authHandler.SignoutHandler)
		})

		api.Group(func(r *router.Router) {
			r.Use(authMiddleware)
			r.Get("/rooms", app.chatHandler.ListRoomsHandler)
			r.Post("/rooms", app.chatHandler.CreateRoomHandler)
			r.Patch("/rooms/{roomID}", app.chatHandler.TouchRoomHandler)
			r.Get("/rooms/{roomID}/messages", app.chatHandler.GetRoomMessagesHandler)
			r.Post("/rooms/{roomID}/messages", app.chatHandler.SendMessageHandler)
			r.Get("/rooms/{roomID}/feed", app.feedHandler.FeedHandler)
			r.Get("/messages/{messageID}", app.chatHandler.GetMessageHandler)
			r.Post("/courses", app.chatHandler.CreateCourseHandler)
			r.Get("/courses/{courseID}/rooms", app.chatHandler.CourseRoomsHandler)
		})
	})

	return r
}

// Handler serves the API without binding a listener.
func (app *App) Handler() http.Handler {
	return app.router
}

// Start serves until the app context is done, then shuts down.
func (app *App) Start() error {
	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(fmt.Sprintf("app running in %s mode on: %s", app.config.Mode, app.config.Addr()))
		var err error
		if app.config.TLS.Crt != "" {
			err = app.server.ListenAndServeTLS(app.config.TLS.Crt, app.config.TLS.Key)
		} else {
			err = app.server.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Close(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	case <-app.context.Done():
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	return app.Close(closeCtx)
}

// Close stops the server, waits for open feed connections and releases the
// database and the feed broker.
func (app *App) Close(ctx context.Context) error {
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error(fmt.Sprintf("server shutdown: %v", err))
	}

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		app.logger.Info("app shutdown timed out")
		return ctx.Err()
	}

	for _, f := range app.cleanupFuncs {
		f(ctx)
	}
	app.logger.Info("app shutdown gracefully")
	return nil
}

func (app *App) AddCleanupFunc(f func(context.Context)) {
	app.cleanupFuncs = append(app.cleanupFuncs, f)
}
