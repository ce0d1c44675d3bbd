package cli

import (
	"bufio"
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vmarchenko/signon/internal/client/client"
	"github.com/vmarchenko/signon/internal/client/config"
	"github.com/vmarchenko/signon/internal/client/models"
	"github.com/vmarchenko/signon/internal/client/provider"
	"github.com/vmarchenko/signon/internal/client/repositories/session"
	"github.com/vmarchenko/signon/internal/client/services"
	"github.com/vmarchenko/signon/internal/logging"

	_ "modernc.org/sqlite"
)

type Mode string

const (
	ModeOffline  Mode = "offline"
	ModeOnline   Mode = "online"
	ModeDisabled Mode = "disabled"
)

type App struct {
	config   *config.Config
	sessions services.SessionService
	state    models.SignInState
	Mode     Mode
	reader   *bufio.Reader
}

func NewApp(c *config.Config) (*App, error) {

	ctx := context.Background()

	repo, err := newSessionRepository(ctx, c)
	if err != nil {
		log.Printf("error initializing session store: %s", err.Error())
		return nil, err
	}

	apiClient := client.NewHTTPClient(c.ServerEndpointURL, c.RequestTimeout)

	logger := logging.NewSlogLogger(slog.Default())
	ss := services.NewSessionService(apiClient, repo, provider.NewSoftProvider(), logger)

	return &App{config: c, sessions: ss, reader: bufio.NewReader(os.Stdin)}, nil
}

// newSessionRepository selects the durable store backend from the config.
func newSessionRepository(ctx context.Context, c *config.Config) (session.Repository, error) {
	if c.StorageBackend == config.StorageRedis {
		rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		return session.NewRedisRepository(rdb, ""), nil
	}

	db, err := client.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	return session.NewSQLiteRepository(db), nil
}

func (a *App) setMode(mode Mode) {
	if a.Mode != mode {
		a.Mode = mode
		log.Printf("Switched to %s mode\n", mode)
	}
}

func (a *App) Run(ctx context.Context) {
	defer a.sessions.Close(ctx)
	a.Root(ctx)
}

func (a *App) isSignedIn() bool {
	return a.state.Phase == models.PhaseSignedIn
}

func (a *App) isSigningIn() bool {
	return a.state.Phase == models.PhaseSigningIn
}

// StartStateWatcher consumes published sign-in states, keeps the prompt
// status current, and reports transitions to the user. It returns when the
// subscription is cancelled or ctx is done.
func (a *App) StartStateWatcher(ctx context.Context) {
	states, cancel := a.sessions.Subscribe()
	defer cancel()

	for {
		select {
		case state, ok := <-states:
			if !ok {
				return
			}
			prev := a.state
			a.state = state
			if state.Phase == models.PhaseError {
				log.Printf("Sign-in problem: %s\n", state.Message)
			} else if prev.Phase != state.Phase {
				log.Printf("Session state: %s\n", state.String())
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := a.sessions.Ping(ctx)
			cancel()

			if err != nil {
				if a.Mode == ModeOnline {
					a.setMode(ModeOffline)
				}
			} else {
				if a.Mode != ModeOnline {
					a.setMode(ModeOnline)
				}
			}

		case <-ctx.Done():
			return
		}
	}
}
