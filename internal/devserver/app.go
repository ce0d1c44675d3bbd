package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/vmarchenko/signon/internal/common"
	"github.com/vmarchenko/signon/internal/logging"
)

// App runs the development server with graceful shutdown.
type App struct {
	addr   string
	logger logging.Logger
	server *Server
}

// NewApp builds the app listening on addr. An empty secret gets a random
// one, which invalidates all tokens on restart.
func NewApp(addr string, secret []byte) *App {
	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	if len(secret) == 0 {
		secret = common.GenerateRandByteArray(32)
	}

	return &App{addr: addr, logger: logger, server: NewServer(secret, logger)}
}

// Seed registers a demo account.
func (app *App) Seed(username string, password []byte) {
	app.server.AddUser(username, password)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting dev server...", "addr", app.addr)

	app.initSignalHandler(cancelFunc)

	hs := &http.Server{Addr: app.addr, Handler: app.server}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, err.Error())
	}

	wg.Wait()

}
