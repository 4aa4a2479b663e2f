package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/valuin/radikari-chat-widget/internal/demoserver"
	"github.com/valuin/radikari-chat-widget/internal/logging"
)

var (
	demoAddr       string
	demoTTL        time.Duration
	demoFrameDelay time.Duration
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a local demo chat server",
	Long: `Demo serves the ephemeral threads API on localhost with canned
streaming replies and real thread expiry, so 'radikari chat' has
something to talk to without network access.`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().StringVar(&demoAddr, "addr", "127.0.0.1:8791", "Listen address")
	demoCmd.Flags().DurationVar(&demoTTL, "ttl", demoserver.DefaultConfig().ThreadTTL, "Thread time to live")
	demoCmd.Flags().DurationVar(&demoFrameDelay, "frame-delay", demoserver.DefaultConfig().FrameDelay, "Delay between streamed delta frames")
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cmd, cfg)
	log := logging.Component("demo")

	srv := demoserver.New(demoserver.Config{
		ThreadTTL:  demoTTL,
		FrameDelay: demoFrameDelay,
	})
	httpSrv := &http.Server{
		Addr:    demoAddr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	fmt.Fprintf(os.Stderr, "demo server listening on http://%s (thread ttl %s)\n", demoAddr, demoTTL)
	fmt.Fprintf(os.Stderr, "try: radikari chat --tenant demo --base-url http://%s\n", demoAddr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
