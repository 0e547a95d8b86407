// Command worker runs a single worker agent: it registers itself with a
// controller, then serves job submissions and dataset streaming over
// HTTP, executing each task as an isolated taskrunner child process
// (internal/wrk).
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskmesh/taskmesh/internal/logx"
	"github.com/taskmesh/taskmesh/internal/wrk"
)

var rootCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker agent: registers with the controller, then executes jobs it's assigned.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		return nil
	},
	RunE: run,
}

func init() {
	viper.SetEnvPrefix("WORKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.Flags().String("listen", ":9001", "address to listen on")
	rootCmd.Flags().String("self-url", "", "this worker's own URL, as advertised to the controller (required)")
	rootCmd.Flags().String("controller-url", "http://localhost:8080", "the controller's base URL")
	rootCmd.Flags().Int("memory-mb", 1024, "memory this worker advertises for scheduling")
	rootCmd.Flags().String("log-level", "info", "log level: trace, debug, info, warn, error")
	rootCmd.Flags().Bool("pretty-log", false, "use human-readable console logging instead of JSON")

	for _, name := range []string{"listen", "self-url", "controller-url", "memory-mb", "log-level", "pretty-log"} {
		if err := viper.BindPFlag(name, rootCmd.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logx.Init(viper.GetString("log-level"), viper.GetBool("pretty-log"))
	logger := logx.WithComponent("worker")

	selfURL := viper.GetString("self-url")
	if selfURL == "" {
		return errors.New("--self-url is required")
	}

	agent := wrk.NewAgent(selfURL, viper.GetString("controller-url"), viper.GetInt("memory-mb"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := agent.Register(ctx); err != nil {
		return err
	}
	logger.Info().Str("worker_id", string(agent.ID)).Msg("registered with controller")

	srv := &http.Server{
		Addr:    viper.GetString("listen"),
		Handler: agent.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("worker listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info().Msg("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
