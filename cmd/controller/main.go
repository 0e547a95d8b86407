// Command controller runs the job engine's controller: the worker
// registry, the job/task state machine, the assignment and heartbeat
// loops, and the REST surface clients and workers talk to.
package main

import (
	"context"
	"encoding/json"
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

	"github.com/taskmesh/taskmesh/internal/ctl"
	"github.com/taskmesh/taskmesh/internal/logx"
	"github.com/taskmesh/taskmesh/internal/types"
)

var rootCmd = &cobra.Command{
	Use:   "controller",
	Short: "Run the job engine controller: worker registry, scheduler, and job API.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		return nil
	},
	RunE: run,
}

func init() {
	viper.SetEnvPrefix("CONTROLLER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.Flags().String("addr", ":8080", "address to listen on")
	rootCmd.Flags().String("template", "", "path to the job template (TaskDAGBuilder JSON) this controller serves")
	rootCmd.Flags().String("log-level", "info", "log level: trace, debug, info, warn, error")
	rootCmd.Flags().Bool("pretty-log", false, "use human-readable console logging instead of JSON")

	for _, name := range []string{"addr", "template", "log-level", "pretty-log"} {
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
	logger := logx.WithComponent("controller")

	builder, err := loadTemplate(viper.GetString("template"))
	if err != nil {
		return err
	}

	state := ctl.NewState()
	comm := ctl.NewWorkerComm()
	scheduler := ctl.NewScheduler(state, comm)
	api := ctl.NewAPI(state, scheduler, builder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go scheduler.RunAssignmentLoop(ctx)
	go scheduler.RunHeartbeatLoop(ctx)

	srv := &http.Server{
		Addr:    viper.GetString("addr"),
		Handler: api.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("controller listening")
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

// loadTemplate reads a TaskDAGBuilder from path. An empty path is valid
// (the controller still serves /jobs/submit with pre-built DAGs); with no
// template, /jobs/schedulable_submit marks every request that names a
// parameter as failed, since no task exists to receive it, and a request
// with no parameters yields a job with an empty DAG.
func loadTemplate(path string) (types.TaskDAGBuilder, error) {
	if path == "" {
		return types.TaskDAGBuilder{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return types.TaskDAGBuilder{}, err
	}
	defer f.Close()

	var builder types.TaskDAGBuilder
	if err := json.NewDecoder(f).Decode(&builder); err != nil {
		return types.TaskDAGBuilder{}, err
	}
	return builder, nil
}
