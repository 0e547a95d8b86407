// Command client is the CLI for talking to a running controller: submit
// a job (either a pre-built TaskDAG or parameters against the
// controller's loaded template), check its status, and stream its
// result.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

var rootCmd = &cobra.Command{
	Use:   "client",
	Short: "Submit jobs to a controller and inspect their status and results.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		return nil
	},
}

func init() {
	viper.SetEnvPrefix("CLIENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().String("controller-url", "http://localhost:8080", "the controller's base URL")
	_ = viper.BindPFlag("controller-url", rootCmd.PersistentFlags().Lookup("controller-url"))

	rootCmd.AddCommand(submitCmd, schedulableSubmitCmd, statusCmd, resultsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func controllerURL() string {
	return viper.GetString("controller-url")
}

var submitCmd = &cobra.Command{
	Use:   "submit <dag.json>",
	Short: "Submit a pre-built TaskDAG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrap(err, "reading DAG file")
		}
		return putJSON(cmd.Context(), controllerURL()+"/jobs/submit", body)
	},
}

var schedulableSubmitCmd = &cobra.Command{
	Use:   "run <params.json>",
	Short: "Materialize and submit a job from the controller's loaded template and a set of parameters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrap(err, "reading params file")
		}
		var params map[string]string
		if err := json.Unmarshal(raw, &params); err != nil {
			return errors.Wrap(err, "parsing params file")
		}
		body, err := json.Marshal(map[string]any{"params": params})
		if err != nil {
			return err
		}
		return putJSON(cmd.Context(), controllerURL()+"/jobs/schedulable_submit", body)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Fetch a job's current status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getAndPrint(cmd.Context(), controllerURL()+"/jobs/status/"+args[0])
	},
}

var resultsCmd = &cobra.Command{
	Use:   "results <result-url>",
	Short: "Stream a job's result (the URL returned in its finished status)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, args[0], nil)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return errors.Wrap(err, "fetching result")
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return errors.Errorf("controller returned %s: %s", resp.Status, body)
		}
		_, err = io.Copy(os.Stdout, resp.Body)
		return err
	},
}

func putJSON(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "contacting controller")
	}
	defer resp.Body.Close()
	return printPretty(resp)
}

func getAndPrint(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "contacting controller")
	}
	defer resp.Body.Close()
	return printPretty(resp)
}

func printPretty(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return errors.Errorf("controller returned %s: %s", resp.Status, body)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
