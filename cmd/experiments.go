package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cwbudde/adaptivexp/internal/pareto"
	"github.com/cwbudde/adaptivexp/internal/server"
	"github.com/cwbudde/adaptivexp/internal/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	serverURL     string
	specPath      string
	valuesArg     string
	metadataArg   string
	traceDirArg   string
	clientTimeout = 30 * time.Second
)

var experimentsCmd = &cobra.Command{
	Use:     "experiments",
	Aliases: []string{"exp"},
	Short:   "Talk to a running server",
	Long: `Creates experiments, fetches and completes trials and shows Pareto
fronts on a running server.`,
}

var expListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var list []store.Summary
		if err := call(http.MethodGet, "/api/experiments", nil, &list); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No experiments found")
			return nil
		}

		fmt.Fprintf(out, "Found %d experiment(s):\n\n", len(list))
		for _, e := range list {
			fmt.Fprintf(out, "Experiment ID: %s\n", e.ID)
			fmt.Fprintf(out, "  Name: %s\n", e.Name)
			fmt.Fprintf(out, "  Primary objective: %s\n", e.PrimaryObjective)
			fmt.Fprintf(out, "  Trials: %d (%d completed)\n", e.Trials, e.Completed)
			fmt.Fprintln(out)
		}
		return nil
	},
}

var expCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an experiment from a YAML or JSON file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := readSpec(specPath)
		if err != nil {
			return err
		}

		var created server.CreateResponse
		if err := call(http.MethodPost, "/api/experiments", spec, &created); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), created.ExperimentID)
		return nil
	},
}

var expNextCmd = &cobra.Command{
	Use:   "next <experiment-id>",
	Short: "Fetch the next trial",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var trial server.TrialResponse
		if err := call(http.MethodGet, "/api/experiments/"+args[0]+"/next_trial", nil, &trial); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), trial)
	},
}

var expCompleteCmd = &cobra.Command{
	Use:   "complete <experiment-id> <trial-id>",
	Short: "Report the outcome of a trial",
	Long: `Reports objective values for a trial. --values takes either a number
or a JSON object of objective name to value.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		trialID, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid trial id %q: %w", args[1], err)
		}

		completion := store.Completion{TrialID: trialID}
		if err := json.Unmarshal([]byte(valuesArg), &completion.Values); err != nil {
			return fmt.Errorf("invalid --values: %w", err)
		}
		if metadataArg != "" {
			if err := json.Unmarshal([]byte(metadataArg), &completion.Metadata); err != nil {
				return fmt.Errorf("invalid --metadata: %w", err)
			}
		}

		if err := call(http.MethodPost, "/api/experiments/"+args[0]+"/complete_trial", completion, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Trial %d completed\n", trialID)
		return nil
	},
}

var expParetoCmd = &cobra.Command{
	Use:   "pareto <experiment-id>",
	Short: "Show the Pareto front of a multi-objective experiment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var front []pareto.Solution
		if err := call(http.MethodGet, "/api/experiments/"+args[0]+"/pareto_front", nil, &front); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), front)
	},
}

var expDeleteCmd = &cobra.Command{
	Use:   "delete <experiment-id>",
	Short: "Delete an experiment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(http.MethodDelete, "/api/experiments/"+args[0], nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Experiment %s deleted\n", args[0])
		return nil
	},
}

var expTraceCmd = &cobra.Command{
	Use:   "trace <experiment-id>",
	Short: "Print the trial trace of an experiment",
	Long: `Reads the completed trials an experiment appended to its trace file.
This works offline on the server's trace directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader, err := store.NewTraceReader(traceDirArg, args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		entries, err := reader.ReadAll()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Experiment %s: %d completed trial(s)\n", args[0], len(entries))
		for _, e := range entries {
			fmt.Fprintf(out, "  Trial %d  feedback=%g  objectives=%v  parameters=%v\n",
				e.TrialID, e.Feedback, e.Objectives, e.Parameters)
		}
		return nil
	},
}

func init() {
	experimentsCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8000", "Server URL")

	expCreateCmd.Flags().StringVarP(&specPath, "file", "f", "", "Experiment definition (YAML or JSON)")
	expCreateCmd.MarkFlagRequired("file")

	expCompleteCmd.Flags().StringVar(&valuesArg, "values", "", "Objective values: a number or a JSON object")
	expCompleteCmd.Flags().StringVar(&metadataArg, "metadata", "", "Optional JSON object stored with the trial")
	expCompleteCmd.MarkFlagRequired("values")

	expTraceCmd.Flags().StringVar(&traceDirArg, "trace-dir", "", "Trace directory the server writes to")
	expTraceCmd.MarkFlagRequired("trace-dir")

	experimentsCmd.AddCommand(expListCmd, expCreateCmd, expNextCmd, expCompleteCmd, expParetoCmd, expDeleteCmd, expTraceCmd)
	rootCmd.AddCommand(experimentsCmd)
}

// readSpec loads an experiment definition. YAML is a superset of JSON, so
// one decoder serves both.
func readSpec(path string) (store.ExperimentSpec, error) {
	var spec store.ExperimentSpec

	data, err := os.ReadFile(path)
	if err != nil {
		return spec, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return spec, nil
}

// call sends body as JSON and decodes the response into out when non-nil.
func call(method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, strings.TrimRight(serverURL, "/")+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: clientTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr server.ErrorResponse
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %s: %s", apiErr.Error, apiErr.Detail)
		}
		return fmt.Errorf("server returned error: %s", strings.TrimSpace(string(data)))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
