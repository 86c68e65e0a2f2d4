// Command chatbench drives a load-generation and latency-measurement run
// against an OpenAI-compatible chat-completions endpoint, and writes the
// aggregated report to a JSON file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"chatbench/internal/config"
	"chatbench/internal/harness"
	"chatbench/internal/loader"
	"chatbench/internal/logging"
	"chatbench/internal/telemetry"
)

func main() {
	var (
		model        = flag.String("model", "", "model to force onto every request, overriding any inline value")
		filepath     = flag.String("filepath", "", "path to the line-delimited JSON input file")
		concurrency  = flag.Int("concurrency", 1, "number of concurrent workers")
		outputFile   = flag.String("output-file", "output.json", "path to write the aggregated JSON report")
		logResponses = flag.Bool("log-responses", false, "append each response's content/tool-calls to responses.jsonl")
		configPath   = flag.String("config", "", "optional YAML configuration overlay")
		verbose      = flag.Bool("verbose", false, "enable debug-level logging")
	)
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	log := logging.Init("", level)

	cfg, err := config.Load(*configPath, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatbench: config error: %v\n", err)
		os.Exit(1)
	}

	if *model != "" {
		cfg.OpenAI.Model = *model
	}
	if *filepath != "" {
		cfg.Run.Filepath = *filepath
	}
	if *concurrency > 0 {
		cfg.Run.Concurrency = *concurrency
	}
	if *outputFile != "" {
		cfg.Run.OutputFile = *outputFile
	}
	if *logResponses {
		cfg.Run.LogResponses = true
	}

	if cfg.Run.Filepath == "" {
		fmt.Fprintln(os.Stderr, "chatbench: config error: -filepath is required")
		os.Exit(1)
	}

	payloads, err := loader.Load(cfg.Run.Filepath, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatbench: config error: %v\n", err)
		os.Exit(1)
	}

	var responses *harness.AsyncWriter
	if cfg.Run.LogResponses {
		responses, err = harness.NewAsyncWriter("responses.jsonl")
		if err != nil {
			fmt.Fprintf(os.Stderr, "chatbench: config error: opening response log: %v\n", err)
			os.Exit(1)
		}
		defer responses.Close()
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAI.APIKey)}
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	client := sdk.NewClient(opts...)

	memory := harness.NewConversationMemory(cfg.Run.MaxHistory)
	requester := harness.NewRequester(client, cfg.OpenAI.Model, memory, responses, log)

	queue := harness.NewSessionQueue(payloads)
	pool := harness.NewPool(queue, cfg.Run.Concurrency, func(ctx context.Context, p harness.RequestPayload) (harness.RequestStatistics, error) {
		return requester.Send(ctx, p, true)
	})

	ctx := context.Background()
	records, err := pool.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatbench: config error: %v\n", err)
		os.Exit(1)
	}

	report := harness.Aggregate(records)
	if err := harness.SaveToJSON(report, cfg.Run.OutputFile); err != nil {
		fmt.Fprintf(os.Stderr, "chatbench: config error: writing report: %v\n", err)
		os.Exit(1)
	}

	if err := telemetry.RecordRun(ctx, cfg.Telemetry, report); err != nil {
		log.Warn().Err(err).Msg("telemetry_export_failed")
	}

	log.Info().Int("requests", len(records)).Str("output_file", cfg.Run.OutputFile).Msg("run_complete")
}
