// Command assay evaluates student answers against model answers from the
// command line (evaluate, batch, models, stats).
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	assay "github.com/klejdi94/assay"
	"github.com/klejdi94/assay/analytics"
	"github.com/klejdi94/assay/config"
	"github.com/klejdi94/assay/core"
	"github.com/klejdi94/assay/evaluator"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (default: built-in defaults, ASSAY_* env overrides)")
	jsonOut := flag.Bool("json", false, "Print results as JSON")
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := assay.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	pipe, err := assay.Open(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pipeline:", err)
		os.Exit(1)
	}
	defer pipe.Close()

	ctx := context.Background()
	cmd := args[0]
	rest := args[1:]
	switch cmd {
	case "evaluate":
		evaluate(ctx, pipe.Evaluator, rest, *jsonOut)
	case "batch":
		batch(ctx, pipe.Evaluator, rest, *jsonOut)
	case "models":
		models(ctx, pipe.Evaluator, *jsonOut)
	case "stats":
		stats(ctx, pipe.Store, rest, *jsonOut)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: assay [ -config <file> ] [ -json ] <command> [args]

Commands:
  evaluate <model-answer> <student-answer> [question]
                          Evaluate one answer pair (no args: JSON request from stdin)
  batch <file>            Evaluate requests from a file ("-" for stdin);
                          accepts a JSON array, {"evaluations": [...]} or JSON lines
  models                  Show configured models and their readiness
  stats [group-by]        Show evaluation aggregates (embedder, day, hour)

Config: built-in defaults, then YAML from -config or ASSAY_CONFIG_PATH, then ASSAY_* env
`)
}

func evaluate(ctx context.Context, ev *evaluator.Evaluator, args []string, jsonOut bool) {
	var req core.EvaluationRequest
	if len(args) == 0 {
		if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
			fmt.Fprintln(os.Stderr, "decode:", err)
			os.Exit(1)
		}
	} else {
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "evaluate requires <model-answer> <student-answer> [question]")
			os.Exit(1)
		}
		req.ModelAnswer = args[0]
		req.StudentAnswer = args[1]
		if len(args) >= 3 {
			req.Question = args[2]
		}
	}
	res, err := ev.Evaluate(ctx, req)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if jsonOut {
		printJSON(res)
		return
	}
	fmt.Printf("Score:      %.1f/5\n", res.Score)
	fmt.Printf("Similarity: %.3f (%.1f%%)\n", res.Similarity, res.Percent())
	fmt.Printf("Feedback:   %s\n", res.Feedback)
}

func batch(ctx context.Context, ev *evaluator.Evaluator, args []string, jsonOut bool) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "batch requires <file> (\"-\" for stdin)")
		os.Exit(1)
	}
	reqs, err := readRequests(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	report := ev.EvaluateBatch(ctx, reqs)
	if jsonOut {
		printJSON(batchOutput(report))
	} else {
		for _, item := range report.Results {
			if item.Err != nil {
				fmt.Printf("%d\terror\t%v\n", item.Index, item.Err)
				continue
			}
			fmt.Printf("%d\t%.1f\t%.3f\t%s\n", item.Index, item.Result.Score, item.Result.Similarity, item.Result.Feedback)
		}
		fmt.Fprintf(os.Stderr, "%d evaluated, %d failed in %s\n", report.Succeeded, report.Failed, report.Duration.Round(time.Millisecond))
	}
	if report.Failed > 0 {
		os.Exit(1)
	}
}

// readRequests loads evaluation requests from path. It accepts a JSON array,
// an {"evaluations": [...]} object as posted to the batch endpoint, or one
// JSON object per line.
func readRequests(path string) ([]core.EvaluationRequest, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("no requests in %s", path)
	}
	switch raw[0] {
	case '[':
		var reqs []core.EvaluationRequest
		if err := json.Unmarshal(raw, &reqs); err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
		return reqs, nil
	case '{':
		// A single object is either the batch-endpoint wrapper or the first
		// of several JSON lines.
		if !bytes.Contains(raw, []byte("\n")) {
			var wrapper struct {
				Evaluations []core.EvaluationRequest `json:"evaluations"`
			}
			if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Evaluations != nil {
				return wrapper.Evaluations, nil
			}
			var req core.EvaluationRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, fmt.Errorf("decode request: %w", err)
			}
			return []core.EvaluationRequest{req}, nil
		}
	}
	var reqs []core.EvaluationRequest
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var req core.EvaluationRequest
		if err := json.Unmarshal(text, &req); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		reqs = append(reqs, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}

type batchItemOutput struct {
	Index      int     `json:"index"`
	Score      float64 `json:"score,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`
	Feedback   string  `json:"feedback,omitempty"`
	Error      string  `json:"error,omitempty"`
}

type batchReportOutput struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Results   []batchItemOutput `json:"results"`
}

func batchOutput(report *evaluator.BatchReport) batchReportOutput {
	out := batchReportOutput{
		Total:     report.Total,
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		Results:   make([]batchItemOutput, 0, len(report.Results)),
	}
	for _, item := range report.Results {
		o := batchItemOutput{Index: item.Index}
		if item.Err != nil {
			o.Error = item.Err.Error()
		} else {
			o.Score = item.Result.Score
			o.Similarity = item.Result.Similarity
			o.Feedback = item.Result.Feedback
		}
		out.Results = append(out.Results, o)
	}
	return out
}

func models(ctx context.Context, ev *evaluator.Evaluator, jsonOut bool) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	embReady := ev.EmbedderReady(pingCtx)
	llmReady := ev.FeedbackReady(pingCtx)
	if jsonOut {
		printJSON(map[string]interface{}{
			"embeddings_model": ev.EmbedderModel(),
			"embeddings_ready": embReady,
			"llm_model":        ev.FeedbackModel(),
			"llm_ready":        llmReady,
		})
		return
	}
	fmt.Printf("embeddings\t%s\t%s\n", ev.EmbedderModel(), readiness(embReady))
	llmModel := ev.FeedbackModel()
	if llmModel == "" {
		fmt.Printf("llm\t-\tnot configured\n")
	} else {
		fmt.Printf("llm\t%s\t%s\n", llmModel, readiness(llmReady))
	}
}

func readiness(ready bool) string {
	if ready {
		return "ready"
	}
	return "not ready"
}

func stats(ctx context.Context, store analytics.Store, args []string, jsonOut bool) {
	if store == nil {
		fmt.Fprintln(os.Stderr, "no analytics store configured (set analytics.store)")
		os.Exit(1)
	}
	groupBy := "embedder"
	if len(args) >= 1 {
		groupBy = args[0]
	}
	aggs, err := store.Query(ctx, analytics.Query{GroupBy: groupBy, Limit: 100})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if jsonOut {
		printJSON(aggs)
		return
	}
	for _, a := range aggs {
		fmt.Printf("%s\truns=%d\tdegraded=%d\tavg_score=%.2f\tavg_similarity=%.3f\tavg_latency=%.0fms\n",
			a.Key, a.Runs, a.DegradedCount, a.AvgScore, a.AvgSimilarity, a.AvgLatencyMs)
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
