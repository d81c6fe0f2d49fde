package main

// #region imports
import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/regen-loop/internal/replay"
)

// #endregion

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to replay fixture JSON")
	jsonOut := flag.Bool("json", false, "output results as JSON instead of a table")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json [--json]")
		os.Exit(2)
	}

	fixture, err := replay.LoadFixture(*fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	results, summary, err := replay.Run(context.Background(), fixture)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *jsonOut {
		out := struct {
			Results []replay.Result `json:"results"`
			Summary replay.Summary  `json:"summary"`
		}{results, summary}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	} else {
		printTable(results, summary)
	}

	if summary.Mismatches > 0 {
		os.Exit(1)
	}
}

// #endregion main

// #region table

func printTable(results []replay.Result, summary replay.Summary) {
	fmt.Printf("fixture: %s\n\n", summary.Fixture)
	fmt.Printf("%-5s %-14s %-14s %-6s %s\n", "cycle", "verdict", "expected", "match", "reason")
	for _, r := range results {
		expected := string(r.Expected)
		if expected == "" {
			expected = "-"
		}
		match := "ok"
		if !r.Match {
			match = "FAIL"
		}
		fmt.Printf("%-5d %-14s %-14s %-6s %s\n",
			r.Index, r.Record.Verdict, expected, match, r.Record.Reason)
	}
	fmt.Printf("\n%d cycles, %d matched, %d mismatched\n",
		summary.Total, summary.Matches, summary.Mismatches)
}

// #endregion
