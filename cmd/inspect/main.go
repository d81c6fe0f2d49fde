package main

// #region imports
import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/regen-loop/internal/audit"
	"github.com/danielpatrickdp/regen-loop/internal/cycle"
	"github.com/danielpatrickdp/regen-loop/internal/store"
	"github.com/danielpatrickdp/regen-loop/internal/strategy"
)

// #endregion

// #region main

func main() {
	dbPath := flag.String("db", "", "path to regen-loop.db")
	system := flag.String("system", "", "system to inspect")
	last := flag.Int("last", 10, "show N most recent cycle records")
	cycleID := flag.String("cycle", "", "show the decision log for one cycle")
	jsonOut := flag.Bool("json", false, "output as JSON instead of a table")
	flag.Parse()

	if *dbPath == "" || (*system == "" && *cycleID == "") {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/regen-loop.db (--system id [--last N] | --cycle id) [--json]")
		os.Exit(2)
	}

	st, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if *cycleID != "" {
		err = runDecisionMode(st, *cycleID, *jsonOut)
	} else {
		err = runSystemMode(st, *system, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region system-mode

func runSystemMode(st *store.Store, system string, last int, jsonOut bool) error {
	charters, err := st.CharterVersions(system, 5)
	if err != nil {
		return err
	}
	rows, err := st.ListCycleRecords(system, last)
	if err != nil {
		return err
	}

	if jsonOut {
		out := struct {
			Charters interface{}      `json:"charters"`
			Cycles   []store.CycleRow `json:"cycles"`
		}{charters, rows}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("system: %s\n\ncharter versions:\n", system)
	for _, ch := range charters {
		fmt.Printf("  v%-3d created %s thresholds=%v\n",
			ch.Version, ch.CreatedAt.Format("2006-01-02 15:04:05"), ch.Thresholds)
	}

	fmt.Printf("\nrecent cycles:\n")
	fmt.Printf("  %-36s %-12s %-12s %s\n", "cycle", "verdict", "class", "ended")
	for _, row := range rows {
		fmt.Printf("  %-36s %-12s %-12s %s\n",
			row.CycleID, row.Verdict, row.FailureClass, row.EndedAt.Format("2006-01-02 15:04:05"))
	}

	fmt.Printf("\ntemplate success rates:\n")
	for _, tpl := range strategy.Templates {
		rate, n, err := st.TemplateSuccessRate(system, tpl.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		fmt.Printf("  %-18s %.2f over %d outcomes\n", tpl.ID, rate, n)
	}
	return nil
}

// #endregion

// #region decision-mode

func runDecisionMode(st *store.Store, cycleID string, jsonOut bool) error {
	entries, err := audit.ListDecisions(st.DB(), cycleID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no decisions recorded for cycle %s", cycleID)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	fmt.Printf("cycle: %s system: %s\n\n", cycleID, entries[0].SystemID)
	for _, e := range entries {
		fmt.Printf("  %-10s %-24s %s\n", e.Stage, e.Decision, e.Reason)
	}

	rows, err := st.ListCycleRecords(entries[0].SystemID, 50)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.CycleID != cycleID {
			continue
		}
		var rec cycle.CycleRecord
		if err := json.Unmarshal([]byte(row.RecordJSON), &rec); err != nil {
			return err
		}
		fmt.Printf("\nverdict: %s class: %s\nreason: %s\n", rec.Verdict, rec.FailureClass, rec.Reason)
		break
	}
	return nil
}

// #endregion
