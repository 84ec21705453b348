package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"cheatwatch/internal/core"
	"cheatwatch/internal/platform"
	"cheatwatch/internal/stages"
	"cheatwatch/internal/utils"
)

func runScan(cmd *cobra.Command, args []string) error {
	env, err := setup(true)
	if err != nil {
		return err
	}
	defer env.log.Close()

	cfg := env.cfg
	if timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid --timeout: %w", err)
		}
		cfg.Scan.Timeout = d
	}
	if concurrent {
		cfg.Scan.Concurrent = true
	}
	if noCase {
		cfg.Scan.WriteCase = false
	}

	if !jsonOutput {
		if isTerminal() {
			fmt.Println(banner)
		}
		if hint := utils.ElevationHint(utils.IsAdmin()); hint != "" {
			fmt.Printf("[!] WARNING: %s\n", hint)
		}
		fmt.Println("[*] Logs:", cfg.Logging.LogDir)
	}

	// Ctrl+C cancels cooperatively; the scan stops at its next safe point.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := stages.Setup{Env: platform.CurrentEnv(), Logger: env.logger}
	if !jsonOutput {
		s.Emitters = []core.Emitter{consoleTriggers()}
		s.OnProgress = consoleProgress(os.Stdout)
	}
	orch := stages.NewFromConfig(cfg, s)

	res, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	switch res.State {
	case stages.StateFailed:
		return fmt.Errorf("scan failed: %w", res.Err)

	case stages.StateCancelled:
		events := orch.Events()
		if jsonOutput {
			return writeJSON(map[string]any{"scan_id": res.ScanID, "state": res.State, "events": events})
		}
		fmt.Printf("\n[!] Scan %s. %d events were recorded before it stopped; no risk score was computed.\n",
			orch.Status().Text, len(events))
		return nil
	}

	report, ok := orch.Report()
	if !ok {
		return fmt.Errorf("scan %s produced no report", res.State)
	}
	if jsonOutput {
		return core.WriteJSONReport(os.Stdout, report)
	}
	fmt.Println()
	if err := core.WriteTextReport(os.Stdout, report); err != nil {
		return err
	}
	fmt.Printf("\n[+] SCAN COMPLETED in %s.\n", res.Duration.Round(time.Millisecond))
	if res.CaseDir != "" {
		fmt.Printf("[*] Case saved to: %s\n", res.CaseDir)
	}
	return nil
}

// consoleProgress prints one line the first time each phase reports.
// Concurrent scans interleave their phases, so later repeats are dropped.
func consoleProgress(w io.Writer) func(stages.Status) {
	var mu sync.Mutex
	seen := make(map[stages.Phase]bool)
	return func(st stages.Status) {
		mu.Lock()
		defer mu.Unlock()
		if st.Phase == "" || seen[st.Phase] {
			return
		}
		seen[st.Phase] = true
		fmt.Fprintf(w, "\n[PHASE] %s (%.0f%%)...\n", st.Phase, st.Percent)
	}
}

func consoleTriggers() core.Emitter {
	var mu sync.Mutex
	return core.EmitterFunc(func(ev core.Event) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Println("    " + core.TriggerLine(ev))
	})
}

func runReport(cmd *cobra.Command, args []string) error {
	env, err := setup(true)
	if err != nil {
		return err
	}
	defer env.log.Close()

	entries, err := os.ReadDir(env.dirs.Cases)
	if err != nil {
		return fmt.Errorf("read cases: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	if len(ids) == 0 {
		fmt.Println("[-] No cases stored in", env.dirs.Cases)
		return nil
	}
	// Case IDs start with the scan time, so lexical order is chronological.
	sort.Strings(ids)

	id := ids[len(ids)-1]
	if len(args) == 1 {
		id = args[0]
	}
	data, err := os.ReadFile(filepath.Join(env.dirs.Cases, id, "report.txt"))
	if err != nil {
		return fmt.Errorf("read case %s: %w", id, err)
	}
	os.Stdout.Write(data)
	return nil
}

func runIndicators(cmd *cobra.Command, args []string) error {
	env, err := setup(true)
	if err != nil {
		return err
	}
	defer env.log.Close()

	set, err := env.cfg.BuildIndicators(env.logger)
	if err != nil {
		return err
	}
	w, c := set.Weights(), set.Ceilings()
	fmt.Println("[+] Indicators:", set.Stats())
	fmt.Printf("[*] Weights: hash=%d keyword=%d site=%d auth_bonus=%d server=%d channel=%d chat_keyword=%d\n",
		w.HashMatch, w.Keyword, w.BlacklistSite, w.AuthBonus, w.ChatServer, w.ChatChannel, w.ChatKeyword)
	fmt.Printf("[*] Ceilings: hash=%d browser=%d chat=%d\n", c.Hash, c.Browser, c.Chat)
	return nil
}

func isTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
