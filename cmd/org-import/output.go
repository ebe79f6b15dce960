package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/iota-uz/org-import/modules/orgimport/services/progress"
)

func writeJSONLine(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return withCode(exitDB, fmt.Errorf("json encode: %w", err))
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, withCode(exitUsage, fmt.Errorf("--file is required"))
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("read %s: %w", path, err))
	}
	return b, nil
}

// progressPrinter writes one line per stage change or progress step.
// Subscribers may be called from several wave workers at once.
func progressPrinter(w io.Writer) func(progress.State) {
	var (
		mu   sync.Mutex
		last progress.State
	)
	return func(s progress.State) {
		mu.Lock()
		defer mu.Unlock()
		if s.Stage == last.Stage && s.Progress == last.Progress {
			return
		}
		last = s
		if s.Message != "" {
			fmt.Fprintf(w, "%-10s %3d%% %s\n", s.Stage, s.Progress, s.Message)
			return
		}
		fmt.Fprintf(w, "%-10s %3d%%\n", s.Stage, s.Progress)
	}
}
