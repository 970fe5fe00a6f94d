package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the JSONL audit log",
	}
	cmd.AddCommand(auditTailCmd())
	return cmd
}

func auditTailCmd() *cobra.Command {
	var dataDir string
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the last N audit records from today's log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(dataDir, "logs", fmt.Sprintf("webhooks_%s.json", time.Now().UTC().Format("2006-01-02")))
			lines, err := readLines(path)
			if err != nil {
				return fmt.Errorf("audit tail: %w", err)
			}
			if n > 0 && len(lines) > n {
				lines = lines[len(lines)-n:]
			}
			for _, line := range lines {
				var rec map[string]any
				if err := json.Unmarshal([]byte(line), &rec); err != nil {
					continue
				}
				printSummary(cmd, rec)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "audit log data directory")
	cmd.Flags().IntVar(&n, "n", 20, "number of trailing records to print")
	return cmd
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

func printSummary(cmd *cobra.Command, rec map[string]any) {
	fmt.Fprintf(cmd.OutOrStdout(), "%v\t%v\t%v\tsuccess=%v\t%v\n",
		rec["repository_full_name"], rec["event_type"], rec["action"], rec["success"], rec["summary"])
}
