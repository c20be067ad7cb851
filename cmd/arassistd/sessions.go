package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/szaher/arassist/internal/session"
)

func newSessionsCmd() *cobra.Command {
	var contextDir string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect persisted session records",
	}
	cmd.PersistentFlags().StringVar(&contextDir, "context-dir", "contexts", "Session record directory")

	list := &cobra.Command{
		Use:   "list",
		Short: "List session records",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := os.ReadDir(contextDir)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("No sessions found.")
					return nil
				}
				return err
			}

			store := session.NewFileStore(contextDir)
			var ids []string
			for _, entry := range entries {
				if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
					continue
				}
				ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
			}
			sort.Strings(ids)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tTASK\tSTEP\tFOLLOW-UPS\tUPDATED")
			for _, id := range ids {
				record, err := store.Load(id)
				if err != nil {
					fmt.Fprintf(w, "%s\t(unreadable: %v)\t\t\t\n", id, err)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					record.SessionID, record.Task, record.Step,
					len(record.FollowUpQA), record.Timestamp.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	show := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print one session record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := session.NewFileStore(contextDir)
			record, err := store.Load(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(record)
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}
