package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/gptsh/pkg/config"
	"github.com/liliang-cn/gptsh/pkg/sessions"
)

func openStore(flags *rootFlags) (*sessions.Store, error) {
	var paths []string
	if flags.configFile != "" {
		paths = []string{flags.configFile}
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return nil, err
	}
	return sessions.NewStore(cfg.Sessions.Dir), nil
}

func newSessionsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List and manage saved chat sessions",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(flags)
			if err != nil {
				return err
			}
			all, err := store.List()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tID\tUPDATED\tAGENT\tMODEL\tTITLE")
			for i, s := range all {
				title := s.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					i, s.ID, s.UpdatedAt.Local().Format("2006-01-02 15:04"),
					s.Agent.Name, s.Agent.Model, title)
			}
			return w.Flush()
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <ref>",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(flags)
			if err != nil {
				return err
			}
			id, err := store.Resolve(args[0])
			if err != nil {
				return err
			}
			s, err := store.Load(id)
			if err != nil {
				return err
			}

			fmt.Printf("id:      %s\n", s.ID)
			if s.Title != "" {
				fmt.Printf("title:   %s\n", s.Title)
			}
			fmt.Printf("agent:   %s (%s)\n", s.Agent.Name, s.Agent.Model)
			fmt.Printf("updated: %s\n", s.UpdatedAt.Local().Format(time.RFC3339))
			fmt.Printf("usage:   %d tokens, $%.4f\n\n", s.Usage.Tokens.Total, s.Usage.Cost)

			for _, m := range s.Messages {
				switch {
				case len(m.ToolCalls) > 0:
					fmt.Printf("[assistant] %s\n", m.Content)
					for _, tc := range m.ToolCalls {
						fmt.Printf("  -> %s %s\n", tc.Function.Name, tc.Function.Arguments)
					}
				case m.Role == "tool":
					fmt.Printf("[tool %s] %s\n", m.ToolCallID, m.Content)
				default:
					fmt.Printf("[%s] %s\n", m.Role, m.Content)
				}
			}
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <ref>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(flags)
			if err != nil {
				return err
			}
			id, err := store.Resolve(args[0])
			if err != nil {
				return err
			}
			if err := store.Delete(id); err != nil {
				return err
			}
			fmt.Println("deleted", id)
			return nil
		},
	}

	var olderThanDays int
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete sessions not updated recently",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(flags)
			if err != nil {
				return err
			}
			removed, err := store.Cleanup(time.Duration(olderThanDays) * 24 * time.Hour)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d session(s)\n", removed)
			return nil
		},
	}
	cleanupCmd.Flags().IntVar(&olderThanDays, "older-than", 30, "delete sessions older than this many days")

	cmd.AddCommand(listCmd, showCmd, deleteCmd, cleanupCmd)
	return cmd
}
