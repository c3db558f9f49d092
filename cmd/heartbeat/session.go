package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/heartbeat/internal/app"
	"github.com/ayusman/heartbeat/internal/server/api"
	"github.com/ayusman/heartbeat/internal/store"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage measurement sessions in the local store",
}

var sessionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Open a session and print its token",
	Args:  cobra.NoArgs,
	RunE: withStore(func(cmd *cobra.Command, st *store.Store, args []string) error {
		sess, err := st.Sessions().Open()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sess.ID)
		return nil
	}),
}

var sessionGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print the latest BPM of a session",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(cmd *cobra.Command, st *store.Store, args []string) error {
		bpm, err := st.Sessions().GetBPM(args[0])
		if err != nil {
			return fmt.Errorf("session %s: %w", args[0], err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), app.FormatBPM(bpm))
		return nil
	}),
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close a session",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(cmd *cobra.Command, st *store.Store, args []string) error {
		if err := st.Sessions().Close(args[0]); err != nil {
			return fmt.Errorf("session %s: %w", args[0], err)
		}
		return nil
	}),
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: withStore(func(cmd *cobra.Command, st *store.Store, args []string) error {
		sessions, err := st.Sessions().List()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tBPM\tCREATED\tSTATE")
		for _, s := range sessions {
			state := "open"
			if !s.Open() {
				state = "closed"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, app.FormatBPM(s.BPM), s.CreatedAt.Local().Format(time.DateTime), state)
		}
		return w.Flush()
	}),
}

var sessionChartOut string

var sessionChartCmd = &cobra.Command{
	Use:   "chart <id>",
	Short: "Render the BPM history of a session to a .png or .html file",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(cmd *cobra.Command, st *store.Store, args []string) error {
		series, err := api.SessionSeries(st.Sessions(), args[0])
		if err != nil {
			return fmt.Errorf("session %s: %w", args[0], err)
		}
		if err := writeChart(sessionChartOut, series); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Chart written to %s\n", sessionChartOut)
		return nil
	}),
}

// withStore opens the configured store around fn.
func withStore(fn func(cmd *cobra.Command, st *store.Store, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		st, err := store.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		defer st.Close()
		return fn(cmd, st, args)
	}
}

func init() {
	sessionChartCmd.Flags().StringVarP(&sessionChartOut, "out", "o", "session.html", "Output file (.png or .html)")

	sessionCmd.AddCommand(sessionNewCmd, sessionGetCmd, sessionCloseCmd, sessionListCmd, sessionChartCmd)
	rootCmd.AddCommand(sessionCmd)
}
