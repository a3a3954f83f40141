package ctl

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jleaniz/turbinia/internal/pkg/client"
	"github.com/jleaniz/turbinia/internal/pkg/store"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

type filterFlags struct {
	RequestID string
	TaskID    string
	User      string
	Since     time.Duration
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.RequestID, "request-id", "r", "", "Filter by request ID.")
	cmd.Flags().StringVarP(&f.TaskID, "task-id", "t", "", "Filter by task ID.")
	cmd.Flags().StringVarP(&f.User, "user", "u", "", "Filter by requester.")
	cmd.Flags().DurationVar(&f.Since, "since", 0, "Only tasks updated within the duration, 0 means no limit.")
}

func (f *filterFlags) filter(root *RootCommand) store.Filter {
	out := store.Filter{RequestID: f.RequestID, TaskID: f.TaskID, User: f.User}
	if f.Since > 0 {
		out.Since = root.clock().Now().Add(-f.Since)
	}
	return out
}

func StatusCommand(root *RootCommand) *cobra.Command {
	f := &filterFlags{}
	opts := client.DefaultStatusOptions()
	var priority int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print status of tasks.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.PriorityFilter = task.Priority(priority)
			out, err := root.client.FormatTaskStatus(cmd.Context(), f.filter(root), opts)
			if err != nil {
				return err
			}
			if out == "" {
				out = "No tasks found"
			}
			fmt.Fprintln(cmd.OutOrStdout(), out) // nolint:forbidigo
			return nil
		},
	}
	f.bind(cmd)
	cmd.Flags().BoolVarP(&opts.AllFields, "all-fields", "a", false, "Print saved paths of tasks.")
	cmd.Flags().BoolVarP(&opts.FullReport, "full-report", "R", false, "Print report data of high priority tasks.")
	cmd.Flags().IntVarP(&priority, "priority-filter", "p", int(task.PriorityHigh), "Highest priority value reported as high priority.")
	return cmd
}

func StatisticsCommand(root *RootCommand) *cobra.Command {
	f := &filterFlags{}
	var csv bool
	cmd := &cobra.Command{
		Use:   "statistics",
		Short: "Print execution time statistics of tasks.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := root.client.FormatTaskStatistics(cmd.Context(), f.filter(root), csv)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out) // nolint:forbidigo
			return nil
		},
	}
	f.bind(cmd)
	cmd.Flags().BoolVar(&csv, "csv", false, "Print statistics in the CSV format.")
	return cmd
}

func WaitCommand(root *RootCommand) *cobra.Command {
	var requestID, user string
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait until all tasks of the request are finished.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestID == "" {
				return errors.New("request id must be specified")
			}
			return root.client.WaitForRequest(cmd.Context(), requestID, user, interval)
		},
	}
	cmd.Flags().StringVarP(&requestID, "request-id", "r", "", "Request ID.")
	cmd.Flags().StringVarP(&user, "user", "u", "", "Filter by requester.")
	cmd.Flags().DurationVar(&interval, "poll-interval", client.DefaultPollInterval, "Interval of the status check.")
	return cmd
}

func CloseCommand(root *RootCommand) *cobra.Command {
	f := &filterFlags{}
	var requester string
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Mark unfinished tasks as failed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			closed, err := root.client.CloseTasks(cmd.Context(), f.filter(root), requester)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Closed %d task(s)\n", len(closed)) // nolint:forbidigo
			return nil
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&requester, "requester", "turbiniactl", "Name written to the status of closed tasks.")
	return cmd
}
