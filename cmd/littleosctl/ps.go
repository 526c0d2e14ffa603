package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"os"

	"github.com/spf13/cobra"

	"github.com/littleos-dev/littleos/internal/sched"
)

// seedDemoTasks populates the task table with a small fixed set of
// cooperative tasks, standing in for the shell/init tasks a real boot
// would have already created by the time an operator runs `ps`.
func seedDemoTasks(tbl *sched.Table) {
	tbl.Create("idle", func(arg interface{}) {}, nil, sched.Low, sched.Core0, 0, 0)
	tbl.Create("shell", func(arg interface{}) {}, nil, sched.Normal, sched.Core0, 1000, 0)
	tbl.Create("supervisor-poll", func(arg interface{}) {}, nil, sched.High, sched.Core1, 0, 0)
}

func newPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "Boot the kernel, seed demo tasks, and list the task table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			k, err := bootKernel(ctx, cfg)
			if err != nil {
				return err
			}
			seedDemoTasks(k.tasks)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TASK\tNAME\tSTATE\tPRIORITY\tCORE\tUID")
			for _, d := range k.tasks.Snapshot() {
				fmt.Fprintf(w, "%d\t%s\t%v\t%v\t%v\t%d\n", d.TaskID, d.Name, d.State, d.Priority, d.Affinity, d.Security.UID)
			}
			return w.Flush()
		},
	}
}
