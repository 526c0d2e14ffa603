package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newDfCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "df",
		Short: "Boot the kernel and report filesystem and heap usage",
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

			st := k.fs.StatfsInfo()
			fmt.Printf("filesystem: %d/%d blocks free, %d/%d inodes free\n",
				st.FreeBlocks, st.TotalBlocks, st.FreeInodes, st.TotalInodes)

			mstats := k.mem.GetStats()
			fmt.Printf("kernel heap:      %d used / %d free (peak %d)\n", mstats.Kernel.Used, mstats.Kernel.Free, mstats.Kernel.Peak)
			fmt.Printf("interpreter heap: %d used / %d free (peak %d)\n", mstats.Interpreter.Used, mstats.Interpreter.Free, mstats.Interpreter.Peak)

			kvstat := k.kv.Stats()
			fmt.Printf("kvstore: %+v\n", kvstat)
			return nil
		},
	}
}
