package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/littleos-dev/littleos/internal/block"
	"github.com/littleos-dev/littleos/internal/clockutil"
	"github.com/littleos-dev/littleos/internal/lfs"
)

func newFormatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "format",
		Short: "Format a fresh in-memory filesystem and print its layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			clock := clockutil.NewSystem()
			fsBlocks := cfg.Device.FilesystemBlocks()
			dev := block.NewMemory(cfg.Device.TotalBlocks)
			if err := lfs.Format(ctx, dev, clock, fsBlocks); err != nil {
				return fmt.Errorf("format: %w", err)
			}
			fs, err := lfs.Mount(ctx, dev, clock)
			if err != nil {
				return fmt.Errorf("mount after format: %w", err)
			}
			defer fs.Unmount(ctx)

			st := fs.StatfsInfo()
			fmt.Printf("formatted %d blocks (%d reserved for kvstore)\n", cfg.Device.TotalBlocks, cfg.Device.KVBlocks)
			fmt.Printf("total_blocks=%d free_blocks=%d total_inodes=%d free_inodes=%d\n",
				st.TotalBlocks, st.FreeBlocks, st.TotalInodes, st.FreeInodes)
			return nil
		},
	}
}
