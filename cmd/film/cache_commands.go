package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the resolution cache",
	}
	cmd.AddCommand(newCacheListCommand(ctx))
	cmd.AddCommand(newCacheInvalidateCommand(ctx))
	return cmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached content IDs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.playlistCache()
			if err != nil {
				return err
			}
			entries := cache.List()
			return ctx.emit(cmd, entries, func(w io.Writer) error {
				if len(entries) == 0 {
					fmt.Fprintln(w, "Cache is empty")
					return nil
				}
				fmt.Fprintln(w, cacheTable(entries, time.Now()))
				return nil
			})
		},
	}
}

func newCacheInvalidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate [imdb-id]",
		Short: "Drop one cached entry, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.playlistCache()
			if err != nil {
				return err
			}
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			removed, err := cache.Invalidate(id)
			if err != nil {
				return err
			}
			return ctx.emit(cmd, map[string]int{"removed": removed}, func(w io.Writer) error {
				fmt.Fprintf(w, "Removed %d cache entries\n", removed)
				return nil
			})
		},
	}
}
