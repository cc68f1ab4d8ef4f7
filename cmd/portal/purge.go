package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Run the maintenance tasks once",
	Long:  `Delete expired permission grants and old dismissed notifications, then exit.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, closeApp, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer closeApp()

		counts, err := app.Worker.RunOnce(ctx)
		if err != nil {
			return err
		}

		tasks := make([]string, 0, len(counts))
		for task := range counts {
			tasks = append(tasks, task)
		}
		sort.Strings(tasks)
		for _, task := range tasks {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", task, counts[task])
		}
		return nil
	},
}
