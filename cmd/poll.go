package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"smartcrawl/internal/poller"
)

// newPollCmd builds the client command: submit a URL to a running service
// and follow the job to a terminal state.
func newPollCmd() *cobra.Command {
	var (
		targetURL string
		serverURL string
	)

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Submits a URL to a running service and polls until done",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := poller.New(poller.Config{BaseURL: serverURL}, logger)
			var last poller.Update
			for update := range p.Run(cmd.Context(), targetURL) {
				last = update
				logger.Info("job update",
					zap.String("state", string(update.State)),
					zap.Float64("progress", update.Progress),
				)
			}
			switch last.State {
			case poller.StateSuccess:
				logger.Info("job completed", zap.Int("item_count", last.Result.ItemCount))
				return nil
			case poller.StateTimeout:
				return fmt.Errorf("gave up waiting for job; it may still be running server-side")
			default:
				return fmt.Errorf("job failed: %s", last.Err)
			}
		},
	}
	cmd.Flags().StringVarP(&targetURL, "url", "u", "", "URL to crawl")
	cmd.Flags().StringVarP(&serverURL, "server", "s", "http://localhost:3000", "Service base URL")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}
