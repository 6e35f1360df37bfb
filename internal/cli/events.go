package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-content/internal/platform/envutil"
	"github.com/yungbote/neurobridge-content/internal/realtime/bus"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print job stage and status events as JSON lines",
	Long: `Subscribes to the job event channel (REDIS_ADDR, REDIS_CHANNEL) and prints every event
until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	if envutil.String("REDIS_ADDR", "") == "" {
		return fmt.Errorf("REDIS_ADDR is required to follow job events")
	}
	b, err := bus.NewFromEnv(log)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, stop := signalContext()
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	if err := b.StartForwarder(ctx, func(ev bus.JobEvent) {
		if err := enc.Encode(ev); err != nil {
			log.Warn("write event failed", "error", err)
		}
	}); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
