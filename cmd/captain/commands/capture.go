package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/captain/internal/config"
	"github.com/bryanchriswhite/captain/internal/logger"
	"github.com/bryanchriswhite/captain/internal/region"
	"github.com/bryanchriswhite/captain/internal/workflow"
	"github.com/spf13/cobra"
)

var captureCmd = &cobra.Command{
	Use:   "capture NAME",
	Short: "Run a workflow once",
	Long: `Run the named workflow from the command line.

Still workflows capture immediately. Motion workflows record until the
duration elapses or until interrupted with Ctrl+C. Manual regions use
--region when given and the whole desktop otherwise.`,
	Example: `  # Take a screenshot with the default workflow
  captain capture Screenshot

  # Capture a specific rectangle
  captain capture Screenshot --region 100,100,800,600

  # Record ten seconds
  captain capture Recording --duration 10s`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

var (
	captureDuration time.Duration
	captureRegion   string
	captureFPS      int
)

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().DurationVarP(&captureDuration, "duration", "d", 0, "recording length for motion workflows (default: until interrupted)")
	captureCmd.Flags().StringVarP(&captureRegion, "region", "r", "", "manual region as x,y,width,height")
	captureCmd.Flags().IntVar(&captureFPS, "fps", defaultFPS, "maximum recording frame rate (0 disables the cap)")
}

func runCapture(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("capture")

	configMgr, err := loadConfig()
	if err != nil {
		return err
	}

	wf, err := configMgr.Workflow(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if captureRegion != "" {
		area, err := region.ParseRect(captureRegion)
		if err != nil {
			return err
		}
		ctx = region.WithArea(ctx, area)
	}

	events := &workflow.EventLog{}
	env, screen, err := newEnvironment(configMgr, events, captureFPS)
	if err != nil {
		return err
	}
	defer screen.Close()

	w := workflow.New(wf, env)
	defer w.Close()

	if err := w.Start(ctx, "cli"); err != nil {
		return err
	}

	if wf.Type == config.Motion && w.Phase() == workflow.AwaitingStartIntent {
		if err := w.HandleIntent(workflow.IntentStart); err != nil {
			return err
		}
		log.Info().Msg("Recording, press Ctrl+C to stop")

		if captureDuration > 0 {
			select {
			case <-time.After(captureDuration):
			case <-ctx.Done():
			}
		} else {
			<-ctx.Done()
		}

		if err := w.HandleIntent(workflow.IntentStop); err != nil {
			return err
		}
	}

	for _, e := range events.Events() {
		if e.Type == workflow.EventAborted {
			log.Info().Str("reason", e.Reason).Msg("Capture dismissed")
		}
	}
	for _, u := range w.Outputs() {
		fmt.Println(u.String())
	}
	return nil
}
