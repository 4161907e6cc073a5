// cmd/run.go
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/driver"
	"github.com/xkilldash9x/pagedriver/internal/driver/cdp"
	"github.com/xkilldash9x/pagedriver/internal/observability"
)

var runURL string

// runCmd is the manual smoke tool: attach to a browser, optionally navigate,
// dispatch one command, print the correlated response as JSON.
var runCmd = &cobra.Command{
	Use:   "run <command> [params-json]",
	Short: "Dispatch a single driver command against a live page",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		host := cdp.NewHost(ctx, cfg.Browser, logger)
		defer host.Close()

		d, err := driver.New(cfg, host, logger)
		if err != nil {
			return err
		}

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		g, gctx := errgroup.WithContext(runCtx)
		g.Go(func() error { return d.Run(gctx) })

		if resp, err := d.Dispatch(gctx, schemas.CmdConnect, schemas.ConnectParams{}); err != nil {
			return err
		} else if !resp.OK {
			return fmt.Errorf("connect failed: %s", resp.Error)
		}
		if runURL != "" {
			if resp, err := d.Dispatch(gctx, schemas.CmdNavigate, schemas.NavigateParams{URL: runURL}); err != nil {
				return err
			} else if !resp.OK {
				return fmt.Errorf("navigate failed: %s", resp.Error)
			}
		}

		var params json.RawMessage
		if len(args) == 2 {
			params = json.RawMessage(args[1])
		}
		env := schemas.Envelope{ID: "cli-1", Command: args[0], Params: params}
		resp := <-d.Submit(env)

		out, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))

		if _, err := d.Dispatch(gctx, schemas.CmdDisconnect, nil); err != nil {
			logger.Debug("disconnect failed", zap.Error(err))
		}
		cancel()
		return g.Wait()
	},
}

func init() {
	runCmd.Flags().StringVar(&runURL, "url", "", "navigate to this URL before dispatching")
	rootCmd.AddCommand(runCmd)
}
