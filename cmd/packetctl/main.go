package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lk2023060901/danmu-netcodec/application"
	"github.com/lk2023060901/danmu-netcodec/pkg/log"
)

func main() {
	app := application.New()
	var (
		configPath string
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:   "packetctl",
		Short: "Inspect and exercise the netcodec packet dispatcher",
		Long: `packetctl drives the netcodec packet dispatcher over UDP.

  hash    print the 64-bit FNV-1 type id of packet type names
  serve   run a relay server that echoes pings and rebroadcasts chat
  send    send chat and ping packets to a running server`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var args []string
			if configPath != "" {
				args = []string{"--config", configPath}
			}
			if err := app.RunArgs(args); err != nil {
				return err
			}
			if verbose {
				log.SetLevel(zapcore.DebugLevel)
			}
			if _, err := maxprocs.Set(maxprocs.Logger(log.S().Debugf)); err != nil {
				log.Warn("set GOMAXPROCS failed", zap.Error(err))
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level regardless of log.level")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml or $NETCODEC_CONFIG_FILE_PATH)")

	rootCmd.AddCommand(
		hashCmd(),
		serveCmd(app),
		sendCmd(app),
	)

	err := rootCmd.Execute()
	_ = log.Sync()
	log.Cleanup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
