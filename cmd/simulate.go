package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/irrigo/config"
	"github.com/kilianp07/irrigo/infra/logger"
	"github.com/kilianp07/irrigo/simulator"
)

var simBroker string

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run an irrigation station simulator against a broker",
	RunE:  simulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simBroker, "broker", "", "MQTT broker URL, overrides simulator.broker")
	rootCmd.AddCommand(simulateCmd)
}

func simulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var simCfg simulator.Config
	if _, err := os.Stat(cfgPath); err == nil {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		simCfg = cfg.Simulator
		if err := logger.SetLevel(cfg.Logging.Level); err != nil {
			return err
		}
	}
	if simBroker != "" {
		simCfg.Broker = simBroker
	}
	return simulator.New(simCfg, logger.New("simulator")).Run(ctx)
}
