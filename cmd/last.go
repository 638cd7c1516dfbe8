package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/irrigo/config"
	"github.com/kilianp07/irrigo/infra/store"
)

var lastCmd = &cobra.Command{
	Use:   "last <tenant> <station>",
	Short: "Print the last cached reading of a station",
	Args:  cobra.ExactArgs(2),
	RunE:  last,
}

func init() {
	rootCmd.AddCommand(lastCmd)
}

func last(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rc, ok, err := cfg.Storage.RedisBackend()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("no redis backend configured in storage.backends")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	cache, err := store.NewRedisCache(ctx, rc)
	if err != nil {
		return err
	}
	defer cache.Close()

	r, found, err := cache.Last(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no reading cached for %s/%s", args[0], args[1])
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
