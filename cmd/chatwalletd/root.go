package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"ChatWallet/internal/config"
)

const (
	configEnv         = "CHATWALLET_CONFIG"
	defaultConfigPath = "configs/chatwallet.json"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatwalletd",
		Short:         "Custodial wallet driven by chat messages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (.json, .yaml or .toml); defaults to $"+configEnv+" or "+defaultConfigPath)

	root.AddCommand(newServeCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newAirdropCmd())
	return root
}

// loadConfig resolves the config path from the flag, the environment and
// the conventional location, in that order. Without any file the built-in
// defaults are used.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return config.Load(defaultConfigPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.Default(filepath.Clean(wd)), nil
}
