// Command keyserverd is the thin process entrypoint: load config, open the
// configured storage backend, install the signal-driven cleanup flag, and
// run one of its subcommands (stats, import). It does not serve HKP/HTTP
// or the socket RPC. The core packages (openpgp, hkp/storage, trustgraph) do not
// depend on this package; it only wires them together.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hkpd/keyserver/config"
	"github.com/hkpd/keyserver/hkp/storage"
	_ "github.com/hkpd/keyserver/hkp/storage/boltstore"
	_ "github.com/hkpd/keyserver/hkp/storage/fsstore"
	"github.com/hkpd/keyserver/internal/cleanup"
	log "github.com/hkpd/keyserver/internal/log"
	"github.com/hkpd/keyserver/openpgp"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "keyserverd",
		Short: "OpenPGP keyserver core daemon",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "/etc/keyserverd/keyserverd.yaml", "path to configuration file")

	root.AddCommand(statsCmd())
	root.AddCommand(importCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

func openStorage(cfg config.Config) (storage.Storage, error) {
	backend, ok := cfg.FindBackend(cfg.DBBackend)
	if !ok {
		return nil, fmt.Errorf("keyserverd: no backend config named %q", cfg.DBBackend)
	}
	return storage.Open(context.Background(), backend.Type, backend.Location, false)
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print key count and storage backend info",
		RunE: func(cmd *cobra.Command, args []string) error {
			stop := cleanup.Watch()
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			count, err := store.Iterate(cmd.Context(), func(_ *openpgp.PublicKey) error {
				return nil
			})
			if err != nil {
				return err
			}
			log.Infof("backend %q: %d keys", cfg.DBBackend, count)
			fmt.Printf("%d keys\n", count)
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Read an OpenPGP key stream and absorb it into storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stop := cleanup.Watch()
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return runImport(cmd.Context(), store, f, cfg)
		},
	}
}
