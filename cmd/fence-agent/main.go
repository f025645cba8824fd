// Command fence-agent is the device-side counterpart to fence-publish: it
// polls a manifest URL, verifies its signature, downloads the delta or
// snapshot it points at, and keeps a local geofenceapi.Context in sync so
// an onboard flight controller can query it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/iannil/geofence-engine/internal/version"
	"github.com/iannil/geofence-engine/pkg/config"
	"github.com/iannil/geofence-engine/pkg/devctx"
	"github.com/iannil/geofence-engine/pkg/engine"
	"github.com/iannil/geofence-engine/pkg/geodesic"
	"github.com/iannil/geofence-engine/pkg/geofenceapi"
	"github.com/iannil/geofence-engine/pkg/geomath"
	"github.com/iannil/geofence-engine/pkg/signing"
	gsync "github.com/iannil/geofence-engine/pkg/sync"
)

var (
	manifestURL  string
	publicKey    string
	storePath    string
	syncInterval time.Duration
	insecure     bool
	verbose      bool
	geodesicKind string
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	root := &cobra.Command{
		Use:     "fence-agent",
		Short:   "Sync and evaluate geofences on a device",
		Version: version.String(),
	}
	root.PersistentFlags().StringVar(&manifestURL, "manifest", "", "URL to the published manifest.json")
	root.PersistentFlags().StringVar(&publicKey, "public-key", "", "publisher's Ed25519 public key (hex)")
	root.PersistentFlags().StringVar(&storePath, "store", "./fence-agent.db", "path to the local store")
	root.PersistentFlags().DurationVar(&syncInterval, "interval", config.DefaultSyncInterval, "sync interval for `run`")
	root.PersistentFlags().BoolVar(&insecure, "insecure-skip-verify", false, "accept manifests without signature verification (development only)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&geodesicKind, "geodesic", "spherical", "geodesic model for shapes beyond the planar threshold: spherical|vincenty")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	}

	root.AddCommand(newSyncCmd(), newRunCmd(), newCheckCmd(), newStatusCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// geodesicProvider resolves the --geodesic flag to a provider: the
// always-present spherical fallback, or the ellipsoidal Vincenty model for
// installations that need sub-metre accuracy near large or polar shapes.
func geodesicProvider() (geodesic.Provider, error) {
	switch geodesicKind {
	case "", "spherical":
		return geodesic.Default, nil
	case "vincenty":
		p := geodesic.NewVincentyProvider()
		return p, nil
	default:
		return nil, fmt.Errorf("invalid --geodesic %q: want spherical or vincenty", geodesicKind)
	}
}

func clientConfig() (*config.ClientConfig, error) {
	cfg := config.DefaultClientConfig()
	cfg.ManifestURL = manifestURL
	cfg.StorePath = storePath
	cfg.SyncInterval = syncInterval
	cfg.InsecureSkipVerify = insecure

	if publicKey != "" {
		if _, err := signing.UnmarshalPublicKeyHex(publicKey); err != nil {
			return nil, fmt.Errorf("invalid --public-key: %w", err)
		}
		cfg.PublicKeyHex = publicKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Perform a single sync against the manifest URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := clientConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			syncer, err := gsync.NewSyncer(ctx, cfg, "fence-agent-cli")
			if err != nil {
				return fmt.Errorf("create syncer: %w", err)
			}
			defer syncer.Close()

			result := syncer.Sync(ctx)
			if result.Error != nil {
				return fmt.Errorf("sync failed: %w", result.Error)
			}
			if result.UpToDate {
				fmt.Printf("Already up to date (v%d)\n", result.CurrentVer)
				return nil
			}
			fmt.Printf("Synced v%d -> v%d in %v\n", result.PreviousVer, result.CurrentVer, result.Duration)
			fmt.Printf("  added=%d removed=%d updated=%d bytes=%d\n",
				result.FencesAdded, result.FencesRemoved, result.FencesUpdated, result.BytesDownload)
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run continuously, syncing on --interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := clientConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			syncer, err := gsync.NewSyncer(ctx, cfg, "fence-agent-daemon")
			if err != nil {
				return fmt.Errorf("create syncer: %w", err)
			}
			defer syncer.Close()

			geofenceapi.ContextSetCallback(syncer.Context(), devctx.TestTransit, true,
				func(ev devctx.Event, userData interface{}) {
					log.Info().Str("fence", ev.Name).Str("state", ev.State.String()).Msg("fence transition")
				}, nil)

			results := syncer.StartAutoSync(ctx, syncInterval)
			log.Info().Dur("interval", syncInterval).Msg("fence-agent started")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			for {
				select {
				case result, ok := <-results:
					if !ok {
						return nil
					}
					if result.Error != nil {
						log.Error().Err(result.Error).Msg("sync failed")
						continue
					}
					if result.UpToDate {
						log.Debug().Uint64("version", result.CurrentVer).Msg("up to date")
						continue
					}
					log.Info().Uint64("from", result.PreviousVer).Uint64("to", result.CurrentVer).
						Int("added", result.FencesAdded).Int("removed", result.FencesRemoved).
						Int("updated", result.FencesUpdated).Msg("synced")
				case <-sigChan:
					log.Info().Msg("shutting down")
					return nil
				}
			}
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <lat> <lon> [alt-m]",
		Short: "Evaluate the locally synced fences at a position",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var lat, lon, altM float64
			if _, err := fmt.Sscanf(args[0], "%g", &lat); err != nil {
				return fmt.Errorf("invalid lat: %w", err)
			}
			if _, err := fmt.Sscanf(args[1], "%g", &lon); err != nil {
				return fmt.Errorf("invalid lon: %w", err)
			}
			altMM := int64(geomath.AltitudeAbsent)
			if len(args) == 3 {
				if _, err := fmt.Sscanf(args[2], "%g", &altM); err != nil {
					return fmt.Errorf("invalid alt-m: %w", err)
				}
				altMM = int64(altM * 1000)
			}

			cfg, err := clientConfig()
			if err != nil {
				return err
			}
			provider, err := geodesicProvider()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			syncer, err := gsync.NewSyncer(ctx, cfg, "fence-agent-check")
			if err != nil {
				return fmt.Errorf("create syncer: %w", err)
			}
			defer syncer.Close()

			pos := engine.Position{
				LatE9: geomath.DegToE9(lat),
				LonE9: geomath.DegToE9(lon),
				AltMM: altMM,
			}

			insideAny := false
			for _, f := range syncer.Context().Fences() {
				result := engine.Evaluate(f.Snapshot(), true, pos, provider)
				fmt.Printf("  %-24s state=%-8s distance_mm=%d\n", f.Name(), result.State, result.DistanceMM)
				if result.State == engine.StateInside {
					insideAny = true
				}
			}
			if insideAny {
				fmt.Println("Result: INSIDE at least one fence")
			} else {
				fmt.Println("Result: outside all fences")
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the local store's sync status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := clientConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			syncer, err := gsync.NewSyncer(ctx, cfg, "fence-agent-status")
			if err != nil {
				return fmt.Errorf("create syncer: %w", err)
			}
			defer syncer.Close()

			fences, err := syncer.GetFences(ctx)
			if err != nil {
				return fmt.Errorf("list fences: %w", err)
			}

			fmt.Printf("Version:     %d\n", syncer.GetCurrentVersion())
			fmt.Printf("Fences:      %d\n", len(fences))
			fmt.Printf("Last check:  %v\n", syncer.GetLastCheckTime())
			fmt.Printf("Last sync:   %v\n", syncer.GetLastSyncTime())
			return nil
		},
	}
}
