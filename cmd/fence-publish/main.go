// Command fence-publish authors and ships geofence sets: it maintains a
// working store of fences, signs and publishes versioned snapshots, and
// writes the snapshot/delta/manifest files a CDN serves to fence-agent
// devices.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/iannil/geofence-engine/internal/version"
	"github.com/iannil/geofence-engine/pkg/distmodel"
	"github.com/iannil/geofence-engine/pkg/publisher"
	"github.com/iannil/geofence-engine/pkg/signing"
)

var (
	dbPath    string
	outputDir string
	keyFile   string
	verbose   bool
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	root := &cobra.Command{
		Use:     "fence-publish",
		Short:   "Author and publish signed geofence sets",
		Version: version.String(),
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "./publisher.db", "path to the publisher's working store")
	root.PersistentFlags().StringVar(&outputDir, "output", "./output", "directory for snapshot/delta/manifest files")
	root.PersistentFlags().StringVar(&keyFile, "key-file", "./publisher.key", "path to the hex-encoded Ed25519 private key")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	}

	root.AddCommand(
		newInitCmd(),
		newAddCmd(),
		newRemoveCmd(),
		newListCmd(),
		newPublishCmd(),
		newKeysCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadPrivateKey reads the hex-encoded Ed25519 private key from keyFile.
func loadPrivateKey() ([]byte, error) {
	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("read key file %q: %w", keyFile, err)
	}
	hexStr := string(data)
	for len(hexStr) > 0 && (hexStr[len(hexStr)-1] == '\n' || hexStr[len(hexStr)-1] == '\r' || hexStr[len(hexStr)-1] == ' ') {
		hexStr = hexStr[:len(hexStr)-1]
	}
	key, err := signing.UnmarshalPrivateKeyHex(hexStr)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func openPublisher(ctx context.Context) (*publisher.Publisher, error) {
	privateKey, err := loadPrivateKey()
	if err != nil {
		return nil, err
	}
	return publisher.NewPublisher(ctx, &publisher.Config{
		StorePath:  dbPath,
		PrivateKey: privateKey,
		OutputDir:  outputDir,
	})
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a fresh, empty working store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := publisher.Initialize(ctx, &publisher.Config{StorePath: dbPath, OutputDir: outputDir}); err != nil {
				return err
			}
			fmt.Printf("Initialized store at %s\n", dbPath)
			return nil
		},
	}
}

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <fence.json>",
		Short: "Add a fence from a JSON file to the working set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read fence file: %w", err)
			}
			var item distmodel.DistFenceItem
			if err := json.Unmarshal(data, &item); err != nil {
				return fmt.Errorf("parse fence JSON: %w", err)
			}

			pub, err := openPublisher(ctx)
			if err != nil {
				return err
			}
			defer pub.Close()

			if err := pub.AddFence(ctx, item); err != nil {
				return fmt.Errorf("add fence: %w", err)
			}
			fmt.Printf("Added fence %q\n", item.ID)
			return nil
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <fence-id>",
		Short: "Remove a fence from the working set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pub, err := openPublisher(ctx)
			if err != nil {
				return err
			}
			defer pub.Close()

			if err := pub.RemoveFence(ctx, args[0]); err != nil {
				return fmt.Errorf("remove fence: %w", err)
			}
			fmt.Printf("Removed fence %q\n", args[0])
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the fences in the working set",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pub, err := openPublisher(ctx)
			if err != nil {
				return err
			}
			defer pub.Close()

			items, err := pub.ListFences(ctx)
			if err != nil {
				return fmt.Errorf("list fences: %w", err)
			}

			fmt.Printf("Working set version: %d\n", pub.GetCurrentVersion())
			fmt.Printf("Fences: %d\n\n", len(items))
			for _, item := range items {
				fmt.Printf("  %-20s priority=%-6d shapes=%-3d %s\n", item.ID, item.Priority, len(item.Shapes), item.Name)
			}
			return nil
		},
	}
}

func newPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Sign and publish a new version from the working set",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pub, err := openPublisher(ctx)
			if err != nil {
				return err
			}
			defer pub.Close()

			items, err := pub.ListFences(ctx)
			if err != nil {
				return fmt.Errorf("list fences: %w", err)
			}
			if len(items) == 0 {
				return fmt.Errorf("no fences in working set, nothing to publish")
			}

			result, err := pub.PublishNewVersion(ctx, items)
			if err != nil {
				return fmt.Errorf("publish: %w", err)
			}

			fmt.Printf("Published version %d (%d fences)\n", result.Version, len(items))
			fmt.Printf("  Snapshot: %s (%d bytes)\n", result.SnapshotPath, result.Manifest.SnapshotSize)
			if result.DeltaPath != "" {
				fmt.Printf("  Delta:    %s (%d bytes)\n", result.DeltaPath, result.Manifest.DeltaSize)
			}
			fmt.Printf("  Key ID:   %s\n", result.Manifest.KeyID)
			return nil
		},
	}
}

func newKeysCmd() *cobra.Command {
	var outFile string
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Generate a new Ed25519 signing key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := signing.GenerateKeyPair()
			if err != nil {
				return fmt.Errorf("generate key pair: %w", err)
			}

			publicHex := signing.MarshalPublicKeyHex(kp.PublicKey)
			privateHex := signing.MarshalPrivateKeyHex(kp.PrivateKey)

			fmt.Printf("Key ID:      %s\n", kp.KeyID)
			fmt.Printf("Public key:  %s\n", publicHex)
			fmt.Printf("Private key: %s\n", privateHex)

			path := outFile
			if path == "" {
				path = keyFile
			}
			if err := os.WriteFile(path, []byte(privateHex), 0600); err != nil {
				return fmt.Errorf("write private key: %w", err)
			}
			fmt.Printf("\nPrivate key written to %s (mode 0600)\n", path)
			fmt.Println("Distribute the public key to fence-agent devices via --public-key.")
			return nil
		},
	}
	cmd.Flags().StringVar(&outFile, "out", "", "path to write the private key (defaults to --key-file)")
	return cmd
}
