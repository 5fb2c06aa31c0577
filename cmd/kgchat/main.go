package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/kgchat/chat"
	"github.com/hrygo/kgchat/internal/profile"
	"github.com/hrygo/kgchat/internal/version"
	"github.com/hrygo/kgchat/server"
	"github.com/hrygo/kgchat/store"
	"github.com/hrygo/kgchat/store/kv"
	"github.com/hrygo/kgchat/stream"
)

var rootCmd = &cobra.Command{
	Use:   "kgchat",
	Short: "Terminal client for the enterprise knowledge-graph assistant.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Try to load .env file from current directory (ignore error if file doesn't exist)
		_ = godotenv.Load()
		return nil
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		instanceProfile, err := buildProfile()
		if err != nil {
			return err
		}

		driver, err := kv.NewDriver(instanceProfile)
		if err != nil {
			slog.Error("failed to create persistence driver", "error", err)
			return err
		}
		chatStore := store.New(driver)
		defer chatStore.Close()

		var streamer stream.Streamer
		if instanceProfile.IsDemo() {
			streamer = stream.NewSimulated()
		} else {
			streamer = stream.NewClient(instanceProfile.UpstreamURL)
		}

		orchestrator := chat.New(chatStore, streamer,
			chat.WithTurnTimeout(time.Duration(instanceProfile.RequestTimeout)*time.Second),
			chat.WithErrorListener(func(_ string, err error) {
				fmt.Fprintf(os.Stderr, "⚠ 訊息發送失敗，請稍後再試（%v）\n", err)
			}),
		)
		orchestrator.SelectAgent(instanceProfile.Agent)

		printGreetings(instanceProfile)
		return runLoop(orchestrator)
	},
}

var mockUpstreamCmd = &cobra.Command{
	Use:   "mock-upstream",
	Short: "Run the embedded mock inference service.",
	RunE: func(_ *cobra.Command, _ []string) error {
		instanceProfile, err := buildProfile()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s := server.NewServer(instanceProfile)
		fmt.Printf("Mock upstream listening on %s:%d\n", instanceProfile.Addr, instanceProfile.Port)
		return s.Start(ctx)
	},
}

func buildProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:        viper.GetString("mode"),
		Addr:        viper.GetString("addr"),
		Port:        viper.GetInt("port"),
		Data:        viper.GetString("data"),
		Driver:      viper.GetString("driver"),
		DSN:         viper.GetString("dsn"),
		UpstreamURL: viper.GetString("upstream-url"),
		Agent:       viper.GetString("agent"),
		Version:     version.GetCurrentVersion(viper.GetString("mode")),
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		return nil, err
	}
	return instanceProfile, nil
}

func init() {
	viper.SetDefault("mode", "demo")
	viper.SetDefault("driver", "memory")
	viper.SetDefault("port", 3001)

	rootCmd.PersistentFlags().String("mode", "demo", `mode of client, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "bind address of the mock upstream")
	rootCmd.PersistentFlags().Int("port", 3001, "port of the mock upstream")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "memory", "persistence driver (memory, file, sqlite)")
	rootCmd.PersistentFlags().String("dsn", "", "persistence source name (file path)")
	rootCmd.PersistentFlags().String("upstream-url", "", "base URL of the inference service")
	rootCmd.PersistentFlags().String("agent", "auto", "default agent selector")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn", "upstream-url", "agent"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("kgchat")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	rootCmd.AddCommand(mockUpstreamCmd)
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("kgchat %s\n", p.Version)
	fmt.Printf("Mode: %s\n", p.Mode)
	fmt.Printf("Persistence driver: %s\n", p.Driver)
	if !p.IsDemo() {
		fmt.Printf("Upstream: %s\n", p.UpstreamURL)
	}
	fmt.Println(`Type a message and press enter. "/help" lists commands.`)
	fmt.Println()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
