// The iotforwarder binary is the optional secondary worker noted in spec
// §1/§9: it republishes gift-derived device commands to an external MQTT
// broker. It is never started by, or imported into, the four core services.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/streamrelay/platform/pkg/broker"
	"github.com/streamrelay/platform/pkg/config"
	"github.com/streamrelay/platform/pkg/iotforwarder"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "iotforwarder",
	Short: "Forwards tenant gift-triggered device commands to an external MQTT broker",
	Long: `iotforwarder is the optional secondary worker described in the
platform's design notes: it consumes the iot:commands:{tenant} stream that
the rule engine may optionally populate (its gift bridge) and republishes
each command as an MQTT message, mapping device IDs to topics. It has no
dependents among the core services and can be left unrun.`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.SetVersionTemplate(fmt.Sprintf("iotforwarder version %s\nCommit: %s\n", Version, Commit))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the iotforwarder version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("iotforwarder version %s (%s)\n", Version, Commit)
	},
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	iotforwarder.Init(iotforwarder.LogConfig{Level: logLevel, JSONOutput: logJSON})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the forwarder until interrupted",
	RunE:  runForwarder,
}

func runForwarder(cmd *cobra.Command, args []string) error {
	envPath := config.StringOrDefault("CONFIG_DIR", "./deploy/config") + "/.env"
	if err := godotenv.Load(envPath); err != nil {
		iotforwarder.Logger.Warn().Str("path", envPath).Err(err).Msg("could not load env file, continuing with process environment")
	}

	tenantsRaw, err := config.Require("IOTFORWARDER_TENANTS")
	if err != nil {
		return err
	}
	tenants := splitAndTrim(tenantsRaw)
	if len(tenants) == 0 {
		return fmt.Errorf("IOTFORWARDER_TENANTS must list at least one tenant")
	}

	brokerURL, err := config.Require("IOTFORWARDER_MQTT_BROKER_URL")
	if err != nil {
		return err
	}

	mqttCfg := iotforwarder.MQTTConfig{
		BrokerURL: brokerURL,
		ClientID:  config.StringOrDefault("IOTFORWARDER_MQTT_CLIENT_ID", "iotforwarder"),
		Username:  os.Getenv("IOTFORWARDER_MQTT_USERNAME"),
		Password:  os.Getenv("IOTFORWARDER_MQTT_PASSWORD"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mqttClient := iotforwarder.NewMQTTClient(mqttCfg)
	if err := mqttClient.Connect(ctx); err != nil {
		return fmt.Errorf("iotforwarder: connect mqtt: %w", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mqttClient.Disconnect(disconnectCtx)
	}()

	rdb := redis.NewClient(&redis.Options{Addr: config.StringOrDefault("REDIS_ADDR", "localhost:6379")})
	defer rdb.Close()
	b := broker.New(rdb, 0)

	worker := iotforwarder.NewWorker(b, mqttClient, tenants, nil)

	iotforwarder.Logger.Info().Strs("tenants", tenants).Str("broker", brokerURL).Msg("iotforwarder started")
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("iotforwarder: worker stopped: %w", err)
	}
	iotforwarder.Logger.Info().Msg("iotforwarder stopping")
	return nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
