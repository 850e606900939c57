/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/areassist/apiserver/config"
	"github.com/areassist/apiserver/internal/db"
	"github.com/areassist/apiserver/internal/mq"
	"github.com/areassist/apiserver/internal/notify"
	"github.com/areassist/apiserver/internal/store"
)

// notifierCmd represents the notifier command
var notifierCmd = &cobra.Command{
	Use:   "notifier",
	Short: "Starts the notification delivery worker",
	Long: `Starts the worker that drains broker channels and delivers
notifications and one-time codes. Usage:

	areassist notifier
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer dbConn.Close()

		broker, err := newBroker(ctx, cfg)
		if err != nil {
			return err
		}
		defer broker.Close()

		consumer := notify.NewConsumer(broker, store.NewUserRepository(dbConn), notify.ConsoleNotifier{})
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notifierCmd)
}

func newBroker(ctx context.Context, cfg config.Config) (*mq.MQ, error) {
	switch cfg.BrokerBackend {
	case config.BrokerBackendPubSub:
		backend, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("pubsub: %w", err)
		}
		return mq.New(backend), nil
	case config.BrokerBackendRabbitMQ, "":
		backend, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		return mq.New(backend), nil
	default:
		return nil, fmt.Errorf("unknown broker backend %q", cfg.BrokerBackend)
	}
}
