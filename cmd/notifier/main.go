// Command notifier consumes marketplace events and mails checkout receipts
// and order status updates.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/MikeMC777/campus-market/internal/config"
	"github.com/MikeMC777/campus-market/internal/logging"
	"github.com/MikeMC777/campus-market/internal/notify"
)

func main() {
	cfg := config.Load()
	log := logging.Setup("notifier", cfg.LogLevel)

	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal().Msg("KAFKA_BROKERS is required")
	}
	if !cfg.MailEnabled() {
		log.Fatal().Msg("MAIL_ADDRESS and MAIL_PASSWORD are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mailer := notify.NewMailer(cfg.MailSenderName, cfg.MailAddress, cfg.MailPassword)
	consumer := notify.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, mailer, logging.Component(log, "consumer"))
	defer consumer.Close()

	log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Str("group", cfg.KafkaGroupID).Msg("notifier consuming")
	if err := consumer.Run(ctx); err != nil {
		log.Error().Err(err).Msg("consumer stopped")
		return
	}
	log.Info().Msg("shutting down")
}
