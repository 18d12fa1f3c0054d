package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"campus-chat/auth"
	"campus-chat/domain/event"
	"campus-chat/gateway"
	"campus-chat/internal"
	"campus-chat/moderation"
	"campus-chat/repositories"
	"campus-chat/runtime"
	"campus-chat/runtime/workers"
	"campus-chat/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires everything and owns the lifecycle, so deferred cleanups
// execute on every exit path and main stays trivially testable.
func run() error {
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := internal.LoggerFromString(config.LogLevel)

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	replacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}
	words, err := moderation.LoadWords(config.CensoredDir)
	if err != nil {
		return fmt.Errorf("loading censored words failed: %w", err)
	}
	moderator, err := moderation.NewModerator(words, replacement)
	if err != nil {
		return err
	}

	events := make(chan event.DomainEvent, config.EventBufferSize)
	locks := services.NewKeyedMutex()
	registry := runtime.NewRegistry(log)

	groups := repositories.NewGroupRepository(db, log)
	messages := repositories.NewMessageRepository(db, log)
	notifications := repositories.NewNotificationRepository(db, log)
	users := repositories.NewUserDirectory(db)

	membership := services.NewMembershipService(groups, users, locks, events, log)
	notifier := services.NewNotificationService(notifications, log)
	chat := services.NewChatService(groups, messages, users, notifier, moderator, locks, events, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewDispatcher(log, registry, events, config.DeliveryTimeout),
		workers.NewHealthMonitor(log, config.MetricInterval, registry.SessionCount),
	)
	go sup.Run(ctx)
	defer sup.Stop()

	tokens := auth.NewTokenService(config.AuthSecret, config.AuthTokenDuration)
	handler := gateway.NewHandler(membership, chat, notifier, users, registry,
		config.Origins(), config.SessionBufferSize, config.StorageRetries, log)
	server := gateway.NewServer(config.Host, config.Port, handler, tokens,
		config.Origins(), log)

	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("gateway error: %w", err)
	}
	log.Info("Program stopped cleanly")
	return nil
}
