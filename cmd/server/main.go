package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/classworks/playsync/pkg/api"
	authproviders "github.com/classworks/playsync/pkg/auth/providers"
	"github.com/classworks/playsync/pkg/broker"
	"github.com/classworks/playsync/pkg/config"
	"github.com/classworks/playsync/pkg/dispatcher"
	"github.com/classworks/playsync/pkg/log"
	"github.com/classworks/playsync/pkg/membership"
	"github.com/classworks/playsync/pkg/network"
	"github.com/classworks/playsync/pkg/queue"
	"github.com/classworks/playsync/pkg/registry"
	"github.com/classworks/playsync/pkg/repositories"
	"github.com/classworks/playsync/pkg/validators"
	"github.com/classworks/playsync/pkg/version"
	"github.com/classworks/playsync/pkg/workers"
)

func main() {
	logLevel := flag.String("log-level", "", "Log level (overrides PLAYSYNC_LOG_LEVEL)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	parsedLogLevel, err := log.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	log.Info("Starting server version %s", version.Get())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var repository repositories.Repository
	switch {
	case cfg.DatabaseURL != "":
		repository, err = repositories.NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			panic(fmt.Sprintf("Failed to create postgres repository: %v", err))
		}
	case cfg.SQLitePath != "":
		repository, err = repositories.NewSQLiteRepository(ctx, cfg.SQLitePath)
		if err != nil {
			panic(fmt.Sprintf("Failed to create sqlite repository: %v", err))
		}
	default:
		log.Warn("No database configured, using in-memory repository")
		repository = repositories.NewInMemoryRepository()
	}
	defer repository.Close(ctx)

	var messageBroker broker.Broker
	if cfg.RedisAddr != "" {
		messageBroker, err = broker.NewRedisBroker(ctx, broker.NewRedisBrokerOptions{
			Addr: cfg.RedisAddr,
		})
		if err != nil {
			panic(fmt.Sprintf("Failed to create redis broker: %v", err))
		}
	} else {
		messageBroker = broker.NewInMemoryBroker()
	}
	defer messageBroker.Close()

	var authProvider authproviders.AuthProvider
	switch cfg.AuthProvider {
	case "firebase":
		authProvider, err = authproviders.NewFirebaseAuthProvider(ctx, cfg.FirebaseCredentialsKey)
		if err != nil {
			panic(fmt.Sprintf("Failed to create firebase auth provider: %v", err))
		}
	case "static":
		log.Warn("Using static auth provider, do not use in production")
		authProvider = authproviders.NewStaticAuthProvider()
	default:
		panic(fmt.Sprintf("Unknown auth provider: %s", cfg.AuthProvider))
	}

	validatorRegistry := validators.NewDefaultRegistry()
	sessionRegistry := registry.NewRegistry(registry.NewRegistryOptions{
		Validators: validatorRegistry,
		IdleWindow: cfg.SessionIdleWindow,
	})
	membershipService := membership.NewService(membership.NewServiceOptions{
		Repository: repository,
	})

	resultQueue := queue.NewInMemoryQueue(1000)
	moveDispatcher := dispatcher.NewDispatcher(dispatcher.NewDispatcherOptions{
		Registry:    sessionRegistry,
		Membership:  membershipService,
		Validators:  validatorRegistry,
		Broker:      messageBroker,
		ResultQueue: resultQueue,
	})

	reaper := workers.NewIdleSessionReaper(workers.NewIdleSessionReaperOptions{
		Registry: sessionRegistry,
		Interval: cfg.SessionIdleWindow / 2,
	})
	go reaper.Start(ctx)

	saveResultsWorker := workers.NewSaveGameResultsWorker(workers.NewSaveGameResultsWorkerOptions{
		Repository:  repository,
		ResultQueue: resultQueue,
		Interval:    5 * time.Second,
	})
	go saveResultsWorker.Start(ctx)

	networkManager := network.NewNetworkManager(network.NewNetworkManagerOptions{
		AuthProvider: authProvider,
		Repository:   repository,
		Membership:   membershipService,
		Registry:     sessionRegistry,
		Dispatcher:   moveDispatcher,
		Broker:       messageBroker,
		WSPort:       cfg.WSPort,
	})
	networkManager.Start(ctx)

	apiServer := api.NewAPIServer(api.NewAPIServerOptions{
		Port:         cfg.APIPort,
		AuthProvider: authProvider,
		Repository:   repository,
		Registry:     sessionRegistry,
	})
	go apiServer.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server: %v", err)
	}
	cancel()
}
