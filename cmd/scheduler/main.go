package main

import (
	"NetCollect/internal/config"
	"NetCollect/internal/scheduler/dependencies"
	"NetCollect/internal/scheduler/server"
	"NetCollect/pkg/logger"
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config %s", err)
	}

	// Настройка логирования
	log := logger.Setup(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	log.Info("Starting NetCollect scheduler",
		slog.String("name", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.Int("port", cfg.Server.Port),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Создаем контейнер зависимостей
	container, err := dependencies.NewContainer(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to create dependency container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	// Фоновые циклы: диспетчер, heartbeat-ы воркеров, чистка пулов
	runCtx, stop := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		container.Dispatcher.Run(runCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		container.Placement.Run(runCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		container.Factory.Run(runCtx)
	}()

	// Создаем сервер
	srv := server.New(&server.Config{
		Port: cfg.Server.Port,
		Mode: cfg.Server.Mode,
	}, container)

	// Запускаем сервер в горутине
	go func() {
		if err := srv.Start(); err != nil {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Ожидаем сигналы завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	stop()
	wg.Wait()

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped gracefully")
}
