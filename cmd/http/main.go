package main

import (
	"context"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/labstack/echo/v4"

	"github.com/blc-org/una/config"
	"github.com/blc-org/una/http"
	"github.com/blc-org/una/logger"
	"github.com/blc-org/una/una"
	"github.com/blc-org/una/utils"
)

func main() {
	// Load config from environment variables / .env file
	godotenv.Load(".env")
	appConfig := &config.AppConfig{}
	err := envconfig.Process("", appConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to process config:", err)
		os.Exit(1)
	}

	logger.Init(appConfig.LogLevel)

	if appConfig.Workdir == "" {
		appConfig.Workdir = filepath.Join(xdg.DataHome, "/una")
		logger.Logger.Info().Interface("workdir", appConfig.Workdir).Msg("No workdir specified, using default")
	}
	// make sure workdir exists
	os.MkdirAll(appConfig.Workdir, os.ModePerm)

	if appConfig.LogToFile {
		err = logger.AddFileLogger(appConfig.Workdir)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to create file logger")
			return
		}
	}

	logger.Logger.Info().Str("backend", appConfig.BackendType).Msg("Una starting in HTTP mode")

	// Create a channel to receive OS signals.
	osSignalChannel := make(chan os.Signal, 1)
	signal.Notify(osSignalChannel, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := <-osSignalChannel
		logger.Logger.Info().Interface("signal", sig).Msg("Received OS signal")
		cancel()
	}()

	svc, err := newUnaService(appConfig)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to create service")
		return
	}

	svc.StartWatchingInvoices(ctx)

	e := echo.New()
	httpSvc := http.NewHttpService(svc, appConfig.BackendType)
	httpSvc.RegisterSharedRoutes(e)

	go func() {
		if err := e.Start(fmt.Sprintf(":%v", appConfig.Port)); err != nil && err != nethttp.ErrServerClosed {
			logger.Logger.Error().Err(err).Msg("echo server failed to start")
			cancel()
		}
	}()

	// handle graceful shutdown
	<-ctx.Done()
	logger.Logger.Info().Msg("Shutting down echo server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to shutdown echo server")
	}
	if err := svc.Shutdown(); err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to shutdown service")
	}
	logger.Logger.Info().Msg("Una exited")
}

func newUnaService(appConfig *config.AppConfig) (*una.UnaService, error) {
	info := una.ConnectionInfo{
		URL:           appConfig.URL,
		MacaroonHex:   appConfig.MacaroonHex,
		CertHex:       appConfig.CertHex,
		SocketPath:    appConfig.SocketPath,
		User:          appConfig.EclairUser,
		Password:      appConfig.EclairPassword,
		URI:           appConfig.LndHubURI,
		Login:         appConfig.LndHubLogin,
		SocksProxyURL: appConfig.SocksProxyURL,
	}

	if appConfig.BackendType == config.LndHubBackendType && appConfig.LndHubPassword != "" {
		info.Password = appConfig.LndHubPassword
	}

	if appConfig.SocketHost != "" {
		host, port, err := utils.ParseHostPort(appConfig.SocketHost)
		if err != nil {
			return nil, err
		}
		info.Host = host
		info.Port = port
	}

	return una.NewUnaService(una.BackendKind(appConfig.BackendType), info)
}
