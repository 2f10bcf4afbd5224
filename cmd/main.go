// FilePath: server/weatherhub/cmd/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	tm "github.com/buger/goterm"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/config"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/server"
	"github.com/spf13/pflag"
	nuts "github.com/vaudience/go-nuts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	var (
		configFile  string
		showVersion bool
		noBanner    bool
	)
	flagSet := pflag.NewFlagSet("weatherhub", pflag.ContinueOnError)
	flagSet.StringVarP(&configFile, "config", "c", "", "path to config file (default: ./config/config.yaml)")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	flagSet.BoolVar(&noBanner, "no-banner", false, "do not clear the console or draw the logo")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		log.Fatalf("Failed to parse flags: %v", err)
	}

	// Initialize version info
	nuts.InitVersion()
	if showVersion {
		fmt.Println(nuts.GetVersion())
		return
	}

	if !noBanner {
		ClearConsole()
		DrawLogo()
	}

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := setLogLevel(cfg.Monitoring.LogLevel); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	nuts.L.Infof("[Main] Starting WeatherHub v%s", nuts.GetVersion())

	// Create and start server
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		nuts.L.Fatalf("[Main] Failed to initialize server: %v", err)
	}
	if err := srv.Start(); err != nil {
		nuts.L.Errorf("[Main] Server error: %v", err)
		os.Exit(1)
	}
}

// setLogLevel replaces the shared logger with one filtered at level.
func setLogLevel(level string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	zapCfg.Encoding = "console"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := zapCfg.Build()
	if err != nil {
		return err
	}
	nuts.L = logger.Sugar()
	return nil
}

// ClearConsole clears the console screen.
func ClearConsole() {
	tm.Clear()
	tm.MoveCursor(1, 1)
	tm.Flush()
}

func DrawLogo() {
	fmt.Println()
	lines := []string{
		" _    _            _   _               _   _       _     ",
		"| |  | |          | | | |             | | | |     | |    ",
		"| |  | | ___  __ _| |_| |__   ___ _ __| |_| |_   _| |__  ",
		"| |/\\| |/ _ \\/ _` | __| '_ \\ / _ \\ '__|  _  | | | | '_ \\ ",
		"\\  /\\  /  __/ (_| | |_| | | |  __/ |  | | | | |_| | |_) |",
		" \\/  \\/ \\___|\\__,_|\\__|_| |_|\\___|_|  \\_| |_/\\__,_|_.__/ ",
		"..........................................................  " + nuts.GetVersion(),
	}

	for _, line := range lines {
		fmt.Println(line)
	}
}
