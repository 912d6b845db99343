package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/dougsko/catd/pkg/catset"
	"github.com/dougsko/catd/pkg/config"
	"github.com/dougsko/catd/pkg/logging"
)

var (
	model       = pflag.StringP("model", "m", "", "Radio model name or number")
	rigFile     = pflag.StringP("rig-file", "r", "", "Serial port name")
	serialSpeed = pflag.IntP("serial-speed", "s", 0, "Serial port baud rate (default: the radio's default)")
	port        = pflag.IntP("port", "t", 4532, "TCP listening port")
	list        = pflag.BoolP("list", "l", false, "List available model numbers and exit")
	all         = pflag.BoolP("all", "a", false, "Print capabilities of all radios and exit")
	verbose     = pflag.CountP("verbose", "v", "Raise the log level, repeat for more (-vvv)")
	fileLog     = pflag.BoolP("file-log", "f", false, "Save the log to a file")
	configPath  = pflag.StringP("config", "c", "", "Configuration file path")
	rigsDir     = pflag.String("rigs", "", "Command set directory")
	version     = pflag.Bool("version", false, "Show version information")
)

const (
	Version = "0.1.0-dev"
	Build   = "development"

	defaultLogFile = "catd.log"
)

func main() {
	pflag.Parse()

	if *version {
		fmt.Printf("catd version %s (%s)\n", Version, Build)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyFlags(cfg)

	catalog, err := catset.LoadDir(cfg.Radio.CommandSets)
	if err != nil {
		log.Fatalf("Failed to load command sets: %v", err)
	}

	if *list {
		fmt.Println(catalog.ListModels())
		return
	}
	if *all {
		fmt.Println(catalog.AllCapabilities())
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logging.InitGlobalLogger(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseGlobalLogger()

	daemon, err := NewCatDaemon(cfg, catalog)
	if err != nil {
		logging.Errorf("main", "Failed to create daemon: %v", err)
		os.Exit(1)
	}

	fmt.Println("catd started.")
	fmt.Printf("Log level: %s\n", logging.ParseLogLevel(cfg.Logging.Level))
	fmt.Println("Press Ctrl-C to exit.")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := daemon.Run(ctx); err != nil {
		logging.Errorf("main", "Daemon error: %v", err)
		os.Exit(1)
	}

	logging.Info("main", "catd stopped")
}

// applyFlags overrides configuration file values with command line options
func applyFlags(cfg *config.Config) {
	if *model != "" {
		cfg.Radio.Model = *model
	}
	if *rigFile != "" {
		cfg.Radio.Device = *rigFile
	}
	if *serialSpeed != 0 {
		cfg.Radio.BaudRate = *serialSpeed
	}
	if pflag.CommandLine.Changed("port") {
		cfg.Server.Port = *port
	}
	if *rigsDir != "" {
		cfg.Radio.CommandSets = *rigsDir
	}
	if *verbose > 0 {
		cfg.Logging.Level = logging.LevelFromVerbosity(*verbose)
	}
	if *fileLog {
		if cfg.Logging.File == "" {
			cfg.Logging.File = defaultLogFile
		}
		cfg.Logging.Console = true
	}
}
