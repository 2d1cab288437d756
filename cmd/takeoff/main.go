package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gmsas95/takeoff/internal/app"
	"github.com/gmsas95/takeoff/internal/config"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	command := "serve"
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve", "sweep":
			command = os.Args[1]
			os.Args = append(os.Args[:1], os.Args[2:]...)
		case "help", "--help", "-h":
			printHelp()
			return
		case "version", "--version", "-v":
			fmt.Printf("takeoff version %s\n", version)
			return
		}
	}

	flag.Parse()

	if err := config.LoadEnvFiles(); err != nil {
		log.Printf("Warning: failed to load .env files: %v", err)
	}

	application := initApp()
	defer application.Logger.Sync()

	if command == "sweep" {
		removed, err := application.Sweep()
		if err != nil {
			application.Logger.Fatal("Sweep failed", zap.Error(err))
		}
		fmt.Printf("Removed %d orphaned image(s)\n", removed)
		return
	}

	application.RunServer()
}

func initApp() *app.App {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Info("Starting takeoff", zap.String("version", version))

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	application, err := app.New(cfg, logger, version)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	return application
}

func printHelp() {
	fmt.Println("takeoff - PDF drawing line item extraction server")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  takeoff [serve] [-config path] [-data dir]   Run the HTTP server")
	fmt.Println("  takeoff sweep [-config path] [-data dir]     Remove orphaned item images once")
	fmt.Println("  takeoff version                              Print the version")
}
