package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/citadelhq/citadel/config"
	"github.com/citadelhq/citadel/internal/adminapi"
	"github.com/citadelhq/citadel/internal/app"
	"github.com/citadelhq/citadel/internal/webserver"
)

var (
	h        bool
	showVer  bool
	conffile string
	initdb   bool
)

var version = "dev"

func init() {
	flag.BoolVar(&h, "h", false, "help usage")
	flag.BoolVar(&showVer, "v", false, "show version")
	flag.StringVar(&conffile, "c", "", "config yaml file")
	flag.BoolVar(&initdb, "initdb", false, "drop and recreate all tables, then exit")
}

func main() {
	flag.Parse()
	if h {
		flag.Usage()
		return
	}
	if showVer {
		fmt.Println("citadel", version)
		return
	}

	// Optional .env file, real environment wins.
	_ = godotenv.Load()

	cfg := config.LoadConfig(conffile)
	_ = os.MkdirAll(cfg.System.Workdir, 0755)

	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if initdb {
		application.InitDb()
		zap.S().Info("database initialized")
		return
	}

	webserver.Init(application)
	adminapi.InitRouter()

	errchan := make(chan error, 1)
	go func() {
		errchan <- webserver.Listen()
	}()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errchan:
		zap.S().Errorf("server stopped: %v", err)
	case sig := <-sigchan:
		zap.S().Infof("received signal %s, shutting down", sig)
		_ = webserver.Shutdown()
	}
}
