package main

import (
	"flag"
	"log/slog"
	"time"

	"github.com/adrg/xdg"

	"github.com/voslund/inkboard/app"
	"github.com/voslund/inkboard/config"
	"github.com/voslund/inkboard/debug"
)

func main() {
	var (
		cfgPath   = flag.String("config", "", "path to config file (default: XDG config dir)")
		videoPath = flag.String("video", "", "open this video file on startup")
		debugFlag = flag.Bool("debug", false, "enable debug logging and runtime stats")
	)
	flag.Parse()

	path := *cfgPath
	if path == "" {
		if p, err := xdg.ConfigFile("inkboard/config.json"); err == nil {
			path = p
		}
	}
	cfg, err := config.Load(path)
	if *debugFlag {
		cfg.Debug = true
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := NewLogger(level)
	if err != nil {
		logger.Warn("config load", "path", path, "error", err)
	}

	if cfg.Debug {
		debug.StartRuntimeLogger(5*time.Second, logger)
	}

	app.Run(cfg, logger, *videoPath)
}
