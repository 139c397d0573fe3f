package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"strings"

	"github.com/drakos74/free-brain/internal/config"
	"github.com/drakos74/free-brain/internal/server"
	"github.com/drakos74/free-brain/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	configPath  = flag.String("config", "config.yml", "configuration file")
	port        = flag.Int("port", 8080, "prediction protocol port")
	metricsPort = flag.Int("metrics-port", 8090, "prometheus metrics port")
	storeDir    = flag.String("store", "", "snapshot directory, empty disables persistence")
	replayPath  = flag.String("replay", "", "replay recorded frames from the given file and exit")
	debug       = flag.Bool("debug", false, "enable debug logging")
)

func main() {
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg := config.MustLoad(*configPath)

	var store storage.Persistence = storage.NewVoid()
	if *storeDir != "" {
		store = storage.NewJson(*storeDir)
	}

	if *replayPath != "" {
		if err := replay(cfg, store, *replayPath); err != nil {
			log.Fatal().Err(err).Str("file", *replayPath).Msg("replay failed")
		}
		return
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		log.Info().Int("port", *metricsPort).Msg("serving metrics")
		if err := http.ListenAndServe(fmt.Sprintf(":%d", *metricsPort), nil); err != nil {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	if err := server.Listen(*port, cfg, store); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// replay feeds recorded protocol frames through a dedicated engine and writes
// the replies next to the input file. A fresh output is not recomputed.
func replay(cfg config.Config, store storage.Persistence, path string) error {
	out := fmt.Sprintf("%s.predictions", path)
	stale, err := storage.Stale(path, out)
	if err != nil {
		return err
	}
	if !stale {
		log.Info().Str("file", out).Msg("replay output up to date")
		return nil
	}

	b, err := ioutil.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read frames: %w", err)
	}
	lines := strings.Split(string(b), "\n")

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("could not create output: %w", err)
	}
	defer f.Close()

	srv := server.NewServer(server.NewEngine(cfg).WithStore(store))
	transport := server.NewChannelTransport(len(lines) + 1)

	frames := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		transport.In <- line
		srv.Drain(transport)
		frames++
		for done := false; !done; {
			select {
			case reply := <-transport.Out:
				if _, err := fmt.Fprintln(f, reply); err != nil {
					return fmt.Errorf("could not write reply: %w", err)
				}
			default:
				done = true
			}
		}
	}

	log.Info().Int("frames", frames).Str("file", out).Msg("replay complete")
	return nil
}
