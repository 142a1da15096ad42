// niko-extract runs a full extraction against a NikoHealth tenant and writes
// one JSON record envelope per line to stdout. Logs go to stderr.
//
// Configuration comes from the environment (a .env file is honored):
//
//	NIKO_DOMAIN            tenant subdomain (required)
//	NIKO_CLIENT_ID         OAuth2 client id (required)
//	NIKO_CLIENT_SECRET     OAuth2 client secret (required)
//	NIKO_INCLUDE_SENSITIVE keep sensitive fields in stream schemas
//	NIKO_API_BASE_URL      override the tenant-derived API root
//	NIKO_TOKEN_URL         override the tenant-derived token endpoint
//	REDIS_URL              enable the transport response cache
//	METRICS_ADDR           expose Prometheus metrics, e.g. :9090
//	LOG_LEVEL, LOG_PRETTY  logging configuration
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/datalift/nikohealth-connector/pkg/logging"
	"github.com/datalift/nikohealth-connector/pkg/source"
	"github.com/datalift/nikohealth-connector/pkg/streams"
)

// envelope is the NDJSON line format written for every extracted record.
type envelope struct {
	Stream    string         `json:"stream"`
	EmittedAt int64          `json:"emitted_at"`
	Record    streams.Record `json:"record"`
}

func main() {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	check := flag.Bool("check", false, "verify credentials and connectivity, then exit")
	streamNames := flag.String("streams", "", "comma-separated stream names to extract (default: all)")
	flag.Parse()

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: parseBool(os.Getenv("LOG_PRETTY")),
	})

	cfg := source.Config{
		Domain:               os.Getenv("NIKO_DOMAIN"),
		ClientID:             os.Getenv("NIKO_CLIENT_ID"),
		ClientSecret:         os.Getenv("NIKO_CLIENT_SECRET"),
		IncludeSensitiveData: parseBool(os.Getenv("NIKO_INCLUDE_SENSITIVE")),
		APIBaseURL:           os.Getenv("NIKO_API_BASE_URL"),
		TokenURL:             os.Getenv("NIKO_TOKEN_URL"),
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis = redis.NewClient(&redis.Options{Addr: redisURL})
		defer cfg.Redis.Close()
	}

	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		go serveMetrics(addr)
	}

	src, err := source.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()

	if *check {
		if ok, err := src.CheckConnection(ctx); !ok {
			log.Fatal().Err(err).Msg("Connection check failed")
		}
		fmt.Fprintln(os.Stderr, "Connection check succeeded")
		return
	}

	selected, err := selectStreams(src.Streams(), *streamNames)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid stream selection")
	}

	if err := extract(ctx, selected); err != nil {
		log.Fatal().Err(err).Msg("Extraction failed")
	}
}

// extract reads every selected stream to exhaustion and writes record
// envelopes to stdout.
func extract(ctx context.Context, selected []streams.Stream) error {
	encoder := json.NewEncoder(os.Stdout)

	for _, stream := range selected {
		logger := log.With().Str("stream", stream.Name()).Logger()
		logger.Info().Msg("Stream extraction started")

		records := 0
		err := stream.Read(ctx, func(rec streams.Record) error {
			records++
			return encoder.Encode(envelope{
				Stream:    stream.Name(),
				EmittedAt: time.Now().UnixMilli(),
				Record:    rec,
			})
		})
		if err != nil {
			return fmt.Errorf("read stream %s: %w", stream.Name(), err)
		}

		logger.Info().Int("records", records).Msg("Stream extraction complete")
	}

	return nil
}

// selectStreams filters the available streams by a comma-separated name
// list. An empty list selects everything; an unknown name is an error.
func selectStreams(available []streams.Stream, names string) ([]streams.Stream, error) {
	if strings.TrimSpace(names) == "" {
		return available, nil
	}

	byName := make(map[string]bool, len(available))
	for _, s := range available {
		byName[s.Name()] = true
	}

	wanted := make(map[string]bool)
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !byName[name] {
			return nil, fmt.Errorf("unknown stream %q", name)
		}
		wanted[name] = true
	}

	var selected []streams.Stream
	for _, s := range available {
		if wanted[s.Name()] {
			selected = append(selected, s)
		}
	}
	return selected, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("Metrics server failed")
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return v
}
