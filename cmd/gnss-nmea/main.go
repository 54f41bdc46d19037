package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gnss-nmea/internal/config"
	"gnss-nmea/internal/nmea"
)

func main() {
	var configPath string
	var decode bool
	var requireChecksum bool
	var summarize string
	flag.StringVar(&configPath, "config", "./gnss-nmea.yaml", "Path to YAML config")
	flag.BoolVar(&decode, "decode", false, "Decode NMEA lines from stdin, print one record per line and exit")
	flag.BoolVar(&requireChecksum, "require-checksum", false, "With -decode: reject lines without a '*hh' checksum")
	flag.StringVar(&summarize, "summarize", "", "Print a summary of a capture file and exit")
	flag.Parse()

	if decode {
		if _, _, err := runDecode(os.Stdin, os.Stdout, os.Stderr, nmea.Options{RequireChecksum: requireChecksum}); err != nil {
			log.Fatalf("decode failed: %v", err)
		}
		return
	}
	if summarize != "" {
		if err := printCaptureSummary(summarize, os.Stdout); err != nil {
			log.Fatalf("capture summary failed: %v", err)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("gnss-nmea starting source=%s", cfg.GPS.Source)
	rt, err := newRuntime(ctx, cfg, os.Stdin)
	if err != nil {
		log.Fatalf("runtime init failed: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-rt.gpsSvc.Done():
		log.Printf("gps source ended")
	}
	log.Printf("gnss-nmea stopping")
	cancel()
	rt.Close()
	rt.wait()
}
