package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

// Handler serves the JSON API:
//
//	GET /api/status  service, GPS, PPS and sink snapshots
//	GET /api/stream  WebSocket of decoded sentences (?types=GGA,RMC)
//	GET /api/lines   recent raw lines (?tail=N, ?format=text)
//	GET /api/about   build information
//
// hub and lines may be nil; their endpoints then report 404.
func Handler(status *Status, hub *Hub, lines *LineBuffer) http.Handler {
	if status == nil {
		status = NewStatus()
	}
	status.setHub(hub)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, status.Snapshot(time.Now().UTC()))
	})

	mux.Handle("/api/stream", streamHandler(hub))

	if lines != nil {
		mux.Handle("/api/lines", lines.Handler())
	}

	mux.Handle("/api/about", AboutHandler())

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap := status.Snapshot(time.Now().UTC())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>GNSS NMEA</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>GNSS NMEA</h1>")
		_, _ = fmt.Fprintf(w, "<p>JSON: <a href=\"/api/status\">/api/status</a>, <a href=\"/api/lines\">/api/lines</a>. WebSocket: /api/stream.</p>")
		if snap.GPS != nil {
			g := snap.GPS
			_, _ = fmt.Fprintf(w, "<pre>source=%s\nvalid=%t\nlat_deg=%.6f\nlon_deg=%.6f\nlines=%d decoded=%d malformed=%d</pre>",
				g.Source, g.Valid, g.LatDeg, g.LonDeg, g.Lines, g.Decoded, g.Malformed,
			)
		}
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return mux
}

func Serve(ctx context.Context, listenAddr string, status *Status, hub *Hub, lines *LineBuffer) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(status, hub, lines),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
