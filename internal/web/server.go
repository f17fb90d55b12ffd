// Package web serves the tracker status API, a live websocket feed and a
// small status page.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"a9g-tracker/internal/gps"
	"a9g-tracker/internal/store"
)

// TrackSource is the stored track history. Nil disables /api/track.
type TrackSource interface {
	Recent(ctx context.Context, limit int) ([]store.TrackPoint, error)
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

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

type SatellitesResponse struct {
	SatsInView int            `json:"sats_in_view"`
	SatsInUse  int            `json:"sats_in_use"`
	Satellites []gps.Satellite `json:"satellites"`
}

func Handler(status *Status, track TrackSource, logs *LogBuffer, logger *zap.SugaredLogger) http.Handler {
	if status == nil {
		status = NewStatus(nil)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	log := logger.Named("web")
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		writeJSON(w, status.Snapshot(time.Now().UTC()))
	})

	mux.HandleFunc("/api/satellites", func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		if status.gps == nil {
			http.Error(w, "gps unavailable", http.StatusNotFound)
			return
		}
		snap := status.gps.Snapshot()
		resp := SatellitesResponse{
			SatsInView: snap.SatsInView,
			SatsInUse:  snap.SatsInUse,
			Satellites: snap.Satellites,
		}
		if resp.Satellites == nil {
			resp.Satellites = []gps.Satellite{}
		}
		writeJSON(w, resp)
	})

	mux.HandleFunc("/api/track", func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		if track == nil {
			http.Error(w, "track store disabled", http.StatusNotFound)
			return
		}
		limit := 100
		if s := strings.TrimSpace(r.URL.Query().Get("limit")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > 10000 {
				http.Error(w, "limit must be an integer in [1,10000]", http.StatusBadRequest)
				return
			}
			limit = v
		}
		points, err := track.Recent(r.Context(), limit)
		if err != nil {
			log.Warnw("track query failed", "error", err)
			http.Error(w, "track query failed", http.StatusInternalServerError)
			return
		}
		if points == nil {
			points = []store.TrackPoint{}
		}
		writeJSON(w, struct {
			Points []store.TrackPoint `json:"points"`
		}{points})
	})

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}
	mux.HandleFunc("/api/about", aboutHandler(status))
	mux.HandleFunc("/api/live", liveHandler(status.gps, log))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexHTML))
	})

	return mux
}

func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
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

const indexHTML = `<!doctype html>
<html><head><meta charset="utf-8"><title>A9G tracker</title>
<style>body{font-family:monospace;margin:1em}pre{background:#eee;padding:.5em}</style>
</head><body>
<h1>A9G tracker</h1>
<p><a href="/api/status">status</a> | <a href="/api/satellites">satellites</a> |
<a href="/api/track">track</a> | <a href="/api/logs?format=text">logs</a></p>
<pre id="fix">waiting for fix...</pre>
<script>
const el = document.getElementById("fix");
function connect() {
  const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/api/live");
  ws.onmessage = (ev) => {
    const s = JSON.parse(ev.data);
    el.textContent = [
      "fix:    " + s.fix_type + (s.fix_stale ? " (stale)" : ""),
      "sats:   " + s.sats_in_use + "/" + s.sats_in_view,
      "pos:    " + (s.lat_text || "-") + " " + (s.lon_text || "-"),
      "speed:  " + s.speed_kph.toFixed(1) + " km/h",
      "course: " + s.course_deg.toFixed(1) + " " + (s.compass || ""),
      "time:   " + (s.time || "-") + " " + (s.date || ""),
    ].join("\n");
  };
  ws.onclose = () => setTimeout(connect, 2000);
}
connect();
</script>
</body></html>
`
