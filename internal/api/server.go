// Package api is the HTTP surface of the listening test: the web page,
// its JSON endpoints and the monitor streams.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/satindergrewal/abxtest/internal/abx"
	"github.com/satindergrewal/abxtest/internal/audio"
	"github.com/satindergrewal/abxtest/internal/metrics"
	"github.com/satindergrewal/abxtest/internal/stream"
	"github.com/satindergrewal/abxtest/internal/web"
)

// Deps are the components the handlers talk to. Only Coordinator and
// Feed are required.
type Deps struct {
	Coordinator    *abx.Coordinator
	Feed           *Feed
	Player         *stream.Player
	Broadcaster    *stream.Broadcaster
	WebRTC         *stream.WebRTCHandler
	Metrics        *metrics.Metrics
	DefaultBitrate audio.Bitrate
}

// NewHandler builds the route table.
func NewHandler(d Deps) http.Handler {
	if d.DefaultBitrate == 0 {
		d.DefaultBitrate = 165
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(web.IndexHTML)
	})

	if d.Broadcaster != nil {
		mux.Handle("/stream", stream.NewHTTPHandler(d.Broadcaster))
	}
	if d.WebRTC != nil {
		mux.Handle("/offer", d.WebRTC)
	}
	if d.Metrics != nil {
		mux.Handle("/metrics", d.Metrics.Handler())
	}

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		st, err := d.Coordinator.Status(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		resp := map[string]any{
			"session_id":      st.SessionID,
			"state":           st.State,
			"source":          st.Source,
			"bitrate":         st.Bitrate,
			"default_bitrate": int(d.DefaultBitrate),
			"bitrates":        st.Bitrates,
			"score":           st.Score,
			"p_value":         st.PValue,
			"significant":     st.Significant,
			"needed":          st.Needed,
			"alpha":           st.Alpha,
			"opening":         st.Opening,
			"converting":      st.Converting,
			"queued":          st.Queued,
			"feed":            d.Feed.Snapshot(),
		}
		if d.Player != nil {
			track, pos, dur := d.Player.Status()
			// The file name would give the answer away; only expose timing.
			resp["playing"] = track.ID != ""
			resp["position"] = pos.Seconds()
			resp["duration"] = dur.Seconds()
		}
		if d.Broadcaster != nil {
			resp["http_listeners"] = d.Broadcaster.ListenerCount()
		}
		if d.WebRTC != nil {
			resp["webrtc_listeners"] = d.WebRTC.PeerCount()
		}
		writeJSON(w, resp)
	})

	mux.HandleFunc("/api/open", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := d.Coordinator.Open(r.Context(), req.Path); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "pending": req.Path != ""})
	})

	mux.HandleFunc("/api/convert", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Bitrate json.Number `json:"bitrate"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		bitrate := d.DefaultBitrate
		if req.Bitrate != "" {
			b, err := audio.ParseBitrate(req.Bitrate.String())
			if err != nil {
				writeError(w, err)
				return
			}
			bitrate = b
		}
		if err := d.Coordinator.Convert(r.Context(), bitrate); err != nil {
			writeError(w, err)
			return
		}
		log.Printf("Converting at %s...", bitrate)
		writeJSON(w, map[string]any{"ok": true, "bitrate": int(bitrate)})
	})

	mux.HandleFunc("/api/play", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Label string `json:"label"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		label, err := abx.ParseLabel(req.Label)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := d.Coordinator.Play(r.Context(), label); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "label": label.String()})
	})

	mux.HandleFunc("/api/stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		if d.Player != nil {
			d.Player.Stop()
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("/api/guess", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Guess string `json:"guess"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		g, err := abx.ParseGuess(req.Guess)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out, err := d.Coordinator.Guess(r.Context(), g)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{
			"ok":      true,
			"correct": out.Correct,
			"score":   out.Score,
			"p_value": out.PValue,
			"display": fmt.Sprintf("%s p=%.3f", out.Score, out.PValue),
		})
	})

	// Artifacts can be downloaded for inspection. The residual gives
	// nothing away; the converted file is named after its bitrate anyway.
	mux.HandleFunc("/api/artifact", func(w http.ResponseWriter, r *http.Request) {
		st, err := d.Coordinator.Status(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		var path string
		switch r.URL.Query().Get("kind") {
		case "mixed", "":
			path = st.MixedPath
		case "converted":
			path = st.ConvertedPath
		default:
			http.Error(w, "kind must be mixed or converted", http.StatusBadRequest)
			return
		}
		if path == "" {
			http.Error(w, "nothing converted yet", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%s`, strconv.Quote(filepath.Base(path))))
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeFile(w, r, path)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, abx.ErrNotReady):
		code = http.StatusConflict
	case errors.Is(err, audio.ErrEncode), errors.Is(err, audio.ErrDecode):
		code = http.StatusBadRequest
	case errors.Is(err, audio.ErrQueueFull), errors.Is(err, abx.ErrStopped):
		code = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), code)
}
