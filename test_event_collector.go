package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"
)

type ClassificationEvent struct {
	Filename    string    `json:"filename"`
	Timestamp   time.Time `json:"timestamp"`
	HasSound    bool      `json:"has_sound"`
	IsKnocking  bool      `json:"is_knocking"`
	IsSpeech    bool      `json:"is_speech"`
	IsVoice     bool      `json:"is_voice"`
	Confidence  float64   `json:"confidence"`
	ProcessedAt time.Time `json:"processed_at"`
}

var (
	requestCount int64
	failFirst    int64
)

func eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	count := atomic.AddInt64(&requestCount, 1)

	// Optionally fail the first N requests to exercise the reporting
	// client's retry path
	if count <= atomic.LoadInt64(&failFirst) {
		log.Printf("💥 INJECTED FAILURE (%d/%d), returning 503", count, failFirst)
		http.Error(w, "Injected failure", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Error reading body", http.StatusBadRequest)
		return
	}

	var event ClassificationEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("❌ INVALID EVENT PAYLOAD: %v", err)
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	// Validate required fields
	if event.Filename == "" {
		log.Printf("❌ EVENT MISSING FILENAME")
		http.Error(w, "filename is required", http.StatusBadRequest)
		return
	}
	if event.Timestamp.IsZero() {
		log.Printf("❌ EVENT MISSING TIMESTAMP")
		http.Error(w, "timestamp is required", http.StatusBadRequest)
		return
	}
	if event.Confidence < 0 || event.Confidence > 1 {
		log.Printf("❌ EVENT CONFIDENCE OUT OF RANGE: %f", event.Confidence)
		http.Error(w, "confidence must be in [0,1]", http.StatusBadRequest)
		return
	}

	// Log comprehensive event information
	log.Printf("🧺 CLASSIFICATION EVENT RECEIVED:")
	log.Printf("  ═══════════════════════════════════")
	log.Printf("  📊 Clip Info:")
	log.Printf("    Filename: %s", event.Filename)
	log.Printf("    Captured: %s", event.Timestamp.Format(time.RFC3339))
	log.Printf("    Processed: %s", event.ProcessedAt.Format(time.RFC3339))
	log.Printf("  ═══════════════════════════════════")
	log.Printf("  🔎 Classification:")
	log.Printf("    Has Sound: %v", event.HasSound)
	log.Printf("    Is Knocking: %v", event.IsKnocking)
	log.Printf("    Confidence: %.3f", event.Confidence)
	if event.IsKnocking {
		log.Printf("  🚨 KNOCKING DETECTED, check the washing machine!")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "received",
		"filename":    event.Filename,
		"received_at": time.Now().UTC(),
	})

	log.Println("---")
}

func main() {
	if v := os.Getenv("FAIL_FIRST"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			atomic.StoreInt64(&failFirst, n)
			log.Printf("⚙️  Failure injection enabled: first %d requests get 503", n)
		}
	}

	http.HandleFunc("/events", eventsHandler)

	port := ":9000"
	log.Printf("🚀 Test Event Collector starting on port %s", port)
	log.Printf("📡 Endpoint: http://localhost%s/events", port)
	log.Println("💡 Update your config to use: http://localhost:9000/events")

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
