package companion

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	analysis "github.com/zhouzirui/anchor-coach/backend/internal/analysis/stress"
	"github.com/zhouzirui/anchor-coach/backend/internal/model/stress"
	hubservice "github.com/zhouzirui/anchor-coach/backend/internal/service/companion"
)

func TestCompanionWebSocket(t *testing.T) {
	hub := hubservice.NewHub(hubservice.DefaultOptions())
	r := chi.NewRouter()
	New(hub).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/companion/ws?device=watch-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connection was not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := conn.WriteJSON(map[string]any{"heartRate": 120}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		if bpm, ok := hub.ElevatedHeartRate(); ok && bpm == 120 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("heart rate not observed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	sent := hub.NotifyTransition(analysis.Transition{From: stress.Calm, To: stress.Spiking, MeanStress: 0.8, At: time.Now()})
	if sent != 1 {
		t.Fatalf("expected one delivery, got %d", sent)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg hubservice.Outbound
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "stressLevel" || msg.StressLevel != "spiking" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}
