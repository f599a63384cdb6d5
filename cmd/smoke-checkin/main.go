package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

// Smoke test against a running gatepass-api started without a DSN, so the
// demo fixtures (demo-token-1, demo@gatepass.dev) are present.
func main() {
	base := os.Getenv("GATEPASS_SMOKE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	client := &http.Client{Timeout: 5 * time.Second}

	bearer := os.Getenv("GATEPASS_SMOKE_TOKEN")
	if bearer == "" {
		var tok struct {
			Token string `json:"token"`
		}
		post(client, base+"/v1/auth/token", "", map[string]string{
			"email":    "demo@gatepass.dev",
			"password": "demo-password",
		}, http.StatusOK, &tok)
		bearer = tok.Token
	}

	var first struct {
		Status string `json:"status"`
		Record struct {
			ID string `json:"id"`
		} `json:"record"`
	}
	post(client, base+"/v1/checkins", bearer, map[string]string{
		"token":     "demo-token-1",
		"device_id": "smoke",
	}, http.StatusCreated, &first)
	if first.Status != "accepted" {
		log.Fatalf("first scan: status=%q, want accepted", first.Status)
	}

	var second struct {
		Status string `json:"status"`
		Record struct {
			ID string `json:"id"`
		} `json:"record"`
	}
	post(client, base+"/v1/checkins", bearer, map[string]string{
		"token":     "demo-token-1",
		"device_id": "smoke-2",
	}, http.StatusOK, &second)
	if second.Status != "duplicate" || second.Record.ID != first.Record.ID {
		log.Fatalf("rescan: status=%q record=%q, want duplicate of %q", second.Status, second.Record.ID, first.Record.ID)
	}

	var batch struct {
		Synced bool `json:"synced"`
		Items  []struct {
			Status string `json:"status"`
		} `json:"items"`
	}
	post(client, base+"/v1/checkins/sync", bearer, map[string]any{
		"batch_id":  fmt.Sprintf("smoke-%d", time.Now().UnixNano()),
		"device_id": "smoke",
		"items": []map[string]any{
			{"token": "demo-token-1", "event_time": time.Now().UTC().Add(-time.Hour)},
			{"token": "demo-token-2", "event_time": time.Now().UTC().Add(-30 * time.Minute)},
		},
	}, http.StatusOK, &batch)
	if !batch.Synced || len(batch.Items) != 2 {
		log.Fatalf("sync: synced=%v items=%d", batch.Synced, len(batch.Items))
	}
	if batch.Items[0].Status != "duplicate" || batch.Items[1].Status != "accepted" {
		log.Fatalf("sync outcomes: %q then %q, want duplicate then accepted", batch.Items[0].Status, batch.Items[1].Status)
	}

	fmt.Println("✅ gatepass-api smoke test passed")
}

func post(client *http.Client, url, bearer string, body any, wantCode int, out any) {
	buf, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal %s: %v", url, err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		log.Fatalf("build %s: %v", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantCode {
		log.Fatalf("POST %s: status %d, want %d", url, resp.StatusCode, wantCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("decode %s: %v", url, err)
		}
	}
}
