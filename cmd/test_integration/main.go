// Command test_integration drives a running powermatch server through one run.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func baseURL() string {
	if u := os.Getenv("POWERMATCH_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func main() {
	// Wait for server to start
	time.Sleep(2 * time.Second)

	fmt.Println("Starting Integration Test...")

	fmt.Println("1. Health check...")
	if _, ok := send(http.MethodGet, "/healthz", nil); !ok {
		fmt.Println("FAILED: Health check")
		os.Exit(1)
	}
	fmt.Println("PASSED: Health check")

	fmt.Println("2. Running match...")
	payload := map[string]any{
		"datasets": []map[string]any{
			{"source": "GEO", "records": []map[string]any{
				{"record_id": "g1", "name": "Boxberg", "fueltype": "Lignite", "country": "Germany", "capacity_mw": 2575, "lat": 51.41, "lon": 14.56},
				{"record_id": "g2", "name": "Jaenschwalde", "fueltype": "Lignite", "country": "Germany", "capacity_mw": 3000},
			}},
			{"source": "OPSD", "records": []map[string]any{
				{"record_id": "o1", "name": "Boxberg", "fueltype": "Lignite", "country": "Germany", "capacity_mw": 2427},
				{"record_id": "o2", "name": "Lippendorf", "fueltype": "Lignite", "country": "Germany", "capacity_mw": 1840},
			}},
		},
	}
	body, ok := send(http.MethodPost, "/runs?wait=true", payload)
	if !ok {
		fmt.Println("FAILED: Run")
		os.Exit(1)
	}
	var run struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &run); err != nil || run.Status != "succeeded" {
		fmt.Printf("FAILED: Run did not succeed: %s\n", body)
		os.Exit(1)
	}
	fmt.Println("PASSED: Run")

	fmt.Println("3. Fetching plants...")
	body, ok = send(http.MethodGet, "/runs/"+run.ID+"/plants", nil)
	if !ok {
		fmt.Println("FAILED: Plants")
		os.Exit(1)
	}
	var plants struct {
		Plants []json.RawMessage `json:"plants"`
	}
	if err := json.Unmarshal(body, &plants); err != nil || len(plants.Plants) == 0 {
		fmt.Printf("FAILED: No plants returned: %s\n", body)
		os.Exit(1)
	}
	fmt.Printf("PASSED: Plants (%d)\n", len(plants.Plants))
}

func send(method, endpoint string, payload any) ([]byte, bool) {
	var body io.Reader
	if payload != nil {
		jsonBytes, _ := json.Marshal(payload)
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL()+endpoint, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return nil, false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return nil, false
	}
	fmt.Printf("Response: %s\n", string(respBody))
	return respBody, true
}
