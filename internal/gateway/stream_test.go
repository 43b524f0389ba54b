package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/aerolabs/aero-backend/internal/providers"
)

func streamingProvider(chunks ...string) *funcProvider {
	return &funcProvider{
		name: "gemini",
		genFn: func(ctx context.Context, req *providers.GenRequest) (*providers.GenResult, error) {
			ch := make(chan providers.Update, len(chunks)+1)
			for _, c := range chunks {
				ch <- providers.Update{Text: c}
			}
			ch <- providers.Update{Done: true}
			close(ch)
			return &providers.GenResult{Stream: ch}, nil
		},
	}
}

func TestStreaming_NDJSONFraming(t *testing.T) {
	gw := newTestGateway(t, map[string]providers.Provider{
		"gemini": streamingProvider("hello ", "world"),
	}, nil, GatewayOptions{})
	client := serveGateway(t, gw)

	resp := doPost(t, client, "/api/model-research",
		[]byte(`{"prompt":"stream this","streaming":true}`))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/x-ndjson") {
		t.Errorf("expected application/x-ndjson content type, got %s", ct)
	}

	var lines []streamLine
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		raw := scanner.Text()
		if raw == "" {
			continue
		}
		var l streamLine
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			t.Fatalf("line %q is not valid JSON: %v", raw, err)
		}
		lines = append(lines, l)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(lines) != 3 {
		t.Fatalf("expected 3 NDJSON lines, got %d: %+v", len(lines), lines)
	}
	// Text deltas arrive in order, then a single done marker.
	if lines[0].Text != "hello " || lines[1].Text != "world" {
		t.Errorf("unexpected delta order: %+v", lines)
	}
	if lines[0].Done || lines[1].Done {
		t.Error("intermediate lines must not carry done")
	}
	last := lines[len(lines)-1]
	if !last.Done {
		t.Error("final line must carry done=true")
	}
	if last.Provider != "gemini" {
		t.Errorf("final line provider %q", last.Provider)
	}
}

func TestStreaming_NotCached(t *testing.T) {
	sc := newStubCache()
	gw := newTestGateway(t, map[string]providers.Provider{
		"gemini": streamingProvider("chunk"),
	}, sc, GatewayOptions{})
	client := serveGateway(t, gw)

	resp := doPost(t, client, "/api/research-plan",
		[]byte(`{"prompt":"stream this","streaming":true}`))
	readBody(t, resp)

	if len(sc.store) != 0 {
		t.Error("streaming responses must never populate the cache")
	}
}

func TestStreaming_StreamFieldOmittedFromEnvelope(t *testing.T) {
	// GenOutput.Stream is transport-only; it must not serialize.
	out := GenOutput{Summary: "s", Provider: "gemini"}
	b, err := json.Marshal(out)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "Stream") {
		t.Errorf("stream channel leaked into JSON: %s", b)
	}
}
