package gateway

import (
	"bufio"
	"encoding/json"
	"fmt"

	"github.com/aerolabs/aero-backend/internal/providers"
	"github.com/valyala/fasthttp"
)

// streamLine is one NDJSON frame. Every frame carries the accumulated-so-far
// flag pattern the frontend expects: text deltas until a final done marker.
type streamLine struct {
	Text     string `json:"text,omitempty"`
	Done     bool   `json:"done,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// writeNDJSON streams provider updates as newline-delimited JSON, one object
// per line. The writer stops pulling from the channel as soon as the client
// disconnects; the provider goroutine observes the closed context and exits.
func writeNDJSON(ctx *fasthttp.RequestCtx, provider string, updates <-chan providers.Update, onComplete func(lines int)) {
	ctx.SetContentType("application/x-ndjson")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.SetStatusCode(fasthttp.StatusOK)

	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() { recover() }() //nolint:errcheck // panic recovery in stream writer

		lines := 0
		for u := range updates {
			line := streamLine{Text: u.Text, Done: u.Done}
			if u.Done {
				line.Provider = provider
			}
			data, err := json.Marshal(line)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "%s\n", data)
			if err := w.Flush(); err != nil {
				// Client went away. Stop pulling so the producer can
				// observe cancellation instead of blocking forever.
				break
			}
			lines++
			if u.Done {
				break
			}
		}

		if onComplete != nil {
			onComplete(lines)
		}
	})
}
