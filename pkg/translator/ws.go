package translator

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// WSTranslator is a realtime translation client over a persistent
// WebSocket connection, adapted from this toolkit's existing
// websocket-based streaming client: one lazily-dialed connection, one JSON
// request and one JSON response per call. A failed write or read drops the
// connection so the next call redials; a remote error reply keeps it.
type WSTranslator struct {
	apiKey string
	host   string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSTranslator constructs a translator client against host (e.g.
// "api.lokutor.com").
func NewWSTranslator(apiKey, host string) *WSTranslator {
	return &WSTranslator{apiKey: apiKey, host: host}
}

func (t *WSTranslator) getConn(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return t.conn, nil
	}

	u := url.URL{Scheme: "wss", Host: t.host, Path: "/translate", RawQuery: "api_key=" + t.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("translator: failed to connect: %w", err)
	}

	t.conn = conn
	return conn, nil
}

func (t *WSTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	conn, err := t.getConn(ctx)
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	req := map[string]interface{}{
		"text":   text,
		"source": sourceLang,
		"target": targetLang,
	}

	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.conn = nil
		conn.Close(websocket.StatusAbnormalClosure, "failed to write json")
		return "", fmt.Errorf("translator: failed to send request: %w", err)
	}

	var resp struct {
		Translated string `json:"translated"`
		Err        string `json:"error"`
	}
	if err := wsjson.Read(ctx, conn, &resp); err != nil {
		t.conn = nil
		conn.Close(websocket.StatusAbnormalClosure, "failed to read")
		return "", fmt.Errorf("translator: failed to read response: %w", err)
	}
	if resp.Err != "" {
		return "", fmt.Errorf("translator: remote error: %s", resp.Err)
	}

	return resp.Translated, nil
}

// Supports reports whether this backend serves the given language pair.
// The remote service accepts any BCP-47-ish pair; only same-language
// no-ops are rejected.
func (t *WSTranslator) Supports(sourceLang, targetLang string) bool {
	return sourceLang != targetLang
}

// Close releases the underlying connection, if any.
func (t *WSTranslator) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		err := t.conn.Close(websocket.StatusNormalClosure, "")
		t.conn = nil
		return err
	}
	return nil
}
