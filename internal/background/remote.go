package background

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hpungsan/shiplens/internal/errors"
)

// Remote sends background messages to a running daemon's /rpc endpoint.
type Remote struct {
	baseURL string
	http    *http.Client
}

// NewRemote returns a client for the daemon at baseURL (e.g. http://127.0.0.1:7717).
// A zero timeout waits indefinitely, matching the daemon's own fetch policy.
func NewRemote(baseURL string, timeout time.Duration) *Remote {
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Call sends a message of kind with payload's fields and decodes the reply
// into reply. Envelope errors reported by the daemon come back as ShipErrors.
func (r *Remote) Call(ctx context.Context, kind Kind, payload any, reply any) error {
	msg := map[string]any{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return errors.NewInternal(err)
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			return errors.NewInternal(err)
		}
	}
	msg["type"] = kind

	body, err := json.Marshal(msg)
	if err != nil {
		return errors.NewInternal(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return errors.NewInternal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ClientHeader, ClientCLI)

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("shiplens daemon not reachable at %s (start it with `shiplens serve`): %w", r.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewInternal(err)
	}

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return &errors.ShipError{Code: errors.ErrorCode(e.Code), Status: resp.StatusCode, Message: e.Error}
		}
		return errors.NewInternal(fmt.Errorf("daemon returned status %d", resp.StatusCode))
	}

	if reply == nil {
		return nil
	}
	if err := json.Unmarshal(data, reply); err != nil {
		return errors.NewInternal(fmt.Errorf("decode reply: %w", err))
	}
	return nil
}
