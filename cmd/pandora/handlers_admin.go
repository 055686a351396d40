package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// runAdminCancel POSTs the cancel endpoint for a trace or job against a
// running gateway and reports the result. A failure to reach the gateway at
// all is a backing-store-unavailable error (exit 3); a well-formed
// non-ok response from the gateway is reported but not itself a CLI error.
func runAdminCancel(ctx context.Context, addr, kind, id string) error {
	addr = strings.TrimRight(strings.TrimSpace(addr), "/")

	var path string
	switch kind {
	case "trace":
		path = fmt.Sprintf("%s/v1/thinking/%s/cancel", addr, id)
	case "job":
		path = fmt.Sprintf("%s/jobs/%s/cancel", addr, id)
	default:
		return badArgsError{fmt.Errorf("unknown cancel target %q", kind)}
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, path, nil)
	if err != nil {
		return badArgsError{fmt.Errorf("build request: %w", err)}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return storeUnavailableError{fmt.Errorf("reach gateway at %s: %w", addr, err)}
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return storeUnavailableError{fmt.Errorf("decode gateway response: %w", err)}
	}

	if resp.StatusCode == http.StatusNotFound {
		fmt.Printf("%s %q not found\n", kind, id)
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := body["error"].(string)
		if msg == "" {
			msg = fmt.Sprintf("gateway returned %d", resp.StatusCode)
		}
		return storeUnavailableError{fmt.Errorf("cancel %s %s: %s", kind, id, msg)}
	}

	if ok, _ := body["ok"].(bool); ok {
		fmt.Printf("%s %q cancelled\n", kind, id)
	} else {
		fmt.Printf("%s %q was not cancelled (already terminal?)\n", kind, id)
	}
	return nil
}
