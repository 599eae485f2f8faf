package ics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	appLog "roomcal/internal/log"
)

// MaxFeedBytes bounds a downloaded or read calendar.
const MaxFeedBytes = 8 << 20

// Fetch returns the calendar at src, which is a local path or an http(s)
// URL. A nil client gets a 15s timeout.
func Fetch(ctx context.Context, client *http.Client, src string) ([]byte, error) {
	if src == "" {
		return nil, fmt.Errorf("calendar source is empty")
	}
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		f, err := os.Open(src)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return readBounded(f)
	}

	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar")

	appLog.Info("ics fetch start", "url", appLog.RedactURL(src))
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ics fetch: unexpected status %d", resp.StatusCode)
	}
	body, err := readBounded(resp.Body)
	if err != nil {
		return nil, err
	}
	appLog.Info("ics fetch completed", "url", appLog.RedactURL(src), "bytes", len(body))
	return body, nil
}

func readBounded(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxFeedBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxFeedBytes {
		return nil, fmt.Errorf("calendar exceeds %d bytes", MaxFeedBytes)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty calendar")
	}
	return body, nil
}
