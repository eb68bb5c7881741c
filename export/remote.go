package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang/glog"

	"github.com/hb9tf/specview/sdr"
)

const (
	contentType            = "application/json"
	framesEndpoint         = "specview/v1/frames"
	defaultSendFrameAmount = 10
)

// Remote forwards frames to the frames endpoint of another specview
// instance, in batches.
type Remote struct {
	Server           string
	SendFramesAmount int
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

type framesResponse struct {
	Status     string `json:"status"`
	FrameCount int    `json:"frameCount"`
}

// Forward sends frames until the channel is closed or ctx is done. A
// partial batch is sent when the channel closes. Failed batches are logged
// and dropped.
func (s *Remote) Forward(ctx context.Context, frames <-chan sdr.Frame) error {
	amount := defaultSendFrameAmount
	if s.SendFramesAmount > 0 {
		amount = s.SendFramesAmount
	}

	var batch []sdr.Frame
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				if len(batch) > 0 {
					s.send(ctx, batch)
				}
				return nil
			}
			batch = append(batch, f)
			if len(batch) < amount {
				continue // we haven't collected enough frames to send yet
			}
			s.send(ctx, batch)
			batch = nil
		}
	}
}

func (s *Remote) send(ctx context.Context, batch []sdr.Frame) {
	n, err := s.post(ctx, batch)
	if err != nil {
		glog.Warningf("error forwarding %d frames: %s", len(batch), err)
		return
	}
	glog.V(1).Infof("submitted %d frames to server %s", n, s.Server)
}

func (s *Remote) post(ctx context.Context, batch []sdr.Frame) (int, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return 0, fmt.Errorf("unable to marshal frames: %w", err)
	}
	url := fmt.Sprintf("%s/%s", strings.TrimRight(s.Server, "/"), framesEndpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", contentType)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("unable to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	fr := framesResponse{}
	if err := json.Unmarshal(respBody, &fr); err != nil {
		return 0, fmt.Errorf("unable to parse response: %w", err)
	}
	return fr.FrameCount, nil
}
