// Package webcam takes photos through the viewer page's camera.
//
// A capture is a round trip: the server broadcasts a capture request with a
// fresh id, the page grabs one frame from getUserMedia and answers with a
// JPEG data URL carrying the same id. Answers with any other id are stale
// and dropped.
package webcam

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"livedetect/internal/dto"
	"livedetect/internal/logger"
)

var (
	ErrMalformedDataURL = errors.New("malformed data URL")
	ErrEmptyPhoto       = errors.New("empty photo")
)

// Broadcaster pushes a message to every viewer.
type Broadcaster interface {
	Broadcast(message []byte)
}

type photo struct {
	data []byte
	err  error
}

type request struct {
	id      uint64
	quality float64
	reply   chan photo
}

// BrowserCamera has at most one capture in flight.
type BrowserCamera struct {
	out    Broadcaster
	logger *logger.Logger

	mu      sync.Mutex
	nextID  uint64
	pending *request
}

func NewBrowserCamera(out Broadcaster, logger *logger.Logger) *BrowserCamera {
	return &BrowserCamera{out: out, logger: logger}
}

// TakePhoto asks the page for one JPEG and waits for the answer or ctx.
// There is no timeout of its own; the camera permission prompt may take a while.
func (c *BrowserCamera) TakePhoto(ctx context.Context, quality float64) ([]byte, error) {
	c.mu.Lock()
	c.nextID++
	req := &request{id: c.nextID, quality: quality, reply: make(chan photo, 1)}
	c.pending = req
	c.mu.Unlock()

	c.out.Broadcast(requestMessage(req))

	select {
	case p := <-req.reply:
		return p.data, p.err
	case <-ctx.Done():
		c.mu.Lock()
		if c.pending == req {
			c.pending = nil
		}
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Deliver hands a frame message from the page to the waiting capture.
// It reports whether the message answered the pending request.
func (c *BrowserCamera) Deliver(msg dto.ViewMessage) bool {
	c.mu.Lock()
	req := c.pending
	if req == nil || req.id != msg.ID {
		c.mu.Unlock()
		c.logger.Warning("Dropping stale frame %d", msg.ID)
		return false
	}
	c.pending = nil
	c.mu.Unlock()

	if msg.Error != "" {
		req.reply <- photo{err: fmt.Errorf("browser camera: %s", msg.Error)}
		return true
	}

	data, err := DecodeDataURL(msg.Data)
	req.reply <- photo{data: data, err: err}
	return true
}

// PendingRequest returns the capture request still waiting for an answer,
// or nil. A viewer that connects mid-capture is sent this message.
func (c *BrowserCamera) PendingRequest() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return nil
	}
	return requestMessage(c.pending)
}

func requestMessage(req *request) []byte {
	data, _ := json.Marshal(dto.ViewMessage{Type: dto.MessageCapture, ID: req.id, Quality: req.quality})
	return data
}

// DecodeDataURL extracts the bytes of a base64 data URL such as the one
// produced by canvas.toDataURL.
func DecodeDataURL(url string) ([]byte, error) {
	if !strings.HasPrefix(url, "data:") {
		return nil, ErrMalformedDataURL
	}
	comma := strings.IndexByte(url, ',')
	if comma < 0 {
		return nil, ErrMalformedDataURL
	}
	if !strings.HasSuffix(url[:comma], ";base64") {
		return nil, fmt.Errorf("%w: not base64", ErrMalformedDataURL)
	}

	data, err := base64.StdEncoding.DecodeString(url[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("decode data URL: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyPhoto
	}
	return data, nil
}
