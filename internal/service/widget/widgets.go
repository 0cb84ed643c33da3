// Package widget holds the state of the viewer page: status label, image
// and stop button. Every change is pushed to connected viewers.
package widget

import (
	"encoding/base64"
	"encoding/json"
	"sync"

	"livedetect/internal/dto"
	"livedetect/internal/logger"
	"livedetect/internal/service/pipeline"
)

const (
	LabelStop    = "STOP Detection"
	LabelStopped = "Detection Stopped"
)

// Broadcaster pushes a message to every viewer.
type Broadcaster interface {
	Broadcast(message []byte)
}

// Stopper is the loop side of the stop button.
type Stopper interface {
	Stop()
}

// Button is the stop button state.
type Button struct {
	Label    string
	Disabled bool
}

// Widgets implements pipeline.Display on top of a Broadcaster.
type Widgets struct {
	mu     sync.RWMutex
	out    Broadcaster
	logger *logger.Logger

	status pipeline.Status
	image  []byte
	button Button
}

func New(out Broadcaster, logger *logger.Logger) *Widgets {
	return &Widgets{
		out:    out,
		logger: logger,
		status: pipeline.StatusWaiting,
		button: Button{Label: LabelStop},
	}
}

func (w *Widgets) SetStatus(status pipeline.Status) {
	w.mu.Lock()
	w.status = status
	w.mu.Unlock()

	w.push(statusMessage(status))
}

// SetImage replaces the displayed frame. Empty input leaves the previous frame.
func (w *Widgets) SetImage(jpeg []byte) {
	if len(jpeg) == 0 {
		return
	}

	w.mu.Lock()
	w.image = jpeg
	w.mu.Unlock()

	w.push(imageMessage(jpeg))
}

func (w *Widgets) Status() pipeline.Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

func (w *Widgets) Image() []byte {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.image
}

func (w *Widgets) Button() Button {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.button
}

// PressStop handles a click on the stop button. Clicks on a disabled button
// are ignored.
func (w *Widgets) PressStop(loop Stopper) {
	w.mu.Lock()
	if w.button.Disabled {
		w.mu.Unlock()
		return
	}
	w.button = Button{Label: LabelStopped, Disabled: true}
	button := w.button
	w.mu.Unlock()

	w.logger.Info("Stop button pressed")
	w.SetStatus(pipeline.StatusStopping)
	w.push(buttonMessage(button))
	loop.Stop()
}

// Snapshot returns the messages that bring a new viewer up to date.
func (w *Widgets) Snapshot() [][]byte {
	w.mu.RLock()
	status, image, button := w.status, w.image, w.button
	w.mu.RUnlock()

	messages := [][]byte{statusMessage(status), buttonMessage(button)}
	if len(image) > 0 {
		messages = append(messages, imageMessage(image))
	}
	return messages
}

func (w *Widgets) push(message []byte) {
	if message == nil || w.out == nil {
		return
	}
	w.out.Broadcast(message)
}

func statusMessage(status pipeline.Status) []byte {
	return encode(dto.ViewMessage{Type: dto.MessageStatus, Text: status.Text, Color: status.Color})
}

func imageMessage(jpeg []byte) []byte {
	return encode(dto.ViewMessage{Type: dto.MessageImage, Data: base64.StdEncoding.EncodeToString(jpeg)})
}

func buttonMessage(button Button) []byte {
	return encode(dto.ViewMessage{Type: dto.MessageButton, Label: button.Label, Disabled: button.Disabled})
}

func encode(msg dto.ViewMessage) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return data
}
