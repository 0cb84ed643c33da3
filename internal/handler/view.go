package handler

import (
	"encoding/json"
	"net/http"

	"livedetect/internal/dto"
	"livedetect/internal/logger"
	hub "livedetect/internal/service/websocket"

	"github.com/gorilla/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ViewEvents receives what a viewer page sends back.
type ViewEvents interface {
	// PressStop is the stop button click.
	PressStop()
	// DeliverFrame is a webcam photo or capture error answering a capture request.
	DeliverFrame(msg dto.ViewMessage)
}

// ViewWebsocketHandler handles viewer connections over WebSocket, registers
// them in the HubService and dispatches their messages to events.
func ViewWebsocketHandler(hubService *hub.HubService, events ViewEvents, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		client := hubService.NewClient(connection)
		err = client.Serve(func(message []byte) {
			dispatchViewMessage(message, events, logger)
		})

		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			logger.Info("Viewer disconnected normally")
		} else if err != nil {
			logger.Warning("Viewer disconnected with error: %v", err)
		}
	}
}

func dispatchViewMessage(message []byte, events ViewEvents, logger *logger.Logger) {
	var msg dto.ViewMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		logger.Warning("Ignoring malformed viewer message: %v", err)
		return
	}

	switch msg.Type {
	case dto.MessageStop:
		events.PressStop()
	case dto.MessageFrame:
		events.DeliverFrame(msg)
	default:
		logger.Warning("Ignoring viewer message of type %q", msg.Type)
	}
}
