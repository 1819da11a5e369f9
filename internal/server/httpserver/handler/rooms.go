package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/yndnr/roomrelay/internal/core/domain"
	"github.com/yndnr/roomrelay/internal/telemetry/logger"
)

// handlePublish handles POST /rooms/{room}/messages. The request body is
// the message, forwarded unchanged to every member of the room.
func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	room, err := domain.NormalizeGroup(r.PathValue("room"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	limit := int64(h.pub.MaxPayload())
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.handleServiceError(w, r, domain.ErrPayloadTooLarge.WithDetails("limit "+strconv.FormatInt(limit, 10)+" bytes"))
			return
		}
		h.writeError(w, r, http.StatusBadRequest, domain.ErrInvalidFrame.Code, "failed to read request body")
		return
	}

	n, err := h.pub.Publish(r.Context(), room, body)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	logger.L(r.Context()).Debug("message published", "room", room, "bytes", len(body), "receivers", n)
	h.writeJSON(w, r, http.StatusOK, PublishResponse{Room: room, Receivers: n})
}

// handleGetRoom handles GET /rooms/{room}.
func (h *Handler) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := domain.NormalizeGroup(r.PathValue("room"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	n, err := h.count.Count(r.Context(), room)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, RoomResponse{Room: room, Connections: n})
}
