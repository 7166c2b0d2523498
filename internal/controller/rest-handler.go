package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sharetube/playsync/internal/service/relay"
	"github.com/sharetube/playsync/pkg/ytvideodata"
)

func (c controller) healthCheck(w http.ResponseWriter, r *http.Request) {
	c.writeJSON(w, http.StatusOK, envelope{"status": "ok"})
}

func (c controller) setMediaURL(w http.ResponseWriter, r *http.Request) {
	var params relay.SetMediaURLParams
	if err := c.readJSON(w, r, &params); err != nil {
		c.writeJSON(w, http.StatusBadRequest, envelope{"error": err.Error()})
		return
	}

	if errs, ok := c.validate.Validate(params); !ok {
		c.writeJSON(w, http.StatusUnprocessableEntity, envelope{"errors": errs})
		return
	}

	if err := c.relayService.SetMediaURL(r.Context(), &params); err != nil {
		c.logger.ErrorContext(r.Context(), "failed to set media url", "room_id", params.RoomID, "error", err)
		c.writeJSON(w, http.StatusInternalServerError, envelope{"error": "internal error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c controller) getRoom(w http.ResponseWriter, r *http.Request) {
	resp, err := c.relayService.GetRoom(r.Context(), chi.URLParam(r, "room-id"))
	if err != nil {
		if errors.Is(err, relay.ErrRoomNotFound) {
			c.writeJSON(w, http.StatusNotFound, envelope{"error": err.Error()})
			return
		}
		c.logger.ErrorContext(r.Context(), "failed to get room", "error", err)
		c.writeJSON(w, http.StatusInternalServerError, envelope{"error": "internal error"})
		return
	}

	c.writeJSON(w, http.StatusOK, resp)
}

type videoQuery struct {
	URL string `json:"url" validate:"required,youtube_url"`
}

// getVideo resolves title and thumbnail of a youtube link for the room UI.
func (c controller) getVideo(w http.ResponseWriter, r *http.Request) {
	query := videoQuery{URL: r.URL.Query().Get("url")}
	if errs, ok := c.validate.Validate(query); !ok {
		c.writeJSON(w, http.StatusUnprocessableEntity, envelope{"errors": errs})
		return
	}
	if c.videoData == nil {
		c.writeJSON(w, http.StatusNotImplemented, envelope{"error": "video lookup disabled"})
		return
	}

	videoID, err := ytvideodata.ParseVideoID(query.URL)
	if err != nil {
		c.writeJSON(w, http.StatusBadRequest, envelope{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), c.cfg.VideoDataTimeout)
	defer cancel()

	data, err := c.videoData.Get(ctx, videoID)
	switch {
	case err == nil:
		c.writeJSON(w, http.StatusOK, data)
	case errors.Is(err, ytvideodata.ErrVideoNotFound):
		c.writeJSON(w, http.StatusNotFound, envelope{"error": err.Error()})
	case errors.Is(err, ytvideodata.ErrVideoNotEmbeddable):
		c.writeJSON(w, http.StatusUnprocessableEntity, envelope{"error": err.Error()})
	default:
		c.logger.WarnContext(r.Context(), "failed to get video data", "video_id", videoID, "error", err)
		c.writeJSON(w, http.StatusBadGateway, envelope{"error": "video lookup failed"})
	}
}
