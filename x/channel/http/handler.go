package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	apicommon "github.com/compose-network/batcher/server/api"
	"github.com/compose-network/batcher/x/channel"
	"github.com/compose-network/batcher/x/derive"
	"github.com/compose-network/batcher/x/inbox"
)

// Handler serves the codec endpoints. Every request runs on its own channel
// manager or channel bank.
type Handler struct {
	deps Deps
	log  zerolog.Logger
}

func NewHandler(deps Deps, log zerolog.Logger) *Handler {
	if deps.WriteMetrics == nil {
		deps.WriteMetrics = channel.NoopMetrics{}
	}
	if deps.ReadMetrics == nil {
		deps.ReadMetrics = derive.NoopMetrics{}
	}
	return &Handler{
		deps: deps,
		log:  log.With().Str("component", "codec-http").Logger(),
	}
}

// handleCodecConfig returns the active codec configuration
func (h *Handler) handleCodecConfig(w http.ResponseWriter, _ *http.Request) {
	apicommon.WriteJSON(w, http.StatusOK, CodecConfig{
		ChainID: h.deps.ChainID.Uint64(),
		Channel: h.deps.Channel,
		Derive:  h.deps.Derive,
		Inbox:   h.deps.Inbox,
	})
}

// handleFramesParse lists the frames in a version 0 payload
func (h *Handler) handleFramesParse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	frames, err := derive.ParseFrames(req.Data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := ParseResponse{Frames: make([]FrameInfo, 0, len(frames))}
	for _, f := range frames {
		resp.Frames = append(resp.Frames, FrameInfo{
			ChannelID:   f.ID.String(),
			FrameNumber: f.FrameNumber,
			DataLength:  len(f.Data),
			IsLast:      f.IsLast,
		})
	}
	apicommon.WriteJSON(w, http.StatusOK, resp)
}

// handleFramesEncode batches blocks into submissions
func (h *Handler) handleFramesEncode(w http.ResponseWriter, r *http.Request) {
	var req EncodeRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	resp, err := Encode(r.Context(), h.deps, h.log, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.log.Debug().
		Int("blocks", len(req.Blocks)).
		Int("submissions", len(resp.Submissions)).
		Int("blob_txs", len(resp.BlobTxs)).
		Msg("Encoded blocks")
	apicommon.WriteJSON(w, http.StatusOK, resp)
}

// handleFramesDecode derives blocks from submissions
func (h *Handler) handleFramesDecode(w http.ResponseWriter, r *http.Request) {
	var req DecodeRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	resp, err := Decode(r.Context(), h.deps, h.log, req)
	if err != nil && (resp == nil || len(resp.Blocks) == 0) {
		h.writeError(w, r, err)
		return
	}
	// partial results are a success; the failures are listed in resp.Errors
	apicommon.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apicommon.WriteError(w, r, http.StatusRequestEntityTooLarge, "body_too_large", err.Error(), nil)
			return false
		}
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_json", err.Error(), nil)
		return false
	}
	return true
}

// writeError maps codec errors to 422 with their kind as code.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var cerr *derive.CodecError
	switch {
	case errors.Is(err, ErrNoBlocks):
		apicommon.WriteError(w, r, http.StatusBadRequest, "no_blocks", err.Error(), nil)
	case errors.Is(err, channel.ErrReorg):
		apicommon.WriteError(w, r, http.StatusBadRequest, "non_contiguous_blocks", err.Error(), nil)
	case errors.Is(err, inbox.ErrObjectNotFound):
		apicommon.WriteError(w, r, http.StatusNotFound, "object_not_found", err.Error(), nil)
	case errors.As(err, &cerr):
		var details any
		if len(cerr.Context) > 0 {
			details = cerr.Context
		}
		apicommon.WriteError(w, r, http.StatusUnprocessableEntity, cerr.Kind.String(), err.Error(), details)
	default:
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Codec request failed")
		apicommon.WriteError(w, r, http.StatusInternalServerError, "internal_error", err.Error(), nil)
	}
}
