package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterMux binds gorilla/mux routes.
func (h *Handler) RegisterMux(r *mux.Router) {
	r.HandleFunc(routeCodecConfig, h.handleCodecConfig).
		Methods(http.MethodGet).
		Name(routeNameCodecConfig)

	r.HandleFunc(routeFramesParse, h.handleFramesParse).
		Methods(http.MethodPost).
		Name(routeNameFramesParse)

	r.HandleFunc(routeFramesEncode, h.handleFramesEncode).
		Methods(http.MethodPost).
		Name(routeNameFramesEncode)

	r.HandleFunc(routeFramesDecode, h.handleFramesDecode).
		Methods(http.MethodPost).
		Name(routeNameFramesDecode)
}
