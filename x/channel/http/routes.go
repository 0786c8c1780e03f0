package http

// Route patterns for the codec HTTP surface.
const (
	routeCodecConfig  = "/v1/codec/config"
	routeFramesParse  = "/v1/frames/parse"
	routeFramesEncode = "/v1/frames/encode"
	routeFramesDecode = "/v1/frames/decode"
)

// Route names for mux URL building.
const (
	routeNameCodecConfig  = "codec_config"
	routeNameFramesParse  = "frames_parse"
	routeNameFramesEncode = "frames_encode"
	routeNameFramesDecode = "frames_decode"
)
