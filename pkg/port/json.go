package port

import (
	"log/slog"

	"github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"
)

const contentTypeJSON = "application/json"

// writeJSON encodes `body` as the response with the given status code.
func writeJSON(ctx *fasthttp.RequestCtx, statusCode int, body any) {
	encoded, err := sonic.Marshal(body)
	if err != nil {
		slog.Error("Failed to encode response.", "path", string(ctx.Path()), "error", err)
		ctx.Error(`{"detail":"failed to encode response"}`, fasthttp.StatusInternalServerError)
		ctx.SetContentType(contentTypeJSON)
		return
	}
	writeRawJSON(ctx, statusCode, encoded)
}

// writeRawJSON sends an already encoded JSON document, e.g. a Civitai response passed through.
func writeRawJSON(ctx *fasthttp.RequestCtx, statusCode int, encoded []byte) {
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType(contentTypeJSON)
	ctx.SetBody(encoded)
}

// errorBody is the payload of every failed API call.
type errorBody struct {
	Detail string `json:"detail"`
}

func writeError(ctx *fasthttp.RequestCtx, statusCode int, detail string) {
	writeJSON(ctx, statusCode, errorBody{Detail: detail})
}

// readJSON decodes the request body into `target`. Fields missing from the body keep their current value.
func readJSON(ctx *fasthttp.RequestCtx, target any) error {
	return sonic.Unmarshal(ctx.PostBody(), target)
}
