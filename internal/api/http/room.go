package http

import (
	"fmt"

	"github.com/smba11/imposter-online/internal/state"

	"github.com/kataras/iris/v12"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// PeekRoom serves a read-only room summary for the join screen, so a client
// can validate a code before opening a websocket.
func PeekRoom(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		code := ctx.Params().Get("code")

		peek, err := appState.RoomSvc.Peek(code)
		if err != nil {
			ctx.StatusCode(iris.StatusNotFound)
			ctx.JSON(iris.Map{
				"error": err.Error(),
			})
			return
		}

		ctx.JSON(peek)
	}
}

// RoomQR renders a QR code for the room's join link, for sharing a lobby
// across the table.
func RoomQR(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		code := ctx.Params().Get("code")

		peek, err := appState.RoomSvc.Peek(code)
		if err != nil {
			ctx.StatusCode(iris.StatusNotFound)
			ctx.JSON(iris.Map{
				"error": err.Error(),
			})
			return
		}

		joinURL := fmt.Sprintf("%s/?room=%s", appState.Cfg.PublicURL, peek.RoomCode)

		png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
		if err != nil {
			zap.L().Error("failed to encode QR code", zap.Error(err))
			ctx.StatusCode(iris.StatusInternalServerError)
			return
		}

		ctx.ContentType("image/png")
		ctx.Write(png)
	}
}
