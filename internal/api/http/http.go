package http

import (
	"fmt"

	"github.com/smba11/imposter-online/internal/api/http/websocket"
	"github.com/smba11/imposter-online/internal/state"

	"github.com/kataras/iris/v12"
)

func RunServer(appState *state.AppState) {
	app := iris.Default()

	app.HandleDir(
		"/",
		iris.Dir(appState.Cfg.StaticDir),
		iris.DirOptions{
			IndexName: "index.html",
			SPA:       true,
			Compress:  true,
		},
	)

	api := app.Party("/api/v1")

	api.Get("/rooms/{code}", PeekRoom(appState))
	api.Get("/rooms/{code}/qr", RoomQR(appState))

	api.Get("/ws", websocket.JoinGame(appState))

	addr := fmt.Sprintf(
		"%s:%d",
		appState.Cfg.Host,
		appState.Cfg.Port,
	)

	app.Listen(addr)
}
