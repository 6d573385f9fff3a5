package server

import (
	_ "embed"
	"io"
	"net/http"

	"github.com/scenewire/scenewire/pkg/ws"
)

// pageHTML is the status page served to plain HTTP requests hitting
// the scene port.
//
//go:embed page.html
var pageHTML []byte

// servePage answers a non-upgrade HTTP request on the scene listener.
// A browser GET gets the embedded page; anything else is told the
// endpoint speaks WebSocket.
func (s *Server) servePage(conn io.Writer, req *ws.Request) {
	if req.Method == http.MethodGet {
		_ = ws.WriteResponse(conn, http.StatusOK, "OK", "text/html; charset=utf-8", pageHTML)
		return
	}
	_ = ws.WriteResponse(conn, http.StatusUpgradeRequired, "Upgrade Required",
		"text/plain; charset=utf-8", []byte("this endpoint speaks WebSocket\n"))
}
