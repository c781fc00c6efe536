package binutil

import (
	"fmt"
	"net/http"

	"golang.org/x/net/websocket"

	"github.com/holoverse/holoworld/engine/hwlog"
)

// SetupHTTPServer starts the HTTP server for go tool pprof and websockets
func SetupHTTPServer(ip string, port int, wsHandler func(ws *websocket.Conn)) {
	if port == 0 {
		// pprof not enabled
		hwlog.Infof("pprof server not enabled")
		return
	}

	httpHost := fmt.Sprintf("%s:%d", ip, port)
	hwlog.Infof("http server listening on %s", httpHost)
	hwlog.Infof("pprof http://%s/debug/pprof/ ... available commands: ", httpHost)
	hwlog.Infof("    go tool pprof http://%s/debug/pprof/heap", httpHost)
	hwlog.Infof("    go tool pprof http://%s/debug/pprof/profile", httpHost)

	if wsHandler != nil {
		http.Handle("/ws", websocket.Handler(wsHandler))
	}

	go func() {
		http.ListenAndServe(httpHost, nil)
	}()
}

// SetupHWLog configures the log system for the component
func SetupHWLog(component string, logLevel string, logFile string, logStderr bool) {
	hwlog.SetSource(component)
	hwlog.Infof("Set log level to %s", logLevel)
	hwlog.SetLevel(hwlog.ParseLevel(logLevel))

	outputs := make([]string, 0, 2)
	if logFile != "" {
		outputs = append(outputs, logFile)
	}
	if logStderr {
		outputs = append(outputs, "stderr")
	}
	if len(outputs) > 0 {
		hwlog.SetOutput(outputs)
	}
}
