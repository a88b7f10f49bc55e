package stack

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"

	"golang.org/x/net/websocket"
)

// Open opens the byte stream to a co-processor:
//
//	tcp://host:port       plain TCP
//	ws://host:port/path   websocket, binary frames
//	serial:///dev/ttyX    serial device, /dev/ttyX alone works as well
func Open(stackURL string) (io.ReadWriteCloser, error) {
	if !strings.Contains(stackURL, "://") {
		return openDevice(stackURL)
	}
	u, err := url.Parse(stackURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "tcp":
		return net.Dial("tcp", u.Host)
	case "ws", "wss":
		origin := "http://" + u.Host
		if u.Scheme == "wss" {
			origin = "https://" + u.Host
		}
		conn, err := websocket.Dial(stackURL, "", origin)
		if err != nil {
			return nil, err
		}
		conn.PayloadType = websocket.BinaryFrame
		return conn, nil
	case "serial", "file":
		return openDevice(u.Path)
	}
	return nil, fmt.Errorf("unsupported stack URL scheme %q", u.Scheme)
}

func openDevice(path string) (io.ReadWriteCloser, error) {
	if path == "" {
		return nil, fmt.Errorf("empty device path")
	}
	return os.OpenFile(path, os.O_RDWR, 0)
}
