package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"stickerserver/internal/events"
)

// events-client follows a server's mirror update stream and prints each event.
func main() {
	server := flag.String("server", "http://localhost:8080", "sticker server base URL")
	pretty := flag.Bool("pretty", true, "pretty print JSON events")
	flag.Parse()

	u, err := eventsURL(*server)
	if err != nil {
		log.Fatal(err)
	}

	for {
		if err := run(u, *pretty); err != nil {
			log.WithError(err).Warn("disconnected")
		}
		time.Sleep(time.Second) // reconnect
	}
}

func eventsURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/__events"
	return u.String(), nil
}

func run(u string, pretty bool) error {
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u, err)
	}
	defer ws.Close()
	log.WithField("url", u).Info("connected")

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if !pretty {
			fmt.Fprintln(os.Stdout, string(msg))
			continue
		}

		var ev events.MirrorEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			fmt.Fprintln(os.Stdout, string(msg))
			continue
		}
		b, _ := json.MarshalIndent(ev, "", "  ")
		fmt.Fprintln(os.Stdout, string(b))
	}
}
