package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/i474232898/weather-forecaster/internal/forecast"
)

const heartbeatInterval = 15 * time.Second

// streamEvents serves training events as Server-Sent Events. The stream starts
// with the latest run status, if any, and ends when the client goes away or
// the service shuts down.
func streamEvents(c *fiber.Ctx, service *forecast.Service, log *zap.Logger) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	events, unsubscribe := service.Subscribe()
	initial, statusErr := service.Status()

	var initialRun *forecast.Run
	if statusErr == nil {
		initialRun = &initial
	} else if !errors.Is(statusErr, forecast.ErrNoRun) {
		log.Warn("training status unavailable", zap.Error(statusErr))
	}

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		pumpEvents(w, initialRun, events, ticker.C)
	}))
	return nil
}

// pumpEvents writes initial as a "status" event, then every event until the
// channel closes or a write fails. Each heartbeat tick writes a comment line.
func pumpEvents(w *bufio.Writer, initial *forecast.Run, events <-chan forecast.Event, heartbeat <-chan time.Time) {
	if initial != nil {
		if err := writeEvent(w, "status", initial); err != nil {
			return
		}
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, string(ev.Type), ev); err != nil {
				return
			}
		case <-heartbeat:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}

func writeEvent(w *bufio.Writer, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return w.Flush()
}
