// Package server exposes the positioner over HTTP, so capture scripts on other machines can drive it.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calvinmclean/muff"
	"github.com/calvinmclean/muff/controller"
)

// Positioner is the host side of the positioner protocol
type Positioner interface {
	StartMotor(ctx context.Context, direction int, coarse bool) error
	Stop(ctx context.Context) error
	SetFrameStep(ctx context.Context, microns int32) error
	MoveFrame(ctx context.Context) error
	SwitchLED(ctx context.Context, index int, on bool) error
	SwitchAllLEDs(ctx context.Context, on bool) error
	SetMaxAcceleration(ctx context.Context, a uint32) error
	Status(ctx context.Context) (controller.Status, error)
}

var _ Positioner = &controller.Controller{}

var errBadRequest = errors.New("bad request")

// Server handles HTTP requests for a Positioner
type Server struct {
	positioner Positioner
	logger     *slog.Logger

	registry *prometheus.Registry
	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New creates a Server with its own metrics registry
func New(p Positioner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		positioner: p,
		logger:     logger,
		registry:   prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "muff_commands_total",
				Help: "Total number of commands sent to the positioner",
			},
			[]string{"command", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "muff_command_duration_seconds",
				Help:    "Time from sending a command to its ack",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"command"},
		),
	}
	s.registry.MustRegister(s.commands, s.duration)

	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/move/{mode}/{direction}", s.move)
	r.Post("/stop", s.stop)
	r.Put("/frame-offset/{microns}", s.setFrameOffset)
	r.Post("/frame", s.moveFrame)
	r.Put("/leds/{led}/{state}", s.switchLED)
	r.Put("/acceleration/{value}", s.setAcceleration)
	r.Get("/status", s.status)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return r
}

// Registry returns the registry holding the command metrics
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Server) move(w http.ResponseWriter, r *http.Request) {
	var coarse bool
	switch chi.URLParam(r, "mode") {
	case "fine":
	case "coarse":
		coarse = true
	default:
		s.writeError(w, fmt.Errorf("%w: mode must be fine or coarse", errBadRequest))
		return
	}

	var direction int
	switch chi.URLParam(r, "direction") {
	case "up":
		direction = +1
	case "down":
		direction = -1
	default:
		s.writeError(w, fmt.Errorf("%w: direction must be up or down", errBadRequest))
		return
	}

	command := muff.OpcodeFineForward
	switch {
	case direction > 0 && coarse:
		command = muff.OpcodeCoarseForward
	case direction < 0 && coarse:
		command = muff.OpcodeCoarseBackward
	case direction < 0:
		command = muff.OpcodeFineBackward
	}

	s.run(w, r, command, func(ctx context.Context) error {
		return s.positioner.StartMotor(ctx, direction, coarse)
	})
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, muff.OpcodeStop, s.positioner.Stop)
}

func (s *Server) setFrameOffset(w http.ResponseWriter, r *http.Request) {
	microns, err := strconv.ParseInt(chi.URLParam(r, "microns"), 10, 32)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid microns: %w", errBadRequest, err))
		return
	}

	s.run(w, r, muff.OpcodeSetFrameOffset, func(ctx context.Context) error {
		return s.positioner.SetFrameStep(ctx, int32(microns))
	})
}

func (s *Server) moveFrame(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, muff.OpcodeMoveFrameOffset, s.positioner.MoveFrame)
}

func (s *Server) switchLED(w http.ResponseWriter, r *http.Request) {
	var on bool
	switch chi.URLParam(r, "state") {
	case "on":
		on = true
	case "off":
	default:
		s.writeError(w, fmt.Errorf("%w: state must be on or off", errBadRequest))
		return
	}

	command := muff.OpcodeLEDOff
	if on {
		command = muff.OpcodeLEDOn
	}

	led := chi.URLParam(r, "led")
	if led == "all" {
		s.run(w, r, command, func(ctx context.Context) error {
			return s.positioner.SwitchAllLEDs(ctx, on)
		})
		return
	}

	index, err := ParseLED(led)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	s.run(w, r, command, func(ctx context.Context) error {
		return s.positioner.SwitchLED(ctx, index, on)
	})
}

func (s *Server) setAcceleration(w http.ResponseWriter, r *http.Request) {
	value, err := strconv.ParseUint(chi.URLParam(r, "value"), 10, 32)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid acceleration: %w", errBadRequest, err))
		return
	}

	s.run(w, r, muff.OpcodeSetMaxAcceleration, func(ctx context.Context) error {
		return s.positioner.SetMaxAcceleration(ctx, uint32(value))
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	var status controller.Status
	ok := s.observe(w, r, muff.OpcodeStatus, func(ctx context.Context) error {
		var err error
		status, err = s.positioner.Status(ctx)
		return err
	})
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("error encoding status", "error", err)
	}
}

// run calls f and responds with no content if it succeeds
func (s *Server) run(w http.ResponseWriter, r *http.Request, command muff.Opcode, f func(context.Context) error) {
	if s.observe(w, r, command, f) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// observe calls f, records the metrics and writes the error response if it fails
func (s *Server) observe(w http.ResponseWriter, r *http.Request, command muff.Opcode, f func(context.Context) error) bool {
	start := time.Now()
	err := f(r.Context())
	s.duration.WithLabelValues(command.String()).Observe(time.Since(start).Seconds())

	result := "ok"
	if err != nil {
		result = "error"
	}
	s.commands.WithLabelValues(command.String(), result).Inc()

	if err != nil {
		s.writeError(w, err)
		return false
	}
	return true
}

type errorResponse struct {
	Error    string   `json:"error"`
	Messages []string `json:"messages,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	resp := errorResponse{Error: err.Error()}

	var fwErr *controller.FirmwareError
	switch {
	case errors.As(err, &fwErr):
		status = http.StatusUnprocessableEntity
		resp.Messages = fwErr.Messages
	case errors.Is(err, errBadRequest),
		errors.Is(err, muff.ErrInvalidArgument),
		errors.Is(err, muff.ErrInvalidLEDIndex),
		errors.Is(err, muff.ErrZeroAcceleration):
		status = http.StatusBadRequest
	}

	if status == http.StatusBadGateway {
		s.logger.Error("positioner error", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("error encoding response", "error", err)
	}
}

// ParseLED accepts an LED letter A-X, in either case, or an index 0-23
func ParseLED(s string) (int, error) {
	if index, err := strconv.Atoi(s); err == nil {
		if _, err := muff.LEDCode(index); err != nil {
			return 0, err
		}
		return index, nil
	}

	if len(s) != 1 {
		return 0, muff.ErrInvalidLEDIndex
	}
	index, all, err := muff.LEDIndex(strings.ToUpper(s)[0])
	if err != nil {
		return 0, err
	}
	if all {
		return 0, muff.ErrInvalidLEDIndex
	}
	return index, nil
}
