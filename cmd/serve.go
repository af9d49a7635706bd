package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/syndy/cardscan/internal/session"
	"github.com/syndy/cardscan/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for the scan workflow",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		snapshots, err := initStore(ctx)
		if err != nil {
			return err
		}
		if snapshots != nil {
			defer snapshots.Close()
		}

		client := initClient()
		registry := session.NewRegistry(func(id string, rec *session.Recorder) *session.Controller {
			notifier := session.MultiNotifier(session.LogNotifier{}, rec)
			opts := []session.ControllerOption{}
			if snapshots != nil {
				opts = append(opts, session.WithSnapshots(snapshots))
			}
			return session.NewController(id, client, notifier, sessionConfig(), opts...)
		})

		r := newRouter(registry, snapshots)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the API surface. Each endpoint maps 1:1 to a controller
// entry point; state-machine rejections surface as 409s.
func newRouter(registry *session.Registry, snapshots store.Store) http.Handler {
	r := chi.NewRouter()

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/sessions", func(w http.ResponseWriter, _ *http.Request) {
		id, e := registry.Create()
		writeJSON(w, http.StatusCreated, e.Controller.Snapshot())
		zap.L().Info("session created", zap.String("session", id))
	})

	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", withSession(registry, func(e *session.Entry, w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, e.Controller.Snapshot())
		}))

		r.Delete("/", func(w http.ResponseWriter, req *http.Request) {
			registry.Remove(chi.URLParam(req, "id"))
			w.WriteHeader(http.StatusNoContent)
		})

		r.Get("/notifications", withSession(registry, func(e *session.Entry, w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, e.Recorder.Notifications())
		}))

		r.Post("/start", sessionAction(registry, func(e *session.Entry, _ *http.Request) error {
			return e.Controller.StartScan()
		}))

		r.Post("/capture", sessionAction(registry, func(e *session.Entry, req *http.Request) error {
			image, err := readImage(req, "card")
			if err != nil {
				return err
			}
			return e.Controller.SubmitCapture(req.Context(), image)
		}))

		r.Post("/capture/cancel", sessionAction(registry, func(e *session.Entry, _ *http.Request) error {
			return e.Controller.CancelCapture()
		}))

		r.Post("/advance", sessionAction(registry, func(e *session.Entry, _ *http.Request) error {
			return e.Controller.Advance()
		}))

		r.Post("/selfie", sessionAction(registry, func(e *session.Entry, req *http.Request) error {
			image, err := readImage(req, "selfie")
			if err != nil {
				return err
			}
			return e.Controller.SubmitSelfie(req.Context(), image)
		}))

		r.Post("/selfie/skip", sessionAction(registry, func(e *session.Entry, _ *http.Request) error {
			return e.Controller.SkipSelfie()
		}))

		r.Post("/scheduler", sessionAction(registry, func(e *session.Entry, _ *http.Request) error {
			return e.Controller.OpenScheduler()
		}))

		r.Post("/meeting", sessionAction(registry, func(e *session.Entry, req *http.Request) error {
			return e.Controller.SubmitMeetingRequest(req.Context())
		}))

		r.Post("/reset", sessionAction(registry, func(e *session.Entry, _ *http.Request) error {
			e.Controller.Reset()
			return nil
		}))
	})

	if snapshots != nil {
		r.Get("/history", func(w http.ResponseWriter, req *http.Request) {
			sessions, err := snapshots.ListSessions(req.Context(), store.SessionFilter{Limit: 100})
			if err != nil {
				writeError(w, http.StatusInternalServerError, "list sessions failed")
				return
			}
			writeJSON(w, http.StatusOK, sessions)
		})
	}

	return r
}

type sessionHandler func(e *session.Entry, w http.ResponseWriter, req *http.Request)

func withSession(registry *session.Registry, h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		e, ok := registry.Get(chi.URLParam(req, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "unknown session")
			return
		}
		h(e, w, req)
	}
}

// sessionAction runs a controller entry point and replies with the updated
// snapshot, translating workflow rejections into HTTP statuses.
func sessionAction(registry *session.Registry, action func(e *session.Entry, req *http.Request) error) http.HandlerFunc {
	return withSession(registry, func(e *session.Entry, w http.ResponseWriter, req *http.Request) {
		if err := action(e, req); err != nil {
			switch {
			case errors.Is(err, session.ErrInvalidTransition),
				errors.Is(err, session.ErrNoTransaction):
				writeError(w, http.StatusConflict, err.Error())
			case errors.Is(err, session.ErrActionInFlight):
				writeError(w, http.StatusTooManyRequests, err.Error())
			case errors.Is(err, errBadImage):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				// Upstream failure already folded into the session state;
				// return the snapshot so the client sees the error field.
				writeJSON(w, http.StatusBadGateway, e.Controller.Snapshot())
			}
			return
		}
		writeJSON(w, http.StatusOK, e.Controller.Snapshot())
	})
}

var errBadImage = errors.New("missing or unreadable image")

// readImage extracts an uploaded image from a multipart form or a raw body.
func readImage(req *http.Request, field string) ([]byte, error) {
	const maxImage = 16 << 20

	if strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/form-data") {
		if err := req.ParseMultipartForm(maxImage); err != nil {
			return nil, eris.Wrap(errBadImage, "parse multipart form")
		}
		f, _, err := req.FormFile(field)
		if err != nil {
			return nil, eris.Wrapf(errBadImage, "form file %s", field)
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxImage))
		if err != nil || len(data) == 0 {
			return nil, eris.Wrap(errBadImage, "read form file")
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(req.Body, maxImage))
	if err != nil || len(data) == 0 {
		return nil, eris.Wrap(errBadImage, "read body")
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
