// Package router wires every HTTP surface of the service: carrier webhooks,
// the staff-portal API, health, and metrics.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/donorlink/callops/internal/callsession"
	httpmiddleware "github.com/donorlink/callops/internal/http/middleware"
	"github.com/donorlink/callops/internal/inbound"
	"github.com/donorlink/callops/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	CallHandler     *callsession.Handler
	BridgeResponder *callsession.BridgeResponder
	Reconciler      *callsession.Reconciler
	InboundEngine   *inbound.Engine
	MenuNavigator   *inbound.Navigator

	// CarrierAuthToken enables webhook signature validation when set.
	CarrierAuthToken string
	// PortalJWTSecret protects the staff-portal API.
	PortalJWTSecret string

	MetricsHandler http.Handler
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Carrier webhooks. Every handler behind this group answers with
	// call-control markup, never a raw HTTP failure.
	r.Group(func(hooks chi.Router) {
		hooks.Use(httpmiddleware.CarrierSignature(cfg.CarrierAuthToken, cfg.Logger))

		if cfg.BridgeResponder != nil {
			hooks.Post(callsession.PathBridge, cfg.BridgeResponder.Handle)
		}
		if cfg.Reconciler != nil {
			hooks.Post(callsession.PathStatus, cfg.Reconciler.HandleStatus)
			hooks.Post(callsession.PathRecording, cfg.Reconciler.HandleRecording)
		}
		if cfg.InboundEngine != nil {
			hooks.Post(inbound.PathEntry, cfg.InboundEngine.HandleEntry)
		}
		if cfg.MenuNavigator != nil {
			hooks.Post(inbound.PathMenu, cfg.MenuNavigator.HandleMenu)
			hooks.Post(inbound.PathPaymentMethod, cfg.MenuNavigator.HandlePaymentMethod)
			hooks.Post(inbound.PathAmount, cfg.MenuNavigator.HandleAmount)
			hooks.Post(inbound.PathAmountConfirm, cfg.MenuNavigator.HandleAmountConfirm)
		}
	})

	// Staff-portal API.
	if cfg.CallHandler != nil {
		r.Route("/api", func(api chi.Router) {
			api.Use(httpmiddleware.PortalJWT(cfg.PortalJWTSecret))
			api.Post("/calls", cfg.CallHandler.InitiateCall)
			api.Get("/calls/{sessionID}", cfg.CallHandler.PollStatus)
		})
	}

	return r
}
