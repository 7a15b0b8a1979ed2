package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"tapkind/internal/service"
)

type API struct {
	Service *service.Service
	Log     *zap.Logger
	Origins []string
}

func New(svc *service.Service, origins []string) *API {
	return &API{Service: svc, Log: svc.Log.Named("http"), Origins: origins}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(a.loggingMiddleware)
	r.Use(a.corsMiddleware)

	r.Get("/health", a.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", a.handleSignUp)
		r.Post("/signin", a.handleSignIn)
		r.Post("/refresh", a.handleRefresh)
		r.Get("/confirm", a.handleConfirmEmail)
		r.Post("/confirm", a.handleConfirmEmail)
		r.Post("/resend-confirmation", a.handleResendConfirmation)
		r.With(a.authMiddleware).Post("/signout", a.handleSignOut)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.authMiddleware)
		r.Get("/me", a.handleMe)
		r.Get("/me/profile", a.handleGetProfile)
		r.Put("/me/profile", a.handleUpdateProfile)
		r.Get("/me/tipid", a.handleGetTipID)
		r.Post("/me/tipid", a.handleEnsureTipID)
		r.Put("/me/tipid", a.handleSetTipIDActive)
		r.Get("/me/tipid/qr.png", a.handleTipIDQR)
		r.Get("/me/tips", a.handleTipsGiven)
		r.Get("/me/checkins", a.handleCheckins)
		r.Get("/profiles/{id}", a.handlePublicProfile)

		r.Post("/scan/resolve", a.handleResolve)
		r.Post("/scan/image", a.handleScanImage)
		r.Post("/tips", a.handleSubmitTip)

		r.Get("/dashboard", a.handleDashboard)
		r.Get("/leaderboard", a.handleLeaderboard)
		r.Get("/leaderboard/export.xlsx", a.handleExportLeaderboard)
		r.Get("/impact", a.handleImpact)

		r.Route("/volunteer", func(r chi.Router) {
			r.Get("/events", a.handleListEvents)
			r.Get("/events.ics", a.handleEventsCalendar)
			r.Post("/checkins", a.handleCheckIn)
		})
	})

	return r
}
