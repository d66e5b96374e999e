package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/viego-wallet/viego-backend/internal/handlers"
	"github.com/viego-wallet/viego-backend/internal/middleware"
)

// SetupRoutes mounts the API on r. Routes that reach the transaction
// controls API share the vendor limiter; signup and signin share the auth
// limiter.
func SetupRoutes(r chi.Router, h *handlers.Handlers, limits middleware.Limiters) {
	vendor := limits.Vendor.Limit("Too many card requests. Please slow down.", nil)
	auth := limits.Auth.Limit("Too many sign-in attempts. Please try again later.", nil)

	r.Get("/health", h.Health)
	r.Get("/ws/notifications", h.Notifications)

	r.Route("/api", func(r chi.Router) {
		r.With(auth).Post("/auth/signup", h.Signup)
		r.With(auth).Post("/auth/signin", h.Signin)

		r.Post("/reminders/dispatch", h.DispatchReminders)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/", h.GetUser)
			r.Put("/settings", h.UpdateSettings)
			r.Put("/status", h.SetStatus)
			r.With(vendor).Post("/vendor-profile", h.LinkVendorProfile)

			r.Post("/alert-preferences", h.AddAlertPreferences)
			r.Put("/alert-preferences", h.ReplaceAlertPreferences)
			r.Post("/alert-preferences/remove", h.RemoveAlertPreferences)

			r.Get("/spending", h.SpendingStatus)

			r.Route("/cards", func(r chi.Router) {
				r.Get("/", h.ListCards)
				r.With(vendor).Post("/", h.EnrollCard)
				r.Route("/{cardID}", func(r chi.Router) {
					r.Get("/", h.GetCard)
					r.Group(func(r chi.Router) {
						r.Use(vendor)
						r.Get("/controls", h.AvailableControls)
						r.Post("/rules", h.AddRules)
						r.Put("/rules", h.ReplaceRules)
						r.Get("/document", h.GetDocument)
						r.Delete("/document", h.DeleteDocument)
						r.Post("/decisions", h.SimulateDecision)
						r.Get("/alerts", h.AlertHistory)
					})
				})
			})

			r.Route("/payments", func(r chi.Router) {
				r.Get("/", h.ListPayments)
				r.With(vendor).Post("/", h.CreatePayment)
				r.Route("/{paymentID}", func(r chi.Router) {
					r.Get("/", h.GetPayment)
					r.With(vendor).Delete("/", h.DeletePayment)
					r.Post("/paid", h.MarkPaid)
					r.Get("/reminders", h.PaymentReminders)
				})
			})
		})
	})
}
