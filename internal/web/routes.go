package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/attendance-kiosk/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	svc := s.services

	// Create handlers
	feedHandler := handlers.NewFeedHandler(svc.Dashboard, svc.Registration)
	cameraHandler := handlers.NewCameraHandler(svc.Camera)
	attendanceHandler := handlers.NewAttendanceHandler(svc.Store, svc.Tracker)
	registerHandler := handlers.NewRegisterHandler(svc.Enroller)
	smtpHandler := handlers.NewSMTPHandler(s.config.SMTP, svc.Dispatcher, svc.Reports)

	// MJPEG feeds run until the viewer leaves; no request timeout.
	s.router.Get("/video_feed", feedHandler.Dashboard)
	s.router.Get("/video_feed_reg", feedHandler.Registration)

	s.router.Route("/api", func(r chi.Router) {
		// Enrollment and SMTP calls wait on the embedding server and mail relay.
		r.Use(chiMiddleware.Timeout(time.Minute))

		// Health check
		r.Get("/v1/health", handlers.HealthCheck)

		// Camera
		r.Post("/toggle_camera", cameraHandler.Toggle)
		r.Get("/camera", cameraHandler.Status)

		// Attendance
		r.Get("/stats", attendanceHandler.Stats)
		r.Get("/records", attendanceHandler.Records)
		r.Post("/attendance/{id}/checkout", attendanceHandler.CheckOut)

		// Enrollment
		r.Post("/register", registerHandler.Register)

		// SMTP
		r.Route("/smtp", func(r chi.Router) {
			r.Post("/test", smtpHandler.Test)
			r.Post("/send_notification", smtpHandler.SendNotification)
			r.Post("/send_summary", smtpHandler.SendSummary)
			r.Post("/send_late_alert", smtpHandler.SendLateAlert)
			r.Post("/send_absence_alert", smtpHandler.SendAbsenceAlert)
			r.Get("/config", smtpHandler.Config)
		})
	})
}
