package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/config"
	policysvc "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/services/policy"
	warningsvc "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/services/warnings"
	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/transport/http/handlers"
)

type Dependencies struct {
	PolicyService   *policysvc.Service
	WarningsService *warningsvc.Ledger
	Logger          *zap.Logger
	Config          config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	policyHandler := handlers.NewPolicyHandler(deps.PolicyService)
	warningsHandler := handlers.NewWarningsHandler(deps.WarningsService)

	r.Get("/healthz", handlers.Health)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(handlers.AdminAuth(deps.Config.Ops.AdminToken))

		v1.Route("/chats/{chatID}", func(chat chi.Router) {
			chat.Get("/policy", policyHandler.Get)
			chat.Put("/policy", policyHandler.Put)

			chat.Route("/users/{userID}", func(user chi.Router) {
				user.Get("/warnings", warningsHandler.Get)
				user.Post("/warnings/reset", warningsHandler.Reset)
			})
		})
	})
}
