package main

import (
	"context"
	"fmt"
	"log"

	"github.com/ebonics/ebonics-core/internal/config"
	"github.com/ebonics/ebonics-core/internal/database"
	"github.com/ebonics/ebonics-core/internal/identitystub"
	authmw "github.com/ebonics/ebonics-core/internal/middleware"
	"github.com/ebonics/ebonics-core/internal/services"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/m1z23r/drift/pkg/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)

	// With a database configured, verified signups get a profile row; without
	// one the stub serves identity only.
	var profiles identitystub.ProfileWriter
	if cfg.DatabaseURL != "" {
		ctx := context.Background()
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		profiles = services.NewProfileService(db)
	}

	handler := identitystub.NewHandler(jwtService, profiles)

	app := drift.New()

	if cfg.IsProduction() {
		app.SetMode(drift.ReleaseMode)
	} else {
		app.SetMode(drift.DebugMode)
	}

	app.Use(middleware.Recovery())
	app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "apikey"},
		MaxAge:       86400,
	}))
	app.Use(middleware.BodyParser())

	api := app.Group("/auth/v1")
	if cfg.IdentityAnonKey != "" {
		api.Use(authmw.APIKey(cfg.IdentityAnonKey))
	}

	api.Post("/token", handler.Token)
	api.Post("/signup", handler.Signup)
	api.Post("/verify", handler.Verify)
	api.Post("/otp", handler.OTP)

	protected := api.Group("")
	protected.Use(authmw.Auth(jwtService))
	protected.Post("/logout", handler.Logout)
	protected.Get("/user", handler.GetUser)
	protected.Put("/user", handler.UpdateUser)

	app.Get("/health", func(c *drift.Context) {
		_ = c.JSON(200, map[string]string{"status": "ok"})
	})

	addr := fmt.Sprintf(":%s", cfg.StubPort)
	log.Printf("Identity stub listening on %s", addr)
	if err := app.Run(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
