package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ebonics/ebonics-core/internal/auth"
	"github.com/ebonics/ebonics-core/internal/config"
	"github.com/ebonics/ebonics-core/internal/database"
	"github.com/ebonics/ebonics-core/internal/identity"
	"github.com/ebonics/ebonics-core/internal/navigation"
	"github.com/ebonics/ebonics-core/internal/netprobe"
	"github.com/ebonics/ebonics-core/internal/notice"
	"github.com/ebonics/ebonics-core/internal/oauth"
	"github.com/ebonics/ebonics-core/internal/prefs"
	"github.com/ebonics/ebonics-core/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	prefStore, err := prefs.Open(cfg.PrefsPath)
	if err != nil {
		log.Fatalf("Failed to open prefs store: %v", err)
	}
	defer func() { _ = prefStore.Close() }()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	profileService := services.NewProfileService(db)

	var google *oauth.GoogleProvider
	if cfg.Google.ClientID != "" {
		google = oauth.NewGoogleProvider(cfg.Google)
	}

	gateway := identity.NewClient(cfg.IdentityURL, cfg.IdentityAnonKey, prefStore, google)
	defer gateway.Close()

	notices := notice.NewCenter(
		notice.WithTTL(cfg.NoticeTTL),
		notice.WithOnChange(func(n *notice.Notice) {
			if n != nil {
				log.Printf("notice [%s]: %s", n.Kind, n.Message)
			}
		}),
	)

	nav := navigation.NavigatorFunc(func(dest navigation.Destination) {
		log.Printf("navigate: %s", dest)
	})

	store := auth.NewStore(gateway, profileService)
	resolver := auth.NewResolver(store, profileService, prefStore, nav)

	dispose, err := store.InitializeAuth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize auth: %v", err)
	}
	defer dispose()

	// Every session change re-runs the routing decision.
	unsubscribe := gateway.OnSessionChange(func(kind identity.EventKind, session *identity.Session) {
		resolver.Resolve(context.Background(), session)
	})
	defer unsubscribe()

	// Subscribers are in place; release the initial_session event.
	gateway.Start()

	probe := netprobe.New(
		netprobe.DialSampler(""),
		netprobe.WithInterval(cfg.ProbeInterval),
		netprobe.WithOnOffline(func() {
			notices.Error("No internet connection. Please check your network settings.")
		}),
	)
	stopProbe := probe.Start(ctx)
	defer stopProbe()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
}
