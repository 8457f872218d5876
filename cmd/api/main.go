package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"harmonia.org/internal/authn"
	"harmonia.org/internal/config"
	"harmonia.org/internal/httpapi"
	"harmonia.org/internal/obs"
	"harmonia.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "unknown"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := pg.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	signer, err := authn.NewSigner(
		cfg.Auth.PrivateKeyPEM, cfg.Auth.PublicKeyPEM, "harmonia",
		cfg.Auth.AccessTTL(), cfg.Auth.RefreshTTL(), cfg.Auth.HighWaterMark(),
		authn.WithCookieSecure(cfg.Auth.CookieSecure),
	)
	if err != nil {
		log.Fatalf("build token signer: %v", err)
	}
	otpKey, err := cfg.Auth.DecodedOTPKey()
	if err != nil {
		log.Fatalf("decode otp key: %v", err)
	}
	cipher, err := authn.NewOTPCipher(otpKey)
	if err != nil {
		log.Fatalf("build otp cipher: %v", err)
	}
	auth := authn.NewService(store, authn.NewComposer(store), signer, cipher)

	api, err := httpapi.New(cfg, store, store.SessionManager(), auth, version)
	if err != nil {
		log.Fatalf("build api: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting harmonia-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}
