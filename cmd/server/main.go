package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"floorpos/backend/internal/cache"
	"floorpos/backend/internal/config"
	"floorpos/backend/internal/domain"
	"floorpos/backend/internal/events"
	"floorpos/backend/internal/httpapi"
	"floorpos/backend/internal/locktable"
	"floorpos/backend/internal/payment"
	"floorpos/backend/internal/remote"
	"floorpos/backend/internal/service"
	"floorpos/backend/internal/store"
	"floorpos/backend/internal/store/memory"
	pgstore "floorpos/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	var channel events.Channel = events.NewLoopback()
	if cfg.AMQPURL != "" {
		amqpChannel, err := events.DialAMQP(cfg.AMQPURL)
		if err != nil {
			log.Fatalf("amqp unavailable (%v) and AMQP_URL is set; refusing to start without the station channel", err)
		}
		channel = amqpChannel
		log.Println("events: amqp")
	} else {
		log.Println("events: loopback")
	}
	closers = append(closers, channel.Close)

	snapshots := cache.SnapshotCache(cache.NoopSnapshotCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSnapshotCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop snapshot cache", err)
		} else {
			snapshots = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	devices := payment.NewRegistry(repo)
	registerTerminals(ctx, repo, devices)

	var locks locktable.Service
	if cfg.IsSubStation() {
		if cfg.MainBaseURL == "" {
			log.Fatalf("STATION_ROLE=sub requires MAIN_BASE_URL")
		}
		mirror := locktable.NewMirror()
		if snapshot, hit, err := snapshots.GetLockedOrders(ctx, cfg.StoreID); err != nil {
			log.Printf("cached lock snapshot unavailable: %v", err)
		} else if hit {
			mirror.Seed(snapshot)
			log.Printf("locks: mirror seeded with %d cached entries", len(snapshot))
		}
		unsubscribe := channel.Subscribe(mirror.Apply)
		defer unsubscribe()
		locks = remote.NewStationLocks(remote.NewLockClient(cfg.MainBaseURL, cfg.StationToken), mirror)
		log.Printf("locks: writes via %s, reads from mirror", cfg.MainBaseURL)
	} else {
		locks = locktable.New(cfg.StoreID, repo, channel)
		log.Println("locks: local table")
	}

	unsubscribe := channel.Subscribe(snapshotUpdater(repo, snapshots, cfg.StoreID))
	defer unsubscribe()

	svc := service.New(repo, locks, devices, channel, cfg.StoreID, cfg.StationID)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.ManagerPIN, repo)
	api := httpapi.New(svc, locks, auth, cfg.AllowedOrigin)
	api.UseSnapshotCache(snapshots, cfg.StoreID)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("station %s (%s) listening on %s", cfg.StationID, cfg.StationRole, cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// registerTerminals wires a simulated terminal client for every configured
// payment device. Standalone devices get one too; the settlement flow skips
// them but tip adjustment and void still reach the terminal.
func registerTerminals(ctx context.Context, repo store.Repository, devices *payment.Registry) {
	configured, err := repo.ListPaymentDevices(ctx)
	if err != nil {
		log.Printf("payment devices unavailable: %v", err)
		return
	}
	for _, device := range configured {
		if device.Disabled {
			continue
		}
		devices.Register(device.ID, payment.NewFakeClient())
		log.Printf("payment device registered: %s (%s)", device.ID, device.Name)
	}
}

// snapshotUpdater keeps the shared snapshot cache current so stations joining
// late converge without polling the main station.
func snapshotUpdater(repo store.Repository, snapshots cache.SnapshotCache, storeID string) events.Handler {
	return func(event domain.Event) {
		if event.StoreID != storeID {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		switch event.Type {
		case domain.EventLockedOrdersChanged:
			if err := snapshots.SetLockedOrders(ctx, storeID, event.LockedOrders); err != nil {
				log.Printf("snapshot cache update failed: %v", err)
			}
		case domain.EventActiveShiftChanged:
			shift, err := repo.GetActiveShift(ctx, storeID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				log.Printf("active shift lookup failed: %v", err)
				return
			}
			if err := snapshots.SetActiveShift(ctx, storeID, shift); err != nil {
				log.Printf("snapshot cache update failed: %v", err)
			}
		}
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"222222": true, "333333": true, "444444": true, "555555": true,
		"666666": true, "777777": true, "888888": true, "999999": true,
		"121212": true, "112233": true, "123123": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
