// smoke-auth runs the full identity flow against real Postgres and Redis:
// create accounts, login, authorize, grant, revoke, disable. It exits
// non-zero on the first property violation and is intended for staging
// environments, not production.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"sunnahaudio.org/internal/audit"
	"sunnahaudio.org/internal/auth"
	"sunnahaudio.org/internal/cache"
	"sunnahaudio.org/internal/config"
	"sunnahaudio.org/internal/ids"
	"sunnahaudio.org/internal/migrate"
	"sunnahaudio.org/internal/obs"
	"sunnahaudio.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, "smoke")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Postgres.DSN == "" {
		log.Fatal("SUNNAH_POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ctx = audit.WithRequestID(ctx, fmt.Sprintf("smoke-%d", rand.Int()))

	store, err := pg.Open(cfg.Postgres.DSN, pg.WithRegrantAuditOverwrite(cfg.Grants.RegrantUpdatesAudit))
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		log.Fatalf("ping postgres: %v", err)
	}
	if err := migrate.NewManager(store.DB()).Up(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer redisClient.Close()
	permCache := cache.New(redisClient)

	tokens, err := auth.NewTokenService(
		[]byte(cfg.Auth.SigningSecret),
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithLeeway(cfg.Auth.Leeway),
		auth.WithPreviousSecret([]byte(cfg.Auth.PreviousSigningSecret)),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}
	authenticator, err := auth.NewAuthenticator(store, tokens,
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
		auth.WithLoginRateLimit(cfg.Login.RatePerMinute, cfg.Login.Burst),
	)
	if err != nil {
		log.Fatalf("authenticator: %v", err)
	}
	authorizer, err := auth.NewAuthorizer(tokens, store, store,
		auth.WithPermissionCache(permCache, cfg.Authz.CacheTTL),
		auth.WithCheckTimeout(cfg.Authz.CheckTimeout),
	)
	if err != nil {
		log.Fatalf("authorizer: %v", err)
	}
	directory, err := auth.NewDirectory(store, auth.WithDirectoryCache(permCache))
	if err != nil {
		log.Fatalf("directory: %v", err)
	}

	suffix := ids.New()
	ownerSecret := "smoke-owner-" + suffix
	viewerSecret := "smoke-viewer-" + suffix

	owner, err := directory.CreateAccount(ctx, "smoke-owner-"+suffix, ownerSecret, auth.RoleOwner)
	if err != nil {
		log.Fatalf("create owner: %v", err)
	}
	viewer, err := directory.CreateAccount(ctx, "smoke-viewer-"+suffix, viewerSecret, auth.RoleViewer)
	if err != nil {
		log.Fatalf("create viewer: %v", err)
	}
	scholarID := "smoke-scholar-" + suffix

	ownerPair, err := authenticator.Login(ctx, owner.LoginName, ownerSecret)
	if err != nil {
		log.Fatalf("owner login: %v", err)
	}
	viewerPair, err := authenticator.Login(ctx, viewer.LoginName, viewerSecret)
	if err != nil {
		log.Fatalf("viewer login: %v", err)
	}

	// Owner short-circuits grants; viewer has no grant yet.
	if d := authorizer.Authorize(ctx, ownerPair.AccessToken, scholarID, auth.CapDelete); !d.Allowed {
		log.Fatalf("owner denied: %+v", d)
	}
	if d := authorizer.Authorize(ctx, viewerPair.AccessToken, scholarID, auth.CapRead); d.Allowed {
		log.Fatalf("viewer allowed without grant: %+v", d)
	}

	// Grant is visible immediately, not after the cache TTL.
	if err := authorizer.Grant(ctx, ownerPair.AccessToken, viewer.ID, scholarID); err != nil {
		log.Fatalf("grant: %v", err)
	}
	if d := authorizer.Authorize(ctx, viewerPair.AccessToken, scholarID, auth.CapRead); !d.Allowed {
		log.Fatalf("viewer denied after grant: %+v", d)
	}
	// Viewer ceiling excludes writes even with a grant row.
	if d := authorizer.Authorize(ctx, viewerPair.AccessToken, scholarID, auth.CapWrite); d.Allowed {
		log.Fatalf("viewer write allowed past ceiling: %+v", d)
	}

	perms, err := authorizer.Permissions(ctx, viewerPair.AccessToken)
	if err != nil {
		log.Fatalf("permissions: %v", err)
	}
	if len(perms.Scholars) != 1 || perms.Scholars[0].ScholarID != scholarID {
		log.Fatalf("unexpected permissions view: %+v", perms)
	}

	// Revoke is visible immediately as well.
	if err := authorizer.Revoke(ctx, ownerPair.AccessToken, viewer.ID, scholarID); err != nil {
		log.Fatalf("revoke: %v", err)
	}
	if d := authorizer.Authorize(ctx, viewerPair.AccessToken, scholarID, auth.CapRead); d.Allowed {
		log.Fatalf("viewer allowed after revoke: %+v", d)
	}

	// Disable kills a valid token and its cached decisions at once.
	if err := authorizer.Grant(ctx, ownerPair.AccessToken, viewer.ID, scholarID); err != nil {
		log.Fatalf("re-grant: %v", err)
	}
	if d := authorizer.Authorize(ctx, viewerPair.AccessToken, scholarID, auth.CapRead); !d.Allowed {
		log.Fatalf("viewer denied after re-grant: %+v", d)
	}
	if err := directory.SetStatus(ctx, viewer.ID, auth.StatusDisabled); err != nil {
		log.Fatalf("disable viewer: %v", err)
	}
	if d := authorizer.Authorize(ctx, viewerPair.AccessToken, scholarID, auth.CapRead); d.Allowed || d.Reason != auth.ReasonAccountDisabled {
		log.Fatalf("disabled viewer not rejected: %+v", d)
	}
	if _, err := authenticator.Login(ctx, viewer.LoginName, viewerSecret); err == nil {
		log.Fatalf("disabled viewer logged in")
	}
	if _, err := authenticator.Refresh(ctx, viewerPair.RefreshToken); err == nil {
		log.Fatalf("disabled viewer refreshed a token")
	}

	ctx = auth.ContextWithPrincipal(ctx, auth.Principal{AccountID: owner.ID, Role: auth.RoleOwner})
	if err := audit.LogEvent(ctx, "smoke.completed", map[string]any{
		"owner_id":   owner.ID,
		"viewer_id":  viewer.ID,
		"scholar_id": scholarID,
	}); err != nil {
		log.Fatalf("audit event: %v", err)
	}

	fmt.Printf("✅ auth smoke test passed: owner=%s viewer=%s scholar=%s\n", owner.ID, viewer.ID, scholarID)
}
