package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"escrowdesk/account"
	"escrowdesk/adjudication"
	"escrowdesk/authz"
	"escrowdesk/db"
	"escrowdesk/dispute"
	"escrowdesk/httpapi"
	"escrowdesk/platform"
	"escrowdesk/proposal"
	"escrowdesk/sponsorship"
	"escrowdesk/trustline"
)

func main() {
	ctx := context.Background()

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	accounts := account.NewService(account.NewRepository(pool), jwtSecret)

	ledger := authz.NewRepository(pool)
	scopes := authz.NewService(ledger)

	proposalRepo := proposal.NewRepository(ledger)
	proposals := proposal.NewService(pool, proposalRepo)
	if raw := os.Getenv("PROPOSAL_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("parse PROPOSAL_TTL: %v", err)
		}
		proposals = proposals.WithTTL(ttl)
	}

	disputeRepo := dispute.NewRepository(pool)
	disputes := dispute.NewService(disputeRepo)

	adjudicator := adjudication.NewService(pool, proposalRepo, disputeRepo, adjudication.NewOutboxPayout())

	limiter, err := buildLimiter()
	if err != nil {
		log.Fatalf("bootstrap sponsorship limiter: %v", err)
	}
	sponsor := sponsorship.NewService(limiter, sponsorship.Config{
		MaxAmount:  envInt64("SPONSOR_MAX_AMOUNT", 0),
		DailyLimit: int(envInt64("SPONSOR_DAILY_LIMIT", 50)),
		FeeSource:  os.Getenv("SPONSOR_FEE_SOURCE"),
	})

	trustlines := trustline.NewService(pool, os.Getenv("USDC_ISSUER"))
	platformSvc := platform.NewService(pool)

	// Pending proposals with elapsed deadlines are swept periodically so
	// abandoned actions do not linger forever.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := proposals.ExpireStale(ctx); err != nil {
				log.Printf("expire stale proposals: %v", err)
			}
		}
	}()

	server := httpapi.NewServer(httpapi.Deps{
		Accounts:     accounts,
		Scopes:       scopes,
		Proposals:    proposals,
		Disputes:     disputes,
		Adjudication: adjudicator,
		Sponsorship:  sponsor,
		Trustlines:   trustlines,
		Platform:     platformSvc,
	})

	if err := server.Run(os.Getenv("LISTEN_ADDR")); err != nil {
		log.Fatalf("http server: %v", err)
	}
}

func buildLimiter() (sponsorship.Limiter, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		log.Print("REDIS_ADDR not set; sponsorship limits are process-local")
		return sponsorship.NewMemoryLimiter(), nil
	}
	return sponsorship.NewRedisLimiter(addr, os.Getenv("REDIS_PASSWORD"), 0)
}

func envInt64(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Fatalf("parse %s: %v", name, err)
	}
	return v
}
