// seed creates the root administrator named by ROOT_ADMIN_EMAIL. Run after migrations.
// Idempotent: an existing account only has its administrator membership ensured.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	accountdomain "transitwatch/backend/internal/account/domain"
	accountrepo "transitwatch/backend/internal/account/repository"
	"transitwatch/backend/internal/config"
	"transitwatch/backend/internal/db"
	roledomain "transitwatch/backend/internal/role/domain"
	rolerepo "transitwatch/backend/internal/role/repository"
	roleservice "transitwatch/backend/internal/role/service"
	"transitwatch/backend/internal/security"
)

func main() {
	name := flag.String("name", "Root Administrator", "Display name of the root administrator")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	email := accountdomain.NormalizeEmail(cfg.RootAdminEmail)
	if email == "" {
		log.Fatal("ROOT_ADMIN_EMAIL is not set")
	}
	password := os.Getenv("SEED_ADMIN_PASSWORD")

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	accounts := accountrepo.NewPostgresRepository(conn)
	roles := roleservice.NewRoleService(rolerepo.NewPostgresStore(conn), nil, nil)

	acct, err := accounts.GetByEmail(ctx, email)
	if err != nil {
		log.Fatalf("seed: lookup %s: %v", email, err)
	}
	if acct == nil {
		if res := security.ValidateStrength(password); !res.Valid {
			log.Fatalf("seed: SEED_ADMIN_PASSWORD is too weak: %v", res.Violations)
		}
		hash, err := security.NewHasher(cfg.BcryptCost).Hash(password)
		if err != nil {
			log.Fatalf("seed: hash password: %v", err)
		}
		now := time.Now().UTC()
		acct = &accountdomain.Account{
			Email:          email,
			Name:           *name,
			PasswordHash:   hash,
			Role:           roledomain.RoleAdmin,
			Active:         true,
			RotationExempt: true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		id, err := accounts.Create(ctx, acct)
		if err != nil {
			log.Fatalf("seed: create %s: %v", email, err)
		}
		acct.ID = id
		log.Printf("seed: created root administrator %s (id %d)", email, id)
	}

	names, err := roles.Grant(ctx, acct.ID, acct.ID, roledomain.RoleByName(roledomain.RoleAdmin))
	if err != nil {
		log.Fatalf("seed: grant admin: %v", err)
	}
	log.Printf("seed: %s holds %v", email, names)
}
