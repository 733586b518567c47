package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/liorefaelbe/BePay-BankApp/internal/security"
	"github.com/liorefaelbe/BePay-BankApp/internal/storage"
)

type demoAccount struct {
	email    string
	phone    string
	password string
	balance  decimal.Decimal
}

var demoAccounts = []demoAccount{
	{"alice@example.com", "+972521000001", "alicepass123", decimal.NewFromInt(5000)},
	{"bob@example.com", "+972521000002", "bobpass12345", decimal.NewFromInt(3000)},
	{"carol@example.com", "", "carolpass123", decimal.NewFromInt(1500)},
}

func main() {
	env := getEnv("BEPAY_ENV", "dev")
	if env != "dev" && env != "test" {
		log.Fatalf("refusing to seed: BEPAY_ENV must be 'dev' or 'test' (got '%s')", env)
	}

	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	db := getEnv("POSTGRES_DB", "bepay")
	user := getEnv("POSTGRES_USER", "bepay")
	password := getEnv("POSTGRES_PASSWORD", "bepay")
	sslmode := getEnv("POSTGRES_SSLMODE", "disable")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, db, sslmode)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := storage.RunMigrations(ctx, connStr); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	fmt.Println("Seeding database...")

	params := security.Argon2Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}

	for _, account := range demoAccounts {
		hash, err := security.HashPassword(account.password, params)
		if err != nil {
			log.Fatalf("hash password for %s: %v", account.email, err)
		}

		_, err = pool.Exec(ctx, `
			INSERT INTO accounts (id, email, phone, password_hash, balance, verified, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, true, now(), now())
			ON CONFLICT (email) DO UPDATE
			SET password_hash = EXCLUDED.password_hash, balance = EXCLUDED.balance, verified = true, updated_at = now()
		`, uuid.New(), account.email, account.phone, hash, account.balance.String())
		if err != nil {
			log.Fatalf("seed account %s: %v", account.email, err)
		}
	}

	fmt.Println("✓ Accounts seeded")
	fmt.Println("\n=== Seed Complete ===")
	fmt.Println("\nDemo Credentials:")
	for _, account := range demoAccounts {
		fmt.Printf("  %s / %s (balance %s)\n", account.email, account.password, account.balance)
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
