package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/colcon/colcon-site/internal/registration"
)

// Demo accounts for local development. Passwords are stored as given.
var demoUsers = []struct {
	email    string
	password string
	verified bool
}{
	{email: "admin@colcon.local", password: "colcon-admin", verified: true},
	{email: "speaker@colcon.local", password: "speaker1", verified: true},
	{email: "guest@colcon.local", password: "guest01"},
}

func main() {
	path := getenv("STORE_PATH", "data_profile/users.json")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := registration.NewFileStore(registration.StoreOptions{Path: path})
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	service := registration.NewService(store, registration.ServiceConfig{})

	fmt.Println("→ Seeding demo users...")
	for _, u := range demoUsers {
		res, err := service.Register(ctx, registration.RegisterRequest{Email: u.email, Password: u.password})
		if errors.Is(err, registration.ErrConflict) {
			fmt.Printf("  skip %s (exists)\n", u.email)
			continue
		}
		if err != nil {
			log.Fatalf("seed %s: %v", u.email, err)
		}
		if u.verified {
			if err := service.VerifyEmail(ctx, registration.VerifyRequest{UserID: res.UserID, Token: "seed"}); err != nil {
				log.Fatalf("verify %s: %v", u.email, err)
			}
		}
		fmt.Printf("  added %s (%s)\n", u.email, res.UserID)
	}

	if n, _ := strconv.Atoi(os.Getenv("SEED_EXTRA_USERS")); n > 0 {
		fmt.Printf("→ Seeding %d load-test users...\n", n)
		for i := range n {
			email := fmt.Sprintf("load%04d@colcon.local", i)
			if _, err := service.Register(ctx, registration.RegisterRequest{Email: email, Password: "loadtest"}); err != nil && !errors.Is(err, registration.ErrConflict) {
				log.Fatalf("seed %s: %v", email, err)
			}
		}
	}

	doc, err := service.ListAll(ctx)
	if err != nil {
		log.Fatalf("list users: %v", err)
	}
	fmt.Printf("✓ %s holds %d users\n", store.Path(), doc.TotalUsers)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
