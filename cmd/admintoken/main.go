// Package main prints an admin API token signed with ADMIN_JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/auth"
)

func main() {
	subject := flag.String("subject", "", "operator the token is issued to (required)")
	hours := flag.Int("hours", 24, "token lifetime in hours")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" || *subject == "" {
		fmt.Fprintln(os.Stderr, "usage: ADMIN_JWT_SECRET=... admintoken -subject ops@example.com [-hours 24]")
		os.Exit(2)
	}
	token, err := auth.NewJWTService(secret, *hours).Generate(*subject, auth.RoleAdmin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
