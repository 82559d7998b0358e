package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"mediagen/internal/domain/genparams"
	"mediagen/internal/middleware"
)

// gentoken mints a bearer token for local API testing with the same claims
// the CV platform's auth service issues.
func main() {
	var (
		userFlag   string
		localeFlag string
		ttlFlag    time.Duration
	)
	flag.StringVar(&userFlag, "user", "", "user ID to place in the token subject")
	flag.StringVar(&localeFlag, "locale", genparams.DefaultLocale, "locale claim for the token")
	flag.DurationVar(&ttlFlag, "ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	userID := strings.TrimSpace(userFlag)
	if userID == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(1)
	}

	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is required")
		os.Exit(1)
	}

	token, err := middleware.SignToken(secret, userID, strings.TrimSpace(localeFlag), ttlFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
