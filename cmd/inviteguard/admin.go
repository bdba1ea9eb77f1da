package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aliuyar1234/inviteguard/internal/app"
	"github.com/aliuyar1234/inviteguard/internal/audit"
	"github.com/aliuyar1234/inviteguard/internal/auth"
	"github.com/aliuyar1234/inviteguard/internal/invitations"
	"github.com/aliuyar1234/inviteguard/internal/retention"
	"github.com/aliuyar1234/inviteguard/internal/store"
	"github.com/aliuyar1234/inviteguard/internal/validation"
	"github.com/google/uuid"
)

const dsnEnv = "IG_DB_DSN"

func runAdmin(args []string) int {
	if len(args) == 0 {
		printAdminUsage()
		return 2
	}

	switch args[0] {
	case "reset-password":
		return runResetPassword(args[1:])
	case "expire-invitations":
		return runExpireInvitations(args[1:])
	case "create-tenant":
		return runCreateTenant(args[1:])
	case "issue-token":
		return runIssueToken(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown admin command: %s\n", args[0])
		printAdminUsage()
		return 2
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  inviteguard admin reset-password --email user@example.com [--password <new>] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  inviteguard admin expire-invitations [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  inviteguard admin create-tenant --name \"Acme Inc\" --slug acme [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  inviteguard admin issue-token --user-id <uuid> --tenant-id <uuid> [--name <name>] [--ttl 24h]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Notes:")
	fmt.Fprintln(os.Stderr, "  - If --password is omitted, a random password is generated and printed.")
	fmt.Fprintln(os.Stderr, "  - --db-dsn defaults to IG_DB_DSN.")
	fmt.Fprintln(os.Stderr, "  - issue-token signs with IG_JWT_SECRET.")
}

// parseFlags registers the shared --db-dsn flag and parses args. The
// returned code is non-negative when the caller should exit with it.
func parseFlags(fs *flag.FlagSet, args []string, dbDSN *string) int {
	fs.SetOutput(os.Stderr)
	if dbDSN != nil {
		fs.StringVar(dbDSN, "db-dsn", "", "Database DSN (defaults to "+dsnEnv+")")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if dbDSN != nil {
		if *dbDSN == "" {
			*dbDSN = strings.TrimSpace(os.Getenv(dsnEnv))
		}
		if *dbDSN == "" {
			fmt.Fprintln(os.Stderr, "--db-dsn is required (or set "+dsnEnv+")")
			return 2
		}
	}
	return -1
}

func openBackend(ctx context.Context, dsn string) (app.Backend, bool) {
	backend, err := app.OpenStore(ctx, dsn, app.StoreOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return nil, false
	}
	return backend, true
}

func runResetPassword(args []string) int {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)

	var email string
	var password string
	var dbDSN string

	fs.StringVar(&email, "email", "", "User email")
	fs.StringVar(&password, "password", "", "New password (if empty, generates one)")

	if code := parseFlags(fs, args, &dbDSN); code >= 0 {
		return code
	}

	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Fprintln(os.Stderr, "--email is required")
		return 2
	}

	generated := false
	if password == "" {
		pw, err := generatePassword(24)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate password: %v\n", err)
			return 1
		}
		password = pw
		generated = true
	}

	if len(password) < 8 {
		fmt.Fprintln(os.Stderr, "Password must be at least 8 characters")
		return 2
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash password: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	backend, ok := openBackend(ctx, dbDSN)
	if !ok {
		return 1
	}
	defer backend.Close()

	if err := backend.SetPasswordHash(ctx, email, passwordHash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "No user found with email %q\n", email)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to update password: %v\n", err)
		return 1
	}

	fmt.Fprintln(os.Stdout, "Password updated.")
	if generated {
		fmt.Fprintln(os.Stdout, password)
	}

	return 0
}

func runExpireInvitations(args []string) int {
	fs := flag.NewFlagSet("expire-invitations", flag.ContinueOnError)

	var dbDSN string
	if code := parseFlags(fs, args, &dbDSN); code >= 0 {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	backend, ok := openBackend(ctx, dbDSN)
	if !ok {
		return 1
	}
	defer backend.Close()

	svc := invitations.NewService(backend, nil, invitations.Options{})
	n, err := retention.RunExpiryJob(ctx, svc, audit.NewWriter(backend))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to expire invitations: %v\n", err)
		return 1
	}

	fmt.Fprintf(os.Stdout, "Expired %d invitation(s).\n", n)
	return 0
}

func runCreateTenant(args []string) int {
	fs := flag.NewFlagSet("create-tenant", flag.ContinueOnError)

	var name string
	var slug string
	var dbDSN string

	fs.StringVar(&name, "name", "", "Tenant display name")
	fs.StringVar(&slug, "slug", "", "Tenant slug")

	if code := parseFlags(fs, args, &dbDSN); code >= 0 {
		return code
	}

	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Fprintln(os.Stderr, "--name is required")
		return 2
	}
	slug = validation.NormalizeSlug(slug)
	if err := validation.ValidateSlug(slug); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid slug: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	backend, ok := openBackend(ctx, dbDSN)
	if !ok {
		return 1
	}
	defer backend.Close()

	id, err := backend.CreateTenant(ctx, name, slug)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			fmt.Fprintf(os.Stderr, "Tenant slug %q is already taken\n", slug)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to create tenant: %v\n", err)
		return 1
	}

	fmt.Fprintln(os.Stdout, id.String())
	return 0
}

func runIssueToken(args []string) int {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)

	var userID string
	var tenantID string
	var name string
	var ttl time.Duration

	fs.StringVar(&userID, "user-id", "", "Caller user ID")
	fs.StringVar(&tenantID, "tenant-id", "", "Caller tenant ID")
	fs.StringVar(&name, "name", "", "Inviter display name")
	fs.DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	if code := parseFlags(fs, args, nil); code >= 0 {
		return code
	}

	secret := os.Getenv("IG_JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "IG_JWT_SECRET is required")
		return 2
	}

	uid, err := uuid.Parse(userID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "--user-id must be a UUID")
		return 2
	}
	tid, err := uuid.Parse(tenantID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "--tenant-id must be a UUID")
		return 2
	}

	token, err := auth.CreateToken(auth.Principal{UserID: uid, TenantID: tid, Name: strings.TrimSpace(name)}, secret, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		return 1
	}

	fmt.Fprintln(os.Stdout, token)
	return 0
}

func generatePassword(bytesLen int) (string, error) {
	if bytesLen < 8 {
		bytesLen = 8
	}

	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
