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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/wildcommand/wildcommand/internal/config"
	"github.com/wildcommand/wildcommand/internal/identity"
	"github.com/wildcommand/wildcommand/internal/invites"
	"github.com/wildcommand/wildcommand/internal/mailer"
	"github.com/wildcommand/wildcommand/internal/outfitters"
	"github.com/wildcommand/wildcommand/internal/profiles"
)

func runAdmin(args []string) int {
	if len(args) == 0 {
		printAdminUsage()
		return 2
	}

	switch args[0] {
	case "invite":
		return runInvite(args[1:], false)
	case "resend-invite":
		return runInvite(args[1:], true)
	case "deactivate":
		return runDeactivate(args[1:])
	case "reset-password":
		return runResetPassword(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown admin command: %s\n", args[0])
		printAdminUsage()
		return 2
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  wildcommand admin invite --outfitter <id> --role <guide|hunter> --email <addr> [--name <display name>]")
	fmt.Fprintln(os.Stderr, "  wildcommand admin resend-invite --outfitter <id> --role <guide|hunter> --email <addr>")
	fmt.Fprintln(os.Stderr, "  wildcommand admin deactivate --outfitter <id> --collection <guides|hunters> --member <id>")
	fmt.Fprintln(os.Stderr, "  wildcommand admin reset-password --email <addr> [--password <new>] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Notes:")
	fmt.Fprintln(os.Stderr, "  - invite, resend-invite and deactivate act as the outfitter's administrator and need full WC_* config.")
	fmt.Fprintln(os.Stderr, "  - If --password is omitted, a random password is generated and printed.")
	fmt.Fprintln(os.Stderr, "  - --db-dsn defaults to WC_DB_DSN.")
}

// adminEnv bundles the services the member-management commands need.
type adminEnv struct {
	pool     *pgxpool.Pool
	provider *identity.PGProvider
	workflow *invites.Workflow
}

func loadAdminEnv(ctx context.Context) (*adminEnv, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	provider := identity.NewPGProvider(pool, time.Duration(cfg.SignInLinkTTLH)*time.Hour)
	store := profiles.NewPGStore(pool)
	sender := mailer.NewClient(cfg.MailRelayURL, cfg.MailFrom, cfg.MailTimeoutMS)
	directory := outfitters.NewService(pool, provider)
	workflow := invites.NewWorkflow(provider, store, sender, directory, cfg.BaseURL)

	return &adminEnv{pool: pool, provider: provider, workflow: workflow}, nil
}

func (e *adminEnv) close() {
	e.pool.Close()
}

// adminSession builds a session for the account that created the outfitter,
// so commands pass the same authorization checks the HTTP API applies.
func (e *adminEnv) adminSession(ctx context.Context, outfitterID uuid.UUID) (*identity.Session, error) {
	var email string
	err := e.pool.QueryRow(ctx, `
		SELECT a.email
		FROM outfitters o
		JOIN accounts a ON a.id = o.created_by_account_id
		WHERE o.id = $1
	`, outfitterID).Scan(&email)
	if err != nil {
		return nil, fmt.Errorf("failed to find outfitter administrator: %w", err)
	}

	account, err := e.provider.AccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	return &identity.Session{
		AccountID: account.ID,
		Email:     account.Email,
		Claims:    account.CurrentClaims(),
	}, nil
}

func runInvite(args []string, resend bool) int {
	name := "invite"
	if resend {
		name = "resend-invite"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var outfitterStr, roleStr, email, displayName string
	fs.StringVar(&outfitterStr, "outfitter", "", "Outfitter ID")
	fs.StringVar(&roleStr, "role", "", "Member role (guide or hunter)")
	fs.StringVar(&email, "email", "", "Member email")
	if !resend {
		fs.StringVar(&displayName, "name", "", "Display name")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	outfitterID, err := uuid.Parse(strings.TrimSpace(outfitterStr))
	if err != nil {
		fmt.Fprintln(os.Stderr, "--outfitter must be a valid UUID")
		return 2
	}
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Fprintln(os.Stderr, "--email is required")
		return 2
	}
	role := identity.Role(strings.TrimSpace(roleStr))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	env, err := loadAdminEnv(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer env.close()

	session, err := env.adminSession(ctx, outfitterID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	if resend {
		stub, err := env.workflow.Resend(ctx, session, outfitterID, role, email)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to resend invitation: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "Invitation resent to %s (member %s)\n", stub.Email, stub.MemberID)
		return 0
	}

	stub, err := env.workflow.Issue(ctx, session, invites.IssueRequest{
		OutfitterID: outfitterID,
		Role:        role,
		Email:       email,
		DisplayName: displayName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to invite member: %v\n", err)
		return 1
	}

	fmt.Fprintf(os.Stdout, "Invited %s as %s (member %s)\n", stub.Email, role, stub.MemberID)
	return 0
}

func runDeactivate(args []string) int {
	fs := flag.NewFlagSet("deactivate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var outfitterStr, collection, memberStr string
	fs.StringVar(&outfitterStr, "outfitter", "", "Outfitter ID")
	fs.StringVar(&collection, "collection", "", "Member collection (guides or hunters)")
	fs.StringVar(&memberStr, "member", "", "Member ID")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	outfitterID, err := uuid.Parse(strings.TrimSpace(outfitterStr))
	if err != nil {
		fmt.Fprintln(os.Stderr, "--outfitter must be a valid UUID")
		return 2
	}
	memberID, err := uuid.Parse(strings.TrimSpace(memberStr))
	if err != nil {
		fmt.Fprintln(os.Stderr, "--member must be a valid UUID")
		return 2
	}
	if _, ok := identity.RoleForCollection(collection); !ok {
		fmt.Fprintln(os.Stderr, "--collection must be guides or hunters")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	env, err := loadAdminEnv(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer env.close()

	session, err := env.adminSession(ctx, outfitterID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	path := profiles.Path{OutfitterID: outfitterID, RoleCollection: collection, MemberID: memberID}
	if err := env.workflow.Deactivate(ctx, session, path); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to deactivate member: %v\n", err)
		return 1
	}

	fmt.Fprintln(os.Stdout, "Member deactivated.")
	return 0
}

func runResetPassword(args []string) int {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var email string
	var password string
	var dbDSN string

	fs.StringVar(&email, "email", "", "Account email")
	fs.StringVar(&password, "password", "", "New password (if empty, generates one)")
	fs.StringVar(&dbDSN, "db-dsn", "", "Postgres DSN (defaults to WC_DB_DSN)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Fprintln(os.Stderr, "--email is required")
		return 2
	}

	if dbDSN == "" {
		dbDSN = strings.TrimSpace(os.Getenv("WC_DB_DSN"))
	}
	if dbDSN == "" {
		fmt.Fprintln(os.Stderr, "--db-dsn is required (or set WC_DB_DSN)")
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

	passwordHash, err := identity.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash password: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	tag, err := pool.Exec(ctx, `UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE email = $1`, email, passwordHash)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to update password: %v\n", err)
		return 1
	}
	if tag.RowsAffected() == 0 {
		fmt.Fprintf(os.Stderr, "No account found with email %q\n", email)
		return 1
	}

	fmt.Fprintln(os.Stdout, "Password updated.")
	if generated {
		fmt.Fprintln(os.Stdout, password)
	}

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

	// URL-safe, printable, without padding.
	return base64.RawURLEncoding.EncodeToString(b), nil
}
