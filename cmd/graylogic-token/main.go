// graylogic-token mints access tokens for the bridge's local HTTP API.
//
// It signs with the JWT secret from the bridge configuration, so tokens
// are accepted by a bridge running with the same config:
//
//	graylogic-token -role operator -subject core
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nerrad567/gray-logic-broadlink/internal/auth"
	"github.com/nerrad567/gray-logic-broadlink/internal/infrastructure/config"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run parses args, loads the configuration and writes one token to out.
func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("graylogic-token", flag.ContinueOnError)
	role := fs.String("role", string(auth.RoleOperator), "token role: viewer, operator or admin")
	subject := fs.String("subject", "core", "token subject")
	ttl := fs.Duration("ttl", 0, "token lifetime (default: security.jwt.access_token_ttl)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := os.Getenv("GRAYLOGIC_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
	}

	token, err := auth.GenerateAccessToken(*subject, auth.Role(*role), cfg.Security.JWT.Secret, lifetime)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token)
	return err
}
