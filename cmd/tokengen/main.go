// Package main mints portal bearer tokens for local development.
// Tokens are signed with the development key unless -key is given and
// are rejected by a production deployment.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	id "compliance/pkg/domain"
	"compliance/pkg/platform/middleware/auth"
	"compliance/pkg/requestcontext"
)

const (
	// Matches the development default in internal/platform/config.
	devSigningKey   = "dev-signing-key-change-me"
	defaultIssuer   = "parent-portal"
	defaultAudience = "compliance"
	defaultTokenTTL = time.Hour
)

type tokenOutput struct {
	Token            string `json:"token"`
	Type             string `json:"type"`
	ExpiresIn        string `json:"expires_in"`
	ActorID          string `json:"actor_id"`
	Role             string `json:"role"`
	IdentityVerified bool   `json:"identity_verified"`
	Usage            string `json:"usage"`
}

func main() {
	fs := flag.NewFlagSet("tokengen", flag.ExitOnError)
	actorID := fs.String("actor-id", "", "Actor ID. A random guardian-<uuid> is generated if empty.")
	role := fs.String("role", string(requestcontext.RoleGuardian), "GUARDIAN, STAFF or ADMIN")
	verified := fs.Bool("verified", false, "Mark the guardian's identity as already verified")
	ttl := fs.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	key := fs.String("key", devSigningKey, "HS256 signing key")
	issuer := fs.String("issuer", defaultIssuer, "Token issuer")
	audience := fs.String("audience", defaultAudience, "Token audience")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	_ = fs.Parse(os.Args[1:])

	actor, err := buildActor(*actorID, *role, *verified)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}

	token, err := auth.NewTokenValidator(*key, *issuer, *audience).Sign(actor, time.Now(), *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error signing token:", err)
		os.Exit(1)
	}

	out := tokenOutput{
		Token:            token,
		Type:             "Bearer",
		ExpiresIn:        ttl.String(),
		ActorID:          actor.ID.String(),
		Role:             string(actor.Role),
		IdentityVerified: actor.IdentityVerified,
		Usage:            "curl -H 'Authorization: Bearer " + token + "' http://localhost:8080/grievances",
	}
	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}
	fmt.Printf("Actor:       %s (%s)\n", out.ActorID, out.Role)
	fmt.Printf("Verified:    %t\n", out.IdentityVerified)
	fmt.Printf("Expires In:  %s\n", out.ExpiresIn)
	fmt.Printf("\n%s\n", out.Token)
}

func buildActor(actorID, role string, verified bool) (requestcontext.Actor, error) {
	r := requestcontext.Role(strings.ToUpper(strings.TrimSpace(role)))
	if !r.IsValid() {
		return requestcontext.Actor{}, fmt.Errorf("unknown role %q", role)
	}
	if actorID == "" {
		actorID = strings.ToLower(string(r)) + "-" + uuid.NewString()
	}
	parsed, err := id.ParseActorID(actorID)
	if err != nil {
		return requestcontext.Actor{}, err
	}
	return requestcontext.Actor{ID: parsed, Role: r, IdentityVerified: verified}, nil
}
