package bootstrap

import (
	"fmt"
	"log/slog"
	"strings"
)

// PrintOwnerSeedResult displays the owner seed result on stdout
func PrintOwnerSeedResult(result *OwnerSeedResult) {
	if result == nil || !result.Seeded {
		return
	}

	printSectionHeader("OWNER SEED COMPLETED")
	fmt.Printf("  Username:  %s\n", result.Username)
	fmt.Printf("  User ID:   %s\n", result.UserID)
	if result.Created {
		fmt.Printf("  Password:  %s\n", result.Password)
		fmt.Println("\n  • This password is shown only once; change it after the first login")
	}
	fmt.Println("  Status:    protected admin, excluded from device bans")
	printSectionFooter()
}

// PrintSigningSecretResult warns when a new secret file was written
func PrintSigningSecretResult(result *SigningSecretResult) {
	if result == nil || !result.Generated {
		return
	}

	printSectionHeader("CHALLENGE SIGNING SECRET GENERATED")
	fmt.Printf("  Path:         %s\n", result.Path)
	fmt.Printf("  Fingerprint:  %s\n", formatFingerprint(result.Fingerprint))
	fmt.Println("\n  • Keep this file out of version control")
	fmt.Println("  • All instances must share the same secret")
	printSectionFooter()
}

// LogBootstrapSummary logs what the start-up seeds did, without secrets
func LogBootstrapSummary(owner *OwnerSeedResult, secret *SigningSecretResult) {
	attrs := []any{}
	if owner != nil {
		attrs = append(attrs, "owner_seeded", owner.Seeded, "owner_created", owner.Created, "owner_username", owner.Username)
	}
	if secret != nil {
		attrs = append(attrs, "secret_generated", secret.Generated, "secret_fingerprint", formatFingerprint(secret.Fingerprint))
	}
	slog.Info("Bootstrap summary", attrs...)
}

func printSectionHeader(title string) {
	border := strings.Repeat("=", 80)
	fmt.Printf("\n%s\n", border)
	fmt.Printf("%s\n", title)
	fmt.Printf("%s\n", border)
}

func printSectionFooter() {
	fmt.Printf("%s\n\n", strings.Repeat("=", 80))
}

// formatFingerprint shortens a hex fingerprint to colon-separated pairs of its first 16 chars
func formatFingerprint(fingerprint string) string {
	if len(fingerprint) > 16 {
		fingerprint = fingerprint[:16]
	}
	var b strings.Builder
	for i := 0; i < len(fingerprint); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		end := i + 2
		if end > len(fingerprint) {
			end = len(fingerprint)
		}
		b.WriteString(fingerprint[i:end])
	}
	return b.String()
}
