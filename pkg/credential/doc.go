// Package credential hashes passwords, checks password strength and mints random tokens.
package credential
