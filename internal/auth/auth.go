// Package auth resolves the API key sent to the enhancement service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

const (
	// APIKeyEnvVar holds the key directly.
	APIKeyEnvVar = "ENHANCER_API_KEY"

	credentialDir  = ".speech-enhancer"
	credentialFile = "credentials.gpg"
)

// ErrNoAPIKey is returned when no source provides a key. The local stub
// service runs without one, so callers may treat this as non-fatal.
var ErrNoAPIKey = errors.New("API key not found")

// ParameterGetter is the part of the SSM client used here.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// GetAPIKey retrieves the service API key from available sources.
// Priority order:
//  1. ENHANCER_API_KEY environment variable
//  2. SSM Parameter Store, when ssmClient is non-nil and paramName is set
//  3. GPG-encrypted file at ~/.speech-enhancer/credentials.gpg
func GetAPIKey(ctx context.Context, ssmClient ParameterGetter, paramName string) (string, error) {
	if key := os.Getenv(APIKeyEnvVar); key != "" {
		log.Debug().Msg("Using API key from environment variable")
		return key, nil
	}

	if ssmClient != nil && paramName != "" {
		key, err := getFromSSM(ctx, ssmClient, paramName)
		if err != nil {
			return "", err
		}
		return key, nil
	}

	key, err := getFromGPG()
	if err == nil && key != "" {
		log.Debug().Msg("Using API key from GPG encrypted file")
		return key, nil
	}

	log.Debug().Err(err).Msg("No API key source available")
	return "", fmt.Errorf("%w: set %s, configure an SSM parameter, or store it in ~/%s/%s",
		ErrNoAPIKey, APIKeyEnvVar, credentialDir, credentialFile)
}

func getFromSSM(ctx context.Context, ssmClient ParameterGetter, paramName string) (string, error) {
	start := time.Now()
	result, err := ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		log.Error().Err(err).Str("param", paramName).Msg("Failed to read API key from SSM")
		return "", fmt.Errorf("read SSM parameter %s: %w", paramName, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil || *result.Parameter.Value == "" {
		return "", fmt.Errorf("SSM parameter %s is empty", paramName)
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(start)).Msg("API key loaded from SSM")
	return strings.TrimSpace(*result.Parameter.Value), nil
}

// getFromGPG decrypts the API key from the GPG-encrypted credentials file.
func getFromGPG() (string, error) {
	credPath, err := getCredentialPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(credPath); os.IsNotExist(err) {
		return "", fmt.Errorf("GPG credentials file not found at %s", credPath)
	}

	log.Debug().Str("file", credPath).Msg("Decrypting GPG credentials")

	args := []string{"--decrypt", "--quiet"}
	if passphrasePath, ok := getPassphrasePath(); ok {
		args = append(args, "--pinentry-mode", "loopback", "--passphrase-file", passphrasePath)
	}
	args = append(args, credPath)

	output, err := exec.Command("gpg", args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("GPG decryption failed: %s", string(exitErr.Stderr))
		}
		return "", fmt.Errorf("GPG decryption failed: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// getCredentialPath returns the full path to the credentials file.
func getCredentialPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, credentialDir, credentialFile), nil
}

// getPassphrasePath returns the passphrase file next to the credentials,
// if present with owner-only permissions.
func getPassphrasePath() (string, bool) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	path := filepath.Join(home, credentialDir, ".gpg-passphrase")
	fi, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if mode := fi.Mode().Perm(); mode&0077 != 0 {
		log.Warn().
			Str("passphraseFile", path).
			Str("permissions", fmt.Sprintf("%04o", mode)).
			Msg("Passphrase file has insecure permissions (should be 0600); skipping")
		return "", false
	}
	return path, true
}
