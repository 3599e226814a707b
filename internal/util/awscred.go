// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

var ErrNoToken = errors.New("no VCO auth token configured")

// AWSConfigOptions returns load options for region and, when both keys are given, static
// credentials. Without keys the SDK default chain applies (env, shared config, SSO, IAM role).
func AWSConfigOptions(region, accessKeyID, secretAccessKey, sessionToken string) []func(*config.LoadOptions) error {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, sessionToken)))
	}
	return opts
}

// LoadAWSConfig loads the SDK config with AWSConfigOptions.
func LoadAWSConfig(ctx context.Context, region, accessKeyID, secretAccessKey, sessionToken string) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, AWSConfigOptions(region, accessKeyID, secretAccessKey, sessionToken)...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("create AWS config: %w", err)
	}
	return cfg, nil
}

// SecretGetter is the part of the Secrets Manager client used here.
type SecretGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// GetTokenFromSecretsManager retrieves the VCO token stored in secretName.
// The secret is either a JSON object with a "token" field or the bare token string.
func GetTokenFromSecretsManager(ctx context.Context, svc SecretGetter, secretName string) (string, error) {
	if secretName == "" {
		return "", fmt.Errorf("secret name is required for Secrets Manager")
	}

	out, err := svc.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretName),
		VersionStage: aws.String("AWSCURRENT"),
	})
	if err != nil {
		return "", fmt.Errorf("get secret value: %w", err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret string empty for %s", secretName)
	}
	return ParseTokenSecret(*out.SecretString)
}

// ParseTokenSecret extracts the token from a secret string.
func ParseTokenSecret(secret string) (string, error) {
	secret = strings.TrimSpace(secret)
	if strings.HasPrefix(secret, "{") {
		var payload struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal([]byte(secret), &payload); err != nil {
			return "", fmt.Errorf("parse secret json: %w", err)
		}
		secret = strings.TrimSpace(payload.Token)
	}
	if secret == "" {
		return "", fmt.Errorf("token field empty in secret")
	}
	return secret, nil
}

// ResolveAuthToken returns token if set (flag, env or config file), otherwise the token stored
// in the Secrets Manager secret secretName. awsCfg is only called for the secret lookup.
func ResolveAuthToken(ctx context.Context, token, secretName string, awsCfg func() (aws.Config, error)) (string, error) {
	if token != "" {
		return token, nil
	}

	if secretName != "" {
		cfg, err := awsCfg()
		if err != nil {
			return "", err
		}
		return GetTokenFromSecretsManager(ctx, secretsmanager.NewFromConfig(cfg), secretName)
	}
	return "", ErrNoToken
}
