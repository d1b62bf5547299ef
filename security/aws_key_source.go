package security

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/goliatone/go-accounts/core"
)

// KeySource resolves the local encryption key for a store.
type KeySource interface {
	ResolveKey(ctx context.Context) (hexKey string, keyID string, err error)
}

// StaticKeySource returns a caller held key.
type StaticKeySource struct {
	Key   string
	KeyID string
}

func (s StaticKeySource) ResolveKey(context.Context) (string, string, error) {
	if strings.TrimSpace(s.Key) == "" {
		return "", "", core.NewError(core.ErrorInvalidCredentials, "security: static key is empty")
	}
	return strings.TrimSpace(s.Key), strings.TrimSpace(s.KeyID), nil
}

// SecretsManagerAPI is the part of the Secrets Manager client the key source
// uses.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManagerKeySource reads the local encryption key from a secret.
// The secret holds either the key itself (hex or base64) or a JSON object
// with "key" and optional "key_id" members.
type AWSSecretsManagerKeySource struct {
	Client       SecretsManagerAPI
	SecretID     string
	VersionStage string
}

func NewAWSSecretsManagerKeySource(ctx context.Context, secretID, region string) (*AWSSecretsManagerKeySource, error) {
	secretID = strings.TrimSpace(secretID)
	if secretID == "" {
		return nil, core.NewError(core.ErrorBadInput, "security: secret id is required")
	}
	var (
		cfg aws.Config
		err error
	)
	if region = strings.TrimSpace(region); region != "" {
		cfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	} else {
		cfg, err = awsconfig.LoadDefaultConfig(ctx)
	}
	if err != nil {
		return nil, core.WrapError(err, core.ErrorInternal, "security: load aws config")
	}
	return &AWSSecretsManagerKeySource{
		Client:   secretsmanager.NewFromConfig(cfg),
		SecretID: secretID,
	}, nil
}

func (s *AWSSecretsManagerKeySource) ResolveKey(ctx context.Context) (string, string, error) {
	if s == nil || s.Client == nil {
		return "", "", core.NewError(core.ErrorInternal, "security: secrets manager client is not configured")
	}
	input := &secretsmanager.GetSecretValueInput{SecretId: aws.String(s.SecretID)}
	if stage := strings.TrimSpace(s.VersionStage); stage != "" {
		input.VersionStage = aws.String(stage)
	}
	output, err := s.Client.GetSecretValue(ctx, input)
	if err != nil {
		return "", "", core.WrapError(err, core.ErrorNetwork, "security: fetch secret "+s.SecretID)
	}

	var payload string
	switch {
	case output.SecretString != nil:
		payload = *output.SecretString
	case len(output.SecretBinary) > 0:
		payload = string(output.SecretBinary)
	default:
		return "", "", core.NewError(core.ErrorInvalidCredentials, "security: secret "+s.SecretID+" is empty")
	}

	keyID := aws.ToString(output.VersionId)
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "{") {
		var parsed struct {
			Key   string `json:"key"`
			KeyID string `json:"key_id"`
		}
		if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
			return "", "", core.WrapError(err, core.ErrorInvalidCredentials, "security: secret is not a key document")
		}
		payload = strings.TrimSpace(parsed.Key)
		if parsed.KeyID != "" {
			keyID = parsed.KeyID
		}
	}
	hexKey, err := normalizeKeyText(payload)
	if err != nil {
		return "", "", err
	}
	return hexKey, keyID, nil
}

// normalizeKeyText accepts a 32-byte key as hex or base64 and returns hex.
func normalizeKeyText(value string) (string, error) {
	if raw, err := hex.DecodeString(value); err == nil && len(raw) == 32 {
		return strings.ToLower(value), nil
	}
	for _, encoding := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if raw, err := encoding.DecodeString(value); err == nil && len(raw) == 32 {
			return hex.EncodeToString(raw), nil
		}
	}
	return "", core.NewError(core.ErrorInvalidCredentials, "security: secret does not hold a 32-byte key")
}

// NewSecretProviderFromSource resolves a key and builds the provider for it.
func NewSecretProviderFromSource(ctx context.Context, source KeySource) (*AppKeySecretProvider, error) {
	if source == nil {
		return nil, core.NewError(core.ErrorBadInput, "security: key source is required")
	}
	hexKey, keyID, err := source.ResolveKey(ctx)
	if err != nil {
		return nil, err
	}
	return NewAppKeySecretProviderFromHex(hexKey, WithKeyID(keyID))
}
