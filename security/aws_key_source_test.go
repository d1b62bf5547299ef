package security

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/goliatone/go-accounts/core"
)

type fakeSecretsManager struct {
	output *secretsmanager.GetSecretValueOutput
	err    error
	input  *secretsmanager.GetSecretValueInput
}

func (f *fakeSecretsManager) GetSecretValue(_ context.Context, params *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.input = params
	return f.output, f.err
}

func TestAWSSecretsManagerKeySource_ResolvesHexKey(t *testing.T) {
	client := &fakeSecretsManager{output: &secretsmanager.GetSecretValueOutput{
		SecretString: aws.String(testLocalKey),
		VersionId:    aws.String("v-7"),
	}}
	source := &AWSSecretsManagerKeySource{Client: client, SecretID: "accounts/local-key", VersionStage: "AWSCURRENT"}

	key, keyID, err := source.ResolveKey(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if key != testLocalKey || keyID != "v-7" {
		t.Fatalf("unexpected key %q id %q", key, keyID)
	}
	if aws.ToString(client.input.SecretId) != "accounts/local-key" || aws.ToString(client.input.VersionStage) != "AWSCURRENT" {
		t.Fatalf("unexpected request %#v", client.input)
	}
}

func TestAWSSecretsManagerKeySource_ResolvesJSONDocument(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	doc := `{"key":"` + base64.StdEncoding.EncodeToString(raw) + `","key_id":"device-1"}`
	source := &AWSSecretsManagerKeySource{
		Client:   &fakeSecretsManager{output: &secretsmanager.GetSecretValueOutput{SecretString: aws.String(doc)}},
		SecretID: "accounts/local-key",
	}
	provider, err := NewSecretProviderFromSource(context.Background(), source)
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	if provider.KeyID() != "device-1" {
		t.Fatalf("expected key id device-1, got %q", provider.KeyID())
	}
	key, _, _ := source.ResolveKey(context.Background())
	if key != testLocalKey {
		t.Fatalf("expected hex normalized key, got %q", key)
	}
}

func TestAWSSecretsManagerKeySource_MapsFailures(t *testing.T) {
	source := &AWSSecretsManagerKeySource{
		Client:   &fakeSecretsManager{err: errors.New("dial tcp: timeout")},
		SecretID: "accounts/local-key",
	}
	if _, _, err := source.ResolveKey(context.Background()); !core.IsKind(err, core.ErrorNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}

	source.Client = &fakeSecretsManager{output: &secretsmanager.GetSecretValueOutput{SecretString: aws.String("short")}}
	if _, _, err := source.ResolveKey(context.Background()); !core.IsKind(err, core.ErrorInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}
