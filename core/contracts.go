package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// FieldSealer protects individual stored values. purpose is bound to the
// sealed value and must match on open.
type FieldSealer interface {
	SealString(ctx context.Context, purpose, plaintext string) (string, error)
	OpenString(ctx context.Context, purpose, ciphertext string) (string, error)
}

type TransportRequest struct {
	Method   string
	URL      string
	Headers  map[string]string
	Query    map[string]string
	Body     []byte
	Metadata map[string]any
	Timeout  time.Duration

	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// BackoffPolicy gates calls to a remote service that can ask clients to
// back off. BeforeCall fails while key is backing off; AfterCall records
// the server's hints from res.
type BackoffPolicy interface {
	BeforeCall(ctx context.Context, key string) error
	AfterCall(ctx context.Context, key string, res TransportResponse) error
}

type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantRefreshToken      GrantType = "refresh_token"
	GrantSessionToken      GrantType = "fxa-credentials"
)

// TokenRequest is one exchange against the identity provider token endpoint.
type TokenRequest struct {
	Endpoints    Endpoints
	ClientID     string
	GrantType    GrantType
	Code         string
	CodeVerifier string
	RefreshToken string
	SessionToken string
	Scopes       []string
	AccessType   string
}

// TokenGrant is the provider's answer to a TokenRequest.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	Scopes       []string
	ExpiresIn    time.Duration
	Keys         []ScopedKey
}

type Profile struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	Avatar      string `json:"avatar"`
	DisplayName string `json:"displayName,omitempty"`
}

// IdentityClient is the network side of the session engine.
type IdentityClient interface {
	Token(ctx context.Context, req TokenRequest) (TokenGrant, error)
	Profile(ctx context.Context, endpoints Endpoints, accessToken string) (Profile, error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

// JobWorkerHook observes background job runs, such as queued logins syncs.
type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
