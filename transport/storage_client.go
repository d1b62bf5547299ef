package transport

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-accounts/core"
	"github.com/goliatone/go-accounts/security"
)

const (
	defaultCollection       = "passwords"
	storageTokenLeeway      = time.Minute
	headerLastModified      = "X-Last-Modified"
	headerWeaveTimestamp    = "X-Weave-Timestamp"
	headerKeyID             = "X-Keyid"
	defaultStorageTokenLife = 5 * time.Minute
)

// StorageClient is the remote login collection: it trades the OAuth access
// token for storage credentials at the token server, then reads and writes
// encrypted records in the account's storage node.
type StorageClient struct {
	Transport      core.TransportAdapter
	TokenServerURL string
	AccessToken    string
	KeyID          string
	Keys           security.KeyBundle
	Collection     string
	Backoff        core.BackoffPolicy
	Now            func() time.Time

	token *storageToken
}

type storageToken struct {
	creds     security.HawkCredentials
	endpoint  string
	expiresAt time.Time
}

func NewStorageClient(transport core.TransportAdapter, creds core.SyncCredentials, keys security.KeyBundle) *StorageClient {
	if transport == nil {
		transport = NewRESTAdapter(nil)
	}
	return &StorageClient{
		Transport:      transport,
		TokenServerURL: strings.TrimSpace(creds.TokenServerURL),
		AccessToken:    strings.TrimSpace(creds.AccessToken),
		KeyID:          strings.TrimSpace(creds.KeyID),
		Keys:           keys,
		Collection:     defaultCollection,
		Now:            func() time.Time { return time.Now().UTC() },
	}
}

type tokenServerResponse struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	UID         int64  `json:"uid"`
	APIEndpoint string `json:"api_endpoint"`
	Duration    int64  `json:"duration"`
}

type storageRecord struct {
	ID       string  `json:"id"`
	Modified float64 `json:"modified,omitempty"`
	Payload  string  `json:"payload"`
}

// passwordRecord is the cleartext body of one record.
type passwordRecord struct {
	core.Login
	Deleted bool `json:"deleted,omitempty"`
}

type uploadResponse struct {
	Modified float64        `json:"modified"`
	Success  []string       `json:"success"`
	Failed   map[string]any `json:"failed"`
}

// Fetch returns records changed after since (all records when since is
// zero) and the server time of the read.
func (c *StorageClient) Fetch(ctx context.Context, since time.Time) ([]core.RemoteLogin, time.Time, error) {
	query := map[string]string{"full": "1"}
	if !since.IsZero() {
		query["newer"] = formatServerTime(since)
	}
	res, err := c.storageRequest(ctx, http.MethodGet, "", query, nil)
	if err != nil {
		return nil, time.Time{}, err
	}
	if res.StatusCode == http.StatusNotFound {
		return nil, serverTime(res), nil
	}
	if !successful(res.StatusCode) {
		return nil, time.Time{}, statusError("fetch_collection", res)
	}

	var raw []storageRecord
	if err := json.Unmarshal(res.Body, &raw); err != nil {
		return nil, time.Time{}, transportWrapError(err, core.ErrorServer, "transport: collection response is not valid json", res.StatusCode, nil)
	}
	records := make([]core.RemoteLogin, 0, len(raw))
	for _, item := range raw {
		var body passwordRecord
		if err := c.Keys.DecryptJSON(item.Payload, &body); err != nil {
			return nil, time.Time{}, err
		}
		if body.ID == "" {
			body.ID = item.ID
		}
		records = append(records, core.RemoteLogin{
			Login:    body.Login,
			Deleted:  body.Deleted,
			Modified: parseServerTime(item.Modified),
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, serverTime(res), nil
}

// Upload writes records in one batch and returns the server's modified
// time for the batch.
func (c *StorageClient) Upload(ctx context.Context, records []core.RemoteLogin) (time.Time, error) {
	if len(records) == 0 {
		return time.Time{}, nil
	}
	batch := make([]storageRecord, 0, len(records))
	for _, record := range records {
		body := passwordRecord{Login: record.Login, Deleted: record.Deleted}
		if record.Deleted {
			body = passwordRecord{Login: core.Login{ID: record.ID}, Deleted: true}
		}
		payload, err := c.Keys.EncryptJSON(body)
		if err != nil {
			return time.Time{}, err
		}
		batch = append(batch, storageRecord{ID: record.ID, Payload: payload})
	}
	encoded, err := json.Marshal(batch)
	if err != nil {
		return time.Time{}, core.WrapError(err, core.ErrorInternal, "transport: encode upload batch")
	}

	res, err := c.storageRequest(ctx, http.MethodPost, contentTypeJSON, nil, encoded)
	if err != nil {
		return time.Time{}, err
	}
	if !successful(res.StatusCode) {
		return time.Time{}, statusError("upload_collection", res)
	}
	parsed := uploadResponse{}
	if err := json.Unmarshal(res.Body, &parsed); err != nil {
		return time.Time{}, transportWrapError(err, core.ErrorServer, "transport: upload response is not valid json", res.StatusCode, nil)
	}
	if len(parsed.Failed) > 0 {
		ids := make([]string, 0, len(parsed.Failed))
		for id := range parsed.Failed {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return time.Time{}, transportError(
			"transport: server rejected records "+strings.Join(ids, ","),
			core.ErrorServer,
			res.StatusCode,
			map[string]any{"failed": ids},
		)
	}
	if parsed.Modified > 0 {
		return parseServerTime(parsed.Modified), nil
	}
	return serverTime(res), nil
}

// Wipe deletes the whole collection.
func (c *StorageClient) Wipe(ctx context.Context) error {
	res, err := c.storageRequest(ctx, http.MethodDelete, "", nil, nil)
	if err != nil {
		return err
	}
	if res.StatusCode == http.StatusNotFound || successful(res.StatusCode) {
		return nil
	}
	return statusError("wipe_collection", res)
}

// storageRequest signs and sends one request to the collection. A 401 from
// the storage node drops the storage token and retries once with a fresh one.
func (c *StorageClient) storageRequest(ctx context.Context, method, contentType string, query map[string]string, body []byte) (core.TransportResponse, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.storageToken(ctx)
		if err != nil {
			return core.TransportResponse{}, err
		}
		target := strings.TrimRight(token.endpoint, "/") + "/storage/" + c.collection()
		if len(query) > 0 {
			target += "?" + encodeQuery(query)
		}
		authorization, err := hawkAuthorization(token.creds, hawkRequest{
			Method:      method,
			URL:         target,
			ContentType: contentType,
			Payload:     body,
			Timestamp:   c.now(),
		})
		if err != nil {
			return core.TransportResponse{}, err
		}
		headers := map[string]string{"Authorization": authorization}
		if contentType != "" {
			headers["Content-Type"] = contentType
		}
		res, err := c.do(ctx, core.TransportRequest{
			Method:  method,
			URL:     target,
			Headers: headers,
			Body:    body,
		})
		if err != nil {
			return core.TransportResponse{}, err
		}
		if res.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.token = nil
			continue
		}
		return res, nil
	}
	return core.TransportResponse{}, core.NewError(core.ErrorUnauthorized, "transport: storage node rejected a fresh token")
}

func (c *StorageClient) storageToken(ctx context.Context) (*storageToken, error) {
	if c.token != nil && c.now().Before(c.token.expiresAt) {
		return c.token, nil
	}
	if c.Transport == nil {
		return nil, transportError("transport: storage client has no transport", core.ErrorInternal, http.StatusInternalServerError, nil)
	}
	if c.AccessToken == "" {
		return nil, core.NewError(core.ErrorUnauthorized, "transport: storage access requires an access token")
	}
	res, err := c.do(ctx, core.TransportRequest{
		Method: http.MethodGet,
		URL:    core.Endpoints{TokenServerURL: c.TokenServerURL}.TokenServerEndpointURL(),
		Headers: map[string]string{
			"Authorization": "Bearer " + c.AccessToken,
			headerKeyID:     c.KeyID,
		},
	})
	if err != nil {
		return nil, err
	}
	if !successful(res.StatusCode) {
		return nil, statusError("token_server_exchange", res)
	}
	parsed := tokenServerResponse{}
	if err := json.Unmarshal(res.Body, &parsed); err != nil {
		return nil, transportWrapError(err, core.ErrorServer, "transport: token server response is not valid json", res.StatusCode, nil)
	}
	creds, err := security.HawkCredentialsFromToken(parsed.ID, parsed.Key)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(parsed.APIEndpoint) == "" {
		return nil, transportError("transport: token server response has no api endpoint", core.ErrorServer, res.StatusCode, nil)
	}
	life := time.Duration(parsed.Duration) * time.Second
	if life <= 0 {
		life = defaultStorageTokenLife
	}
	if life > storageTokenLeeway {
		life -= storageTokenLeeway
	}
	c.token = &storageToken{
		creds:     creds,
		endpoint:  strings.TrimSpace(parsed.APIEndpoint),
		expiresAt: c.now().Add(life),
	}
	return c.token, nil
}

// do sends req through the backoff policy, keyed by the target host, so a
// server that asked for backoff is not called again until the window ends.
func (c *StorageClient) do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	key := backoffKey(req.URL)
	if c.Backoff != nil {
		if err := c.Backoff.BeforeCall(ctx, key); err != nil {
			return core.TransportResponse{}, err
		}
	}
	res, err := c.Transport.Do(ctx, req)
	if err != nil {
		return core.TransportResponse{}, err
	}
	if c.Backoff != nil {
		if err := c.Backoff.AfterCall(ctx, key, res); err != nil {
			return core.TransportResponse{}, err
		}
	}
	return res, nil
}

func backoffKey(target string) string {
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" {
		return target
	}
	return parsed.Host
}

func (c *StorageClient) collection() string {
	if strings.TrimSpace(c.Collection) == "" {
		return defaultCollection
	}
	return strings.TrimSpace(c.Collection)
}

func (c *StorageClient) now() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now()
}

// encodeQuery keeps keys sorted so the Hawk MAC covers a stable resource.
func encodeQuery(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+values[key])
	}
	return strings.Join(parts, "&")
}

func formatServerTime(at time.Time) string {
	return strconv.FormatFloat(float64(at.UnixMilli())/1000, 'f', 2, 64)
}

func parseServerTime(seconds float64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(math.Round(seconds * 1000))).UTC()
}

func serverTime(res core.TransportResponse) time.Time {
	for _, header := range []string{headerLastModified, headerWeaveTimestamp} {
		value := strings.TrimSpace(res.Headers[header])
		if value == "" {
			continue
		}
		if seconds, err := strconv.ParseFloat(value, 64); err == nil {
			return parseServerTime(seconds)
		}
	}
	return time.Time{}
}

var _ core.LoginCollection = (*StorageClient)(nil)
