package transport

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-accounts/core"
	"github.com/goliatone/go-accounts/security"
	"github.com/gorilla/mux"
)

const (
	testAccessToken  = "access-token-1"
	testStorageID    = "storage-token-id"
	testStorageKey   = "storage-token-key"
	testServerTime   = 1700000000.25
	testCollectionID = "/1.5/42/storage/passwords"
)

var hawkFieldPattern = regexp.MustCompile(`(\w+)="([^"]*)"`)

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url %q: %v", raw, err)
	}
	return parsed
}

func stringPtr(value string) *string {
	return &value
}

func testKeyBundle(t *testing.T) security.KeyBundle {
	t.Helper()
	raw := make([]byte, 64)
	for i := range raw {
		raw[i] = byte(i)
	}
	keys, err := security.KeyBundleFromSyncKey(hex.EncodeToString(raw))
	if err != nil {
		t.Fatalf("key bundle: %v", err)
	}
	return keys
}

// verifyHawk recomputes the MAC of r from the nonce and timestamp in its
// Authorization header.
func verifyHawk(r *http.Request, creds security.HawkCredentials, body []byte) bool {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Hawk ") {
		return false
	}
	fields := map[string]string{}
	for _, match := range hawkFieldPattern.FindAllStringSubmatch(header, -1) {
		fields[match[1]] = match[2]
	}
	ts, err := strconv.ParseInt(fields["ts"], 10, 64)
	if err != nil {
		return false
	}
	expected, err := hawkAuthorization(creds, hawkRequest{
		Method:      r.Method,
		URL:         "http://" + r.Host + r.URL.RequestURI(),
		ContentType: r.Header.Get("Content-Type"),
		Payload:     body,
		Timestamp:   time.Unix(ts, 0),
		Nonce:       fields["nonce"],
	})
	return err == nil && expected == header
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// fakeSyncServer plays both the token server and one storage node.
type fakeSyncServer struct {
	t      *testing.T
	server *httptest.Server

	mu             sync.Mutex
	records        map[string]storageRecord
	tokenCalls     int
	storageCalls   int
	unauthorized   int
	rejectIDs      []string
	lastNewer      string
	lastKeyID      string
	wiped          bool
	tokenStatus    int
	storageHawkBad bool
	weaveBackoff   string
}

func newFakeSyncServer(t *testing.T) *fakeSyncServer {
	t.Helper()
	fake := &fakeSyncServer{t: t, records: map[string]storageRecord{}}
	router := mux.NewRouter()
	router.HandleFunc("/1.0/sync/1.5", fake.handleToken).Methods(http.MethodGet)
	router.HandleFunc(testCollectionID, fake.handleFetch).Methods(http.MethodGet)
	router.HandleFunc(testCollectionID, fake.handleUpload).Methods(http.MethodPost)
	router.HandleFunc(testCollectionID, fake.handleWipe).Methods(http.MethodDelete)
	fake.server = httptest.NewServer(router)
	t.Cleanup(fake.server.Close)
	return fake
}

func (f *fakeSyncServer) URL() string {
	return f.server.URL
}

func (f *fakeSyncServer) put(t *testing.T, keys security.KeyBundle, login core.Login, deleted bool, modified float64) {
	t.Helper()
	payload, err := keys.EncryptJSON(passwordRecord{Login: login, Deleted: deleted})
	if err != nil {
		t.Fatalf("encrypt record: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[login.ID] = storageRecord{ID: login.ID, Modified: modified, Payload: payload}
}

func (f *fakeSyncServer) handleToken(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.tokenCalls++
	f.lastKeyID = r.Header.Get("X-KeyID")
	status := f.tokenStatus
	f.mu.Unlock()

	if status == http.StatusUnauthorized {
		writeJSON(w, status, map[string]any{"status": "invalid-credentials", "errno": 110})
		return
	}
	if status != 0 {
		writeJSON(w, status, map[string]any{"status": "unavailable"})
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+testAccessToken {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": "invalid-credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           testStorageID,
		"key":          testStorageKey,
		"uid":          42,
		"api_endpoint": f.server.URL + "/1.5/42",
		"duration":     300,
	})
}

func (f *fakeSyncServer) authorize(w http.ResponseWriter, r *http.Request, body []byte) bool {
	f.mu.Lock()
	f.storageCalls++
	reject := f.unauthorized > 0
	if reject {
		f.unauthorized--
	}
	f.mu.Unlock()

	creds := security.HawkCredentials{ID: testStorageID, Key: []byte(testStorageKey)}
	if reject || !verifyHawk(r, creds, body) {
		f.mu.Lock()
		if !reject {
			f.storageHawkBad = true
		}
		f.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": "invalid-hawk"})
		return false
	}
	return true
}

func (f *fakeSyncServer) handleFetch(w http.ResponseWriter, r *http.Request) {
	if !f.authorize(w, r, nil) {
		return
	}
	newer := r.URL.Query().Get("newer")
	threshold := 0.0
	if newer != "" {
		threshold, _ = strconv.ParseFloat(newer, 64)
	}

	f.mu.Lock()
	f.lastNewer = newer
	backoff := f.weaveBackoff
	records := make([]storageRecord, 0, len(f.records))
	for _, record := range f.records {
		if record.Modified > threshold {
			records = append(records, record)
		}
	}
	f.mu.Unlock()

	w.Header().Set("X-Last-Modified", strconv.FormatFloat(testServerTime, 'f', 2, 64))
	if backoff != "" {
		w.Header().Set("X-Weave-Backoff", backoff)
	}
	writeJSON(w, http.StatusOK, records)
}

func (f *fakeSyncServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		f.t.Errorf("read upload body: %v", err)
		return
	}
	if !f.authorize(w, r, body) {
		return
	}
	var batch []storageRecord
	if err := json.Unmarshal(body, &batch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "bad batch"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	failed := map[string]any{}
	for _, id := range f.rejectIDs {
		failed[id] = []string{"invalid"}
	}
	success := []string{}
	for _, record := range batch {
		if _, rejected := failed[record.ID]; rejected {
			continue
		}
		record.Modified = testServerTime + 1
		f.records[record.ID] = record
		success = append(success, record.ID)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"modified": testServerTime + 1,
		"success":  success,
		"failed":   failed,
	})
}

func (f *fakeSyncServer) handleWipe(w http.ResponseWriter, r *http.Request) {
	if !f.authorize(w, r, nil) {
		return
	}
	f.mu.Lock()
	f.records = map[string]storageRecord{}
	f.wiped = true
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"modified": testServerTime})
}
