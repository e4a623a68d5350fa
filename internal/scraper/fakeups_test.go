package scraper

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

const (
	fakeUser     = "admin"
	fakePassword = "secret"
)

// fakeUPS emulates the subset of the mbdetnrs REST API the client walks.
type fakeUPS struct {
	mu sync.Mutex

	token  string
	logins int
	gets   int

	// expireOnGet drops the session on the n-th authorized GET (1-based).
	expireOnGet int

	// alwaysUnauthorized rejects every GET, even with a valid token.
	alwaysUnauthorized bool

	// loginDelay holds the login response back.
	loginDelay time.Duration

	// overviewBody replaces the power distribution body when set.
	overviewBody string

	// responses replaces the answer for individual paths.
	responses map[string]fakeResponse
}

type fakeResponse struct {
	status int
	body   string
}

func newFakeUPS(t *testing.T, tlsServer bool) (*fakeUPS, *httptest.Server) {
	t.Helper()
	f := &fakeUPS{}
	var srv *httptest.Server
	if tlsServer {
		srv = httptest.NewTLSServer(f)
	} else {
		srv = httptest.NewServer(f)
	}
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeUPS) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *fakeUPS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == loginPath {
		f.serveLogin(w, r)
		return
	}

	f.mu.Lock()
	valid := f.token != "" && r.Header.Get("Authorization") == "Bearer "+f.token
	if !valid || f.alwaysUnauthorized {
		f.mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"Unauthorized"}`)
		return
	}
	f.gets++
	if f.gets == f.expireOnGet {
		f.token = ""
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"errorCode":"SESSION_EXPIRED","message":"Session expired"}`)
		return
	}
	overview := f.overviewBody
	override, overridden := f.responses[r.URL.Path]
	f.mu.Unlock()

	if overridden {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(override.status)
		_, _ = io.WriteString(w, override.body)
		return
	}

	const base = powerDistributionPath
	switch r.URL.Path {
	case base:
		if overview == "" {
			overview = fmt.Sprintf(`{"@id":%q,"id":"42","inputs":{"@id":%q},"outputs":{"@id":%q},"backupSystem":{"@id":%q}}`,
				base, base+"/inputs", base+"/outputs", base+"/backupSystem")
		}
		_, _ = io.WriteString(w, overview)
	case base + "/inputs/1":
		_, _ = io.WriteString(w, `{"@id":"`+base+`/inputs/1","id":"1",
			"measures":{"realtime":{"frequency":50,"voltage":231.5,"current":1.4}},"status":{"health":5}}`)
	case base + "/outputs/1":
		_, _ = io.WriteString(w, `{"@id":"`+base+`/outputs/1","id":"1",
			"measures":{"realtime":{"frequency":50,"voltage":230,"current":1.2,"activePower":210,
			"apparentPower":260,"powerFactor":0.81,"percentLoad":17}},"status":{"health":5}}`)
	case base + "/backupSystem":
		_, _ = io.WriteString(w, `{"@id":"`+base+`/backupSystem","powerBank":{"@id":"`+base+`/backupSystem/powerBank"}}`)
	case base + "/backupSystem/powerBank":
		_, _ = io.WriteString(w, `{"@id":"`+base+`/backupSystem/powerBank",
			"measures":{"voltage":27.3,"remainingChargeCapacity":100,"remainingTime":3540},"status":{"health":"ok"}}`)
	case logMeasuresPath:
		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, "Date;Time;Input Voltage\n2024/01/01;00:00:00;231\n")
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeUPS) serveLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	f.mu.Lock()
	delay := f.loginDelay
	f.logins++
	n := f.logins
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.Username != fakeUser || req.Password != fakePassword ||
		req.GrantType != "password" || req.Scope != "GUIAccess" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
		return
	}

	token := fmt.Sprintf("tok-%d", n)
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(loginResponse{TokenType: "Bearer", AccessToken: token})
}

// failureRecorder collects the codes passed to a FailureHook.
type failureRecorder struct {
	mu    sync.Mutex
	codes []ErrorCode
}

func (r *failureRecorder) hook(_ string, err *Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, err.Code)
}

func (r *failureRecorder) all() []ErrorCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ErrorCode(nil), r.codes...)
}
