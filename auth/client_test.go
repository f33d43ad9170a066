package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/fyd-app/go-fyd-client/auth"
	"github.com/fyd-app/go-fyd-client/sessions"
	"github.com/fyd-app/go-fyd-client/sessions/storefakes"
)

const (
	testEmail    = "a@b.com"
	testPassword = "x"
)

func testUser() sessions.User {
	return sessions.User{
		ID:        "1",
		Name:      "Test User",
		Email:     testEmail,
		Role:      "user",
		Active:    true,
		City:      "Paris",
		Interests: []string{"sport"},
	}
}

// testFixture holds the fake store, the mock server, and the client under
// test.
type testFixture struct {
	store  *storefakes.FakeStore
	server *httptest.Server
	client *auth.Client

	refreshCalls int32
	// handlers are swapped per test
	loginHandler   http.HandlerFunc
	refreshHandler http.HandlerFunc
	handlerLock    sync.RWMutex
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{store: storefakes.NewFakeStore()}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.handlerLock.RLock()
		h := f.loginHandler
		f.handlerLock.RUnlock()
		require.NotNil(t, h, "login handler not configured")
		h(w, r)
	})
	mux.HandleFunc("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		f.handlerLock.RLock()
		h := f.loginHandler
		f.handlerLock.RUnlock()
		require.NotNil(t, h, "register handler not configured")
		h(w, r)
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.refreshCalls, 1)
		f.handlerLock.RLock()
		h := f.refreshHandler
		f.handlerLock.RUnlock()
		require.NotNil(t, h, "refresh handler not configured")
		h(w, r)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	client, err := auth.New(f.server.URL, f.store)
	require.NoError(t, err)
	f.client = client
	return f
}

func (f *testFixture) setLoginHandler(h http.HandlerFunc) {
	f.handlerLock.Lock()
	defer f.handlerLock.Unlock()
	f.loginHandler = h
}

func (f *testFixture) setRefreshHandler(h http.HandlerFunc) {
	f.handlerLock.Lock()
	defer f.handlerLock.Unlock()
	f.refreshHandler = h
}

func (f *testFixture) seedSession(t *testing.T, accessToken, refreshToken string) {
	t.Helper()
	require.NoError(t, f.store.Put(context.Background(), &sessions.Record{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         testUser(),
	}))
}

func sessionResponse(token, refreshToken string) map[string]interface{} {
	return map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"token":        token,
			"refreshToken": refreshToken,
			"user":         testUser(),
		},
		"message": "ok",
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestLogin_PersistsSessionAndAppliesToken(t *testing.T) {
	f := setupTestFixture(t)
	f.setLoginHandler(func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		require.Equal(t, testEmail, creds["email"])
		require.Equal(t, testPassword, creds["password"])
		writeJSON(t, w, http.StatusOK, sessionResponse("T1", "R1"))
	})

	record, err := f.client.Login(context.Background(), auth.LoginCredentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.Equal(t, "T1", record.AccessToken)
	require.Equal(t, "R1", record.RefreshToken)
	require.Equal(t, testUser(), record.User)

	stored, err := f.store.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, record, stored)
	require.Equal(t, "T1", f.client.AccessToken())
}

func TestLogin_ServerRejection(t *testing.T) {
	f := setupTestFixture(t)
	f.setLoginHandler(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"message": "invalid credentials",
		})
	})

	_, err := f.client.Login(context.Background(), auth.LoginCredentials{Email: testEmail, Password: "wrong"})
	require.ErrorIs(t, err, auth.ErrAuthenticationFailed)
	require.Contains(t, err.Error(), "invalid credentials")

	stored, err := f.store.Get(context.Background())
	require.NoError(t, err)
	require.Nil(t, stored)
	require.Empty(t, f.client.AccessToken())
}

func TestLogin_IncompletePayloadNeverPersisted(t *testing.T) {
	f := setupTestFixture(t)
	f.setLoginHandler(func(w http.ResponseWriter, r *http.Request) {
		// token present but no user: must not be stored
		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"token": "T1", "refreshToken": "R1"},
		})
	})

	_, err := f.client.Login(context.Background(), auth.LoginCredentials{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, auth.ErrAuthenticationFailed)

	stored, err := f.store.Get(context.Background())
	require.NoError(t, err)
	require.Nil(t, stored)
	require.Empty(t, f.client.AccessToken())
}

func TestLogin_NoServerResponse(t *testing.T) {
	f := setupTestFixture(t)
	f.server.Close()

	_, err := f.client.Login(context.Background(), auth.LoginCredentials{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, auth.ErrNoServerResponse)
}

func TestLogin_InvalidInput(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("missing email", func(t *testing.T) {
		_, err := f.client.Login(context.Background(), auth.LoginCredentials{Password: testPassword})
		require.ErrorIs(t, err, auth.ErrRequestConfiguration)
	})

	t.Run("bad email format", func(t *testing.T) {
		_, err := f.client.Login(context.Background(), auth.LoginCredentials{Email: "nope", Password: testPassword})
		require.ErrorIs(t, err, auth.ErrRequestConfiguration)
	})

	t.Run("missing password", func(t *testing.T) {
		_, err := f.client.Login(context.Background(), auth.LoginCredentials{Email: testEmail})
		require.ErrorIs(t, err, auth.ErrRequestConfiguration)
	})
}

func TestLogin_StorageFailureSurfaces(t *testing.T) {
	f := setupTestFixture(t)
	f.setLoginHandler(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, sessionResponse("T1", "R1"))
	})
	f.store.Err = errors.New("disk broke")

	_, err := f.client.Login(context.Background(), auth.LoginCredentials{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, auth.ErrStorageUnavailable)
	require.Empty(t, f.client.AccessToken())
}

func TestRegister_SendsFullSchema(t *testing.T) {
	f := setupTestFixture(t)
	f.setLoginHandler(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "Test User", payload["name"])
		require.Equal(t, testEmail, payload["email"])
		require.Equal(t, "Paris", payload["city"])
		require.Equal(t, []interface{}{"sport", "musique"}, payload["interests"])
		writeJSON(t, w, http.StatusOK, sessionResponse("T1", "R1"))
	})

	record, err := f.client.Register(context.Background(), auth.RegisterCredentials{
		Name:      "Test User",
		Email:     testEmail,
		Password:  testPassword,
		City:      "Paris",
		Interests: []string{"sport", "musique"},
	})
	require.NoError(t, err)
	require.Equal(t, "T1", f.client.AccessToken())

	stored, err := f.store.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, record, stored)
}

func TestRegister_RequiresNameAndCity(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.client.Register(context.Background(), auth.RegisterCredentials{
		Email:    testEmail,
		Password: testPassword,
	})
	require.ErrorIs(t, err, auth.ErrRequestConfiguration)
}

func TestLogout_Idempotent(t *testing.T) {
	f := setupTestFixture(t)

	// no session at all
	require.NoError(t, f.client.Logout(context.Background()))

	// and again after a real session existed
	f.seedSession(t, "T1", "R1")
	require.NoError(t, f.client.Logout(context.Background()))
	require.NoError(t, f.client.Logout(context.Background()))

	stored, err := f.store.Get(context.Background())
	require.NoError(t, err)
	require.Nil(t, stored)
	require.Empty(t, f.client.AccessToken())
}

func TestCurrentSession_RestoresToken(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSession(t, "T1", "R1")

	record, err := f.client.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "T1", record.AccessToken)
	require.Equal(t, "T1", f.client.AccessToken())
}

func TestCurrentSession_AbsentIsNotAnError(t *testing.T) {
	f := setupTestFixture(t)

	record, err := f.client.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, record)
}

func TestCurrentSession_StorageFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.store.Err = errors.New("disk broke")

	_, err := f.client.CurrentSession(context.Background())
	require.ErrorIs(t, err, auth.ErrStorageUnavailable)
}

func TestEnsureFreshToken_RotatesSession(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSession(t, "T1", "R1")
	f.setRefreshHandler(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "R1", payload["refreshToken"])
		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"success":      true,
			"token":        "T2",
			"refreshToken": "R2",
		})
	})

	token, err := f.client.EnsureFreshToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "T2", token)
	require.Equal(t, "T2", f.client.AccessToken())

	stored, err := f.store.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "T2", stored.AccessToken)
	require.Equal(t, "R2", stored.RefreshToken)
	require.Equal(t, testUser(), stored.User)
}

func TestEnsureFreshToken_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSession(t, "T1", "R1")
	f.setRefreshHandler(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"success": true,
			"token":   "T2",
		})
	})

	_, err := f.client.EnsureFreshToken(context.Background())
	require.NoError(t, err)

	stored, err := f.store.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "T2", stored.AccessToken)
	require.Equal(t, "R1", stored.RefreshToken)
}

func TestEnsureFreshToken_FailureTearsSessionDown(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSession(t, "T1", "R1")
	require.Equal(t, "T1", mustCurrentToken(t, f))
	f.setRefreshHandler(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]interface{}{"success": false})
	})

	_, err := f.client.EnsureFreshToken(context.Background())
	require.ErrorIs(t, err, auth.ErrSessionExpired)

	stored, getErr := f.store.Get(context.Background())
	require.NoError(t, getErr)
	require.Nil(t, stored)
	require.Empty(t, f.client.AccessToken())
}

func TestEnsureFreshToken_NoStoredSession(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.client.EnsureFreshToken(context.Background())
	require.ErrorIs(t, err, auth.ErrSessionExpired)
	require.Equal(t, int32(0), atomic.LoadInt32(&f.refreshCalls), "refresh endpoint must not be called without a refresh token")
}

func TestEnsureFreshToken_StorageFailureIsNotExpiry(t *testing.T) {
	f := setupTestFixture(t)
	f.store.Err = errors.New("disk broke")

	_, err := f.client.EnsureFreshToken(context.Background())
	require.ErrorIs(t, err, auth.ErrStorageUnavailable)
	require.NotErrorIs(t, err, auth.ErrSessionExpired)
}

func TestEnsureFreshToken_SingleFlight(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSession(t, "T1", "R1")
	f.setRefreshHandler(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond) // hold every caller in the same flight
		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"success":      true,
			"token":        "T2",
			"refreshToken": "R2",
		})
	})

	const callers = 4
	tokens := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = f.client.EnsureFreshToken(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "T2", tokens[i])
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&f.refreshCalls), "concurrent 401s must collapse into one refresh call")
}

func TestEnsureFreshToken_SingleFlightSharedFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSession(t, "T1", "R1")
	f.setRefreshHandler(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		writeJSON(t, w, http.StatusOK, map[string]interface{}{"success": false, "message": "refresh token revoked"})
	})

	const callers = 3
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.client.EnsureFreshToken(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.ErrorIs(t, errs[i], auth.ErrSessionExpired)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&f.refreshCalls))
}

func TestEnsureFreshToken_SlotReleasedBetweenAttempts(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSession(t, "T1", "R1")
	f.setRefreshHandler(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"success": true,
			"token":   "T2",
		})
	})

	_, err := f.client.EnsureFreshToken(context.Background())
	require.NoError(t, err)

	// a later 401 must start a fresh attempt, not reuse the finished slot
	_, err = f.client.EnsureFreshToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&f.refreshCalls))
}

func TestApplyProfile_MergesIntoSnapshot(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSession(t, "T1", "R1")

	err := f.client.ApplyProfile(context.Background(), "1", func(user *sessions.User) {
		user.City = "Lyon"
	})
	require.NoError(t, err)

	stored, err := f.store.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Lyon", stored.User.City)
	require.Equal(t, "T1", stored.AccessToken, "tokens must survive profile updates")
}

func TestApplyProfile_DoesNotClobberConcurrentRefresh(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSession(t, "T1", "R1")
	f.setRefreshHandler(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"success":      true,
			"token":        "T2",
			"refreshToken": "R2",
		})
	})

	applyEntered := make(chan struct{})
	release := make(chan struct{})
	applyDone := make(chan error, 1)
	refreshDone := make(chan error, 1)

	// hold the profile update between its read and its write while a refresh
	// rotates the session underneath
	go func() {
		applyDone <- f.client.ApplyProfile(context.Background(), "1", func(user *sessions.User) {
			close(applyEntered)
			<-release
			user.City = "Lyon"
		})
	}()

	<-applyEntered
	go func() {
		_, err := f.client.EnsureFreshToken(context.Background())
		refreshDone <- err
	}()
	time.Sleep(50 * time.Millisecond) // let the refresh queue up behind the update
	close(release)

	require.NoError(t, <-applyDone)
	require.NoError(t, <-refreshDone)

	stored, err := f.store.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "T2", stored.AccessToken)
	require.Equal(t, "R2", stored.RefreshToken, "rotation must survive an overlapping profile update")
	require.Equal(t, "Lyon", stored.User.City, "profile update must survive an overlapping rotation")
}

func TestApplyProfile_IgnoresOtherUsers(t *testing.T) {
	f := setupTestFixture(t)
	f.seedSession(t, "T1", "R1")

	err := f.client.ApplyProfile(context.Background(), "someone-else", func(user *sessions.User) {
		user.City = "Lyon"
	})
	require.NoError(t, err)

	stored, err := f.store.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Paris", stored.User.City)
}

func mustCurrentToken(t *testing.T, f *testFixture) string {
	t.Helper()
	record, err := f.client.CurrentSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, record)
	return record.AccessToken
}
