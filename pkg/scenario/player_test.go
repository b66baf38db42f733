// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/apiscenario/internal/auth"
	"github.com/tombee/apiscenario/internal/secrets"
	"github.com/tombee/apiscenario/internal/variables"
	apierrors "github.com/tombee/apiscenario/pkg/errors"
	"github.com/tombee/apiscenario/pkg/spec"
)

const createCaseSpec = `
specs: [to create a case]
productName: Case Service
operationName: Create Case
method: POST
uri: /cases
request:
  body:
    state: Open
users:
  invokingUser:
    username: "${CW_USER}"
    password: "${CW_PASS}"
expectedResponse:
  responseCode: 201
  body:
    id: "[[ANYTHING_PRESENT]]"
    state: Open
`

const getCaseSpec = `
specs: [to retrieve a case, contains the case]
productName: Case Service
operationName: Get Case
method: GET
uri: /cases/{id}
request:
  pathVariables:
    id: '${{ .children["to create a case"].response.body.id }}'
users:
  invokingUser:
    username: "${CW_USER}"
    password: "${CW_PASS}"
expectedResponse:
  responseCode: 200
  headers:
    Content-Type: application/json
  body:
    id: '{{ .self.response.body.id }}'
    state: Open
`

const missingCaseSpec = `
specs: [to retrieve a case]
productName: Case Service
operationName: Get Case
method: GET
uri: /cases/{id}
request:
  pathVariables:
    id: NOPE
users:
  invokingUser:
    username: "${CW_USER}"
    password: "${CW_PASS}"
expectedResponse:
  responseCode: 200
`

const auditSpec = `
specs: [to read the audit log]
productName: Case Service
operationName: Get Audit
method: GET
uri: /audit
users:
  invokingUser:
    username: "${CW_USER}"
    password: "${CW_PASS}"
expectedResponse:
  headers:
    Content-Type: application/json
`

// caseService is a minimal target API: POST /cases creates C-7 and
// GET /cases/{id} returns it.
type caseService struct {
	calls         atomic.Int32
	authorization atomic.Value
}

func (s *caseService) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			s.calls.Add(1)
			s.authorization.Store(req.Header.Get("Authorization"))
			next.ServeHTTP(w, req)
		})
	})
	r.Post("/cases", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(req.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "C-7", "state": body["state"]})
	})
	r.Get("/cases/{id}", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if chi.URLParam(req, "id") != "C-7" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"case not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"C-7","state":"Open"}`))
	})
	r.Get("/audit", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"audit store down"}`))
	})
	return r
}

type fixture struct {
	service *caseService
	server  *httptest.Server
	player  *Player
	logs    *bytes.Buffer
	sink    *Recorder
}

func newFixture(t *testing.T, specs map[string]string) *fixture {
	t.Helper()
	svc := &caseService{}
	srv := httptest.NewServer(svc.handler())
	t.Cleanup(srv.Close)

	source := spec.MemorySource{}
	for id, doc := range specs {
		source[id] = mustParseSpec(t, id, doc)
	}

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p := NewPlayer(source, srv.URL, logger)
	p.Client = srv.Client()
	p.Variables = variables.NewResolver(variables.WithBackend(secrets.NewMapEnvBackend(map[string]string{
		"CW_USER": "caseworker@example.com",
		"CW_PASS": "hunter22",
	})))
	return &fixture{service: svc, server: srv, player: p, logs: logs, sink: &Recorder{}}
}

func TestRun_WithDependentCall(t *testing.T) {
	f := newFixture(t, map[string]string{
		"Create_Case": createCaseSpec,
		"Get_Case":    getCaseSpec,
	})
	sc := &Scenario{
		Name:          "retrieve a created case",
		Tag:           "S-101",
		Specification: "Get_Case",
		Calls:         []Call{{Spec: "to create a case", ID: "Create_Case"}},
		Specs: Specs{
			Request:  []string{"to retrieve a case"},
			Response: []string{"contains the case"},
		},
		Outcome: ExpectPositive,
	}

	root, err := f.player.Run(context.Background(), sc, f.sink)
	require.NoError(t, err)

	assert.Equal(t, Verified, root.State)
	require.Len(t, root.Children(), 1)
	assert.Equal(t, Verified, root.Children()[0].State)
	assert.Equal(t, int32(2), f.service.calls.Load())
	assert.Equal(t, f.server.URL+"/cases/C-7", root.Request.URL)
	assert.Equal(t, "caseworker@example.com", root.InvokingUser.Username)

	narration := f.sink.String()
	assert.Contains(t, narration, "Test data [Get_Case] loaded")
	assert.Contains(t, narration, "Test data [Create_Case] loaded")
	assert.Less(t, strings.Index(narration, "Test data [Get_Case] loaded"),
		strings.Index(narration, "Test data [Create_Case] loaded"))
	assert.Contains(t, narration, "Called: POST "+f.server.URL+"/cases")
	assert.Contains(t, narration, "Called: GET "+f.server.URL+"/cases/C-7")
	assert.Contains(t, narration, "User being specified: caseworker@example.com")
	assert.Contains(t, narration, "Response code: 200")
	assert.NotContains(t, narration, "hunter22")

	logs := f.logs.String()
	assert.Contains(t, logs, "S-101: Test data was loaded successfully")
	assert.Contains(t, logs, "S-101: users.invokingUser [caseworker@example.com] authenticated.")
}

// Test data without a responseCode places no expectation on the code, so
// only an explicit outcome catches a server error.
func TestRun_AbsentResponseCodeAcceptsAnyStatus(t *testing.T) {
	f := newFixture(t, map[string]string{"Get_Audit": auditSpec})

	root, err := f.player.Run(context.Background(), &Scenario{Name: "audit", Specification: "Get_Audit"}, f.sink)
	require.NoError(t, err)
	assert.Equal(t, Verified, root.State)
	assert.Equal(t, http.StatusInternalServerError, root.Response.ResponseCode)
	assert.NotContains(t, f.sink.String(), "Response code mismatch")

	f = newFixture(t, map[string]string{"Get_Audit": auditSpec})
	root, err = f.player.Run(context.Background(),
		&Scenario{Name: "audit", Specification: "Get_Audit", Outcome: ExpectPositive}, f.sink)
	require.Error(t, err)
	assert.Equal(t, Failed, root.State)
}

func TestRun_ResponseCodeMismatch(t *testing.T) {
	f := newFixture(t, map[string]string{"Get_Missing": missingCaseSpec})
	sc := &Scenario{Name: "missing case", Specification: "Get_Missing"}

	root, err := f.player.Run(context.Background(), sc, f.sink)
	require.Error(t, err)

	var vf *apierrors.VerificationFailure
	require.ErrorAs(t, err, &vf)
	assert.Contains(t, vf.Message, VerificationHeader)
	assert.Contains(t, vf.Message, "Response code mismatch, expected: 200, actual: 404")
	assert.Equal(t, Failed, root.State)
	assert.Same(t, err, root.Err)
	assert.Contains(t, f.sink.String(), "Response code mismatch")
}

func TestRun_ResponseClass(t *testing.T) {
	f := newFixture(t, map[string]string{"Get_Missing": missingCaseSpec})

	t.Run("positive", func(t *testing.T) {
		sc := &Scenario{Name: "p", Specification: "Get_Missing", Outcome: ExpectPositive}
		_, err := f.player.Run(context.Background(), sc, nil)
		require.Error(t, err)
		assert.Equal(t, "Response code '404' is not a success code.", err.Error())
	})

	t.Run("negative", func(t *testing.T) {
		sc := &Scenario{Name: "n", Specification: "Get_Missing", Outcome: ExpectNegative}
		_, err := f.player.Run(context.Background(), sc, nil)
		// The class check passes; the detailed comparison still wants 200.
		var vf *apierrors.VerificationFailure
		require.ErrorAs(t, err, &vf)
		assert.NotContains(t, vf.Message, "unexpectedly a success code")
	})
}

func TestRun_DataNotFound(t *testing.T) {
	f := newFixture(t, nil)
	root, err := f.player.Run(context.Background(), &Scenario{Name: "x", Specification: "Nope"}, nil)

	var nf *apierrors.DataNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Nope", nf.ID)
	assert.Equal(t, Failed, root.State)
	assert.Contains(t, f.logs.String(), "Test data was not found")
}

func TestRun_FailedCallFailsParent(t *testing.T) {
	f := newFixture(t, map[string]string{"Get_Case": getCaseSpec})
	sc := &Scenario{
		Name:          "broken dependency",
		Specification: "Get_Case",
		Calls:         []Call{{Spec: "to create a case", ID: "Missing_Create"}},
	}

	root, err := f.player.Run(context.Background(), sc, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call [to create a case] as in [Missing_Create]")
	assert.Equal(t, Failed, root.State)
	assert.Empty(t, root.Children(), "a call whose data did not load is not attached")
	assert.Equal(t, int32(0), f.service.calls.Load())
}

func TestRun_UnconfirmedSpec(t *testing.T) {
	f := newFixture(t, map[string]string{"Get_Missing": missingCaseSpec})
	sc := &Scenario{
		Name:          "x",
		Specification: "Get_Missing",
		Specs:         Specs{Request: []string{"to delete a case"}},
	}

	_, err := f.player.Run(context.Background(), sc, nil)
	var us *apierrors.UnconfirmedDataSpecError
	require.ErrorAs(t, err, &us)
	assert.Equal(t, "to delete a case", us.Spec)
}

type blockAll struct{}

func (blockAll) Blocked(tags []string) (string, bool) {
	for _, tag := range tags {
		if strings.HasPrefix(tag, "FeatureToggle(") {
			return strings.TrimSuffix(strings.TrimPrefix(tag, "FeatureToggle("), ")"), true
		}
	}
	return "", false
}

func TestRun_SkippedByGate(t *testing.T) {
	f := newFixture(t, map[string]string{"Get_Missing": missingCaseSpec})
	f.player.Gate = blockAll{}
	sc := &Scenario{Name: "gated", Specification: "Get_Missing", Tags: []string{"FeatureToggle(ccd.get)"}}

	root, err := f.player.Run(context.Background(), sc, f.sink)
	require.Error(t, err)
	assert.True(t, IsSkipped(err))
	assert.Equal(t, Skipped, root.State)
	assert.Equal(t, int32(0), f.service.calls.Load())
	assert.Contains(t, f.sink.String(), "ccd.get")
}

func TestVerifyUser_LiteralCredentialsWarn(t *testing.T) {
	f := newFixture(t, map[string]string{"Literal": `
specs: [as a solicitor]
method: GET
uri: /cases/C-7
users:
  invokingUser:
    username: solicitor@example.com
    password: letmein
expectedResponse:
  responseCode: 200
`})
	c := NewContext("literal")
	c.Tag = "S-2"
	require.NoError(t, f.player.InitializeTestData(context.Background(), c, "Literal"))
	require.NoError(t, f.player.VerifyUser(context.Background(), c, "as a solicitor"))

	logs := f.logs.String()
	assert.Contains(t, logs, "Expected environment variable declaration for users.invokingUser.username but found 'solicitor@example.com'")
	assert.Contains(t, logs, "users.invokingUser.password but found a literal value")
	assert.NotContains(t, logs, "letmein")

	// A second user step beyond the declared users is only logged.
	require.NoError(t, f.player.VerifyUser(context.Background(), c, "as a solicitor"))
	assert.Contains(t, f.logs.String(), "will not be verified with authentication as it is not listed in test data.")
}

type rejectingAdapter struct{}

func (rejectingAdapter) Authenticate(context.Context, *spec.User) (*auth.Session, error) {
	return nil, errors.New("invalid_grant")
}

func TestVerifyAllUsers_AuthenticationFailure(t *testing.T) {
	f := newFixture(t, map[string]string{"Get_Missing": missingCaseSpec})
	f.player.Auth = rejectingAdapter{}

	root, err := f.player.Run(context.Background(), &Scenario{Name: "x", Tag: "S-3", Specification: "Get_Missing"}, nil)
	var ae *apierrors.AuthenticationError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "caseworker@example.com", ae.Username)
	assert.Equal(t, "S-3: users.invokingUser", ae.Prefix)
	assert.Equal(t, Failed, root.State)
	assert.Nil(t, root.Request)
}

func TestSubmit_AttachesSessionToken(t *testing.T) {
	f := newFixture(t, map[string]string{"Get_Case": getCaseSpec, "Create_Case": createCaseSpec})
	jwtAdapter, err := auth.NewJWTAdapter([]byte("0123456789abcdef0123456789abcdef"), "apiscenario-test", 0)
	require.NoError(t, err)
	f.player.Auth = jwtAdapter

	root, err := f.player.Run(context.Background(), &Scenario{Name: "create", Specification: "Create_Case"}, f.sink)
	require.NoError(t, err)
	require.NotNil(t, root.Session)

	header, _ := f.service.authorization.Load().(string)
	require.True(t, strings.HasPrefix(header, "Bearer "))
	claims, err := jwtAdapter.Verify(strings.TrimPrefix(header, "Bearer "))
	require.NoError(t, err)
	assert.Equal(t, "caseworker@example.com", claims.Subject)
	assert.NotContains(t, f.sink.String(), root.Session.AccessToken)
}

func TestSubmit_UnconfirmedOperation(t *testing.T) {
	f := newFixture(t, map[string]string{"Get_Missing": missingCaseSpec})
	c := NewContext("x")
	require.NoError(t, f.player.InitializeTestData(context.Background(), c, "Get_Missing"))

	err := f.player.Submit(context.Background(), c, "Delete Case", "Case Service")
	var uc *apierrors.UnconfirmedAPICallError
	require.ErrorAs(t, err, &uc)
	assert.Equal(t, "Delete Case", uc.Operation)
}
