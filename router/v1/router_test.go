package v1_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/cosmos/cosmos-sdk/telemetry"

	"github.com/Nolus-Protocol/oracle-price-feeder/internal/environment"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/task"
	v1 "github.com/Nolus-Protocol/oracle-price-feeder/router/v1"
)

type mockSigner struct{ age time.Duration }

func (m mockSigner) SequenceAge() time.Duration { return m.age }

type mockSupervisor struct{ states map[string]task.State }

func (m mockSupervisor) TaskStates() map[string]task.State { return m.states }

type mockMetrics struct{}

func (mockMetrics) Gather(format string) (telemetry.GatherResponse, error) {
	return telemetry.GatherResponse{ContentType: "text/plain", Metrics: []byte("# empty\n")}, nil
}

type RouterTestSuite struct {
	suite.Suite

	mux *mux.Router
}

func (rts *RouterTestSuite) SetupSuite() {
	m := mux.NewRouter()
	cfg := environment.ServerConfig{}

	r := v1.New(
		zerolog.Nop(),
		cfg,
		mockSigner{age: 5 * time.Second},
		mockSupervisor{states: map[string]task.State{"feeder-osmosis": task.StateRunning}},
		mockMetrics{},
	)
	r.RegisterRoutes(m, "")

	rts.mux = m
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}

func (rts *RouterTestSuite) executeRequest(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	rts.mux.ServeHTTP(rr, req)

	return rr
}

func (rts *RouterTestSuite) TestHealthz() {
	req, err := http.NewRequest("GET", "/healthz", nil)
	rts.Require().NoError(err)

	response := rts.executeRequest(req)
	rts.Require().Equal(http.StatusOK, response.Code)

	var respBody v1.HealthZResponse
	rts.Require().NoError(json.Unmarshal(response.Body.Bytes(), &respBody))
	rts.Require().Equal(v1.StatusAvailable, respBody.Status)
	rts.Require().Equal(int64(5000), respBody.SignerSequenceAgeMS)
	rts.Require().Equal("running", respBody.Tasks["feeder-osmosis"])
}

func (rts *RouterTestSuite) TestMetrics() {
	req, err := http.NewRequest("GET", "/metrics", nil)
	rts.Require().NoError(err)

	response := rts.executeRequest(req)
	rts.Require().Equal(http.StatusOK, response.Code)
	rts.Require().Equal("# empty\n", response.Body.String())
}
