package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/foresight/internal/adapters/http/api"
	"github.com/okian/foresight/internal/domain/model"
	"github.com/okian/foresight/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

// Mock dependencies that implement the Dependencies interface.
type mockDependencies struct {
	attestations []model.Attestation
	conditions   []model.Condition
	putErr       error

	score    *types.Score
	scoreErr error

	top    []types.Entry
	topErr error

	rank    types.RankResult
	rankErr error

	started     bool
	backfills   int
	reindexes   int
	lastAddress string
	lastMarket  string
	state       string
}

func (m *mockDependencies) PutAttestation(_ context.Context, a model.Attestation) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.attestations = append(m.attestations, a)
	return nil
}

func (m *mockDependencies) PutCondition(_ context.Context, c model.Condition) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.conditions = append(m.conditions, c)
	return nil
}

func (m *mockDependencies) ForecasterScore(_ context.Context, _ string) (*types.Score, error) {
	return m.score, m.scoreErr
}

func (m *mockDependencies) TopForecasters(_ context.Context, limit int) ([]types.Entry, error) {
	if m.topErr != nil {
		return nil, m.topErr
	}
	if limit > len(m.top) {
		return m.top, nil
	}
	return m.top[:limit], nil
}

func (m *mockDependencies) AccuracyRank(_ context.Context, attester string) (types.RankResult, error) {
	if m.rankErr != nil {
		return types.RankResult{}, m.rankErr
	}
	result := m.rank
	result.Attester = attester
	return result, nil
}

func (m *mockDependencies) StartBackfill(_ context.Context) (string, bool) {
	if !m.started {
		return "", false
	}
	m.backfills++
	return "run-backfill", true
}

func (m *mockDependencies) StartReindex(_ context.Context, attester, marketID string) (string, bool) {
	if !m.started {
		return "", false
	}
	m.reindexes++
	m.lastAddress = attester
	m.lastMarket = marketID
	return "run-reindex", true
}

func (m *mockDependencies) State(_ context.Context) string {
	if m.state == "" {
		return "idle"
	}
	return m.state
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type runResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id"`
}

func newTestMux(deps *mockDependencies) *http.ServeMux {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"state": "idle"}}, 100)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux, nil)
	return mux
}

func TestServer_Register(t *testing.T) {
	Convey("Given a new API server", t, func() {
		deps := &mockDependencies{started: true}
		mux := newTestMux(deps)

		Convey("When registering routes", func() {
			Convey("Then health endpoint should be accessible", func() {
				req := httptest.NewRequest("GET", "/healthz", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And stats endpoint should be accessible", func() {
				req := httptest.NewRequest("GET", "/stats", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And attestations endpoint rejects an empty body", func() {
				req := httptest.NewRequest("POST", "/attestations", strings.NewReader(`{}`))
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("And leaderboard endpoint should be accessible", func() {
				req := httptest.NewRequest("GET", "/leaderboard?limit=10", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And rank endpoint should be accessible", func() {
				req := httptest.NewRequest("GET", "/rank/0xabc", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And root endpoint should catch everything else", func() {
				req := httptest.NewRequest("GET", "/unknown", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestIngestHandler(t *testing.T) {
	Convey("Given an ingest handler", t, func() {
		deps := &mockDependencies{started: true}
		handler := api.NewIngestHandler(deps)

		Convey("When handling a valid attestation", func() {
			body := `{
				"id": "att-1",
				"attester": "0x00000000000000000000000000000000000000bb",
				"condition_id": "cond-1",
				"resolver": "0x00000000000000000000000000000000000000aa",
				"prediction": "0.75",
				"time": 1700000000
			}`
			req := httptest.NewRequest("POST", "/attestations", strings.NewReader(body))
			w := httptest.NewRecorder()

			Convey("Then it should accept and store it", func() {
				handler.HandlePostAttestation(w, req)
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(len(deps.attestations), ShouldEqual, 1)
				So(deps.attestations[0].Prediction, ShouldEqual, "0.75")
			})
		})

		Convey("When handling an attestation with missing fields", func() {
			body := `{"id": "att-1"}`
			req := httptest.NewRequest("POST", "/attestations", strings.NewReader(body))
			w := httptest.NewRecorder()

			Convey("Then it should return bad request", func() {
				handler.HandlePostAttestation(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When handling invalid JSON", func() {
			req := httptest.NewRequest("POST", "/attestations", strings.NewReader(`{invalid`))
			w := httptest.NewRecorder()

			Convey("Then it should return bad request", func() {
				handler.HandlePostAttestation(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When handling a valid condition", func() {
			body := `{
				"id": "cond-1",
				"end_time": 1700000100,
				"settled": true,
				"resolved_to_yes": true,
				"resolver": "0x00000000000000000000000000000000000000aa"
			}`
			req := httptest.NewRequest("POST", "/conditions", strings.NewReader(body))
			w := httptest.NewRecorder()

			Convey("Then it should accept and store it", func() {
				handler.HandlePostCondition(w, req)
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(len(deps.conditions), ShouldEqual, 1)
				So(deps.conditions[0].Settled, ShouldBeTrue)
				So(deps.conditions[0].EndTime, ShouldNotBeNil)
				So(*deps.conditions[0].EndTime, ShouldEqual, 1700000100)
			})
		})

		Convey("When handling a condition without a resolver", func() {
			body := `{"id": "cond-1"}`
			req := httptest.NewRequest("POST", "/conditions", strings.NewReader(body))
			w := httptest.NewRecorder()

			Convey("Then it should return bad request", func() {
				handler.HandlePostCondition(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When handling a non-POST request", func() {
			req := httptest.NewRequest("GET", "/attestations", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return not found status", func() {
				handler.HandlePostAttestation(w, req)
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestScoreHandler_HandleGetScore(t *testing.T) {
	Convey("Given a score handler", t, func() {
		deps := &mockDependencies{
			score: &types.Score{
				Attester:      "0xabc",
				AccuracyScore: 100,
				MeanTwError:   0.01,
				Markets:       3,
			},
		}
		handler := api.NewScoreHandler(deps)

		Convey("When requesting the score of a scored forecaster", func() {
			req := httptest.NewRequest("GET", "/score/0xabc", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return the score", func() {
				handler.HandleGetScore(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response types.Score
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.AccuracyScore, ShouldEqual, 100)
				So(response.Markets, ShouldEqual, 3)
			})
		})

		Convey("When the forecaster has no scored markets", func() {
			deps.score = nil
			req := httptest.NewRequest("GET", "/score/0xdef", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return not found", func() {
				handler.HandleGetScore(w, req)
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the path carries no attester", func() {
			req := httptest.NewRequest("GET", "/score/", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return bad request", func() {
				handler.HandleGetScore(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the read fails", func() {
			deps.scoreErr = fmt.Errorf("store error")
			req := httptest.NewRequest("GET", "/score/0xabc", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return internal server error", func() {
				handler.HandleGetScore(w, req)
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestLeaderboardHandler_HandleGetLeaderboard(t *testing.T) {
	Convey("Given a leaderboard handler", t, func() {
		deps := &mockDependencies{
			top: []types.Entry{
				{Rank: 1, Attester: "0xa1", AccuracyScore: 100.0},
				{Rank: 2, Attester: "0xa2", AccuracyScore: 95.0},
				{Rank: 3, Attester: "0xa3", AccuracyScore: 90.0},
			},
		}
		handler := api.NewLeaderboardHandler(deps, 100)

		Convey("When requesting top N entries", func() {
			req := httptest.NewRequest("GET", "/leaderboard?limit=2", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return the top N entries", func() {
				handler.HandleGetLeaderboard(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response []types.Entry
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(len(response), ShouldEqual, 2)
				So(response[0].Attester, ShouldEqual, "0xa1")
				So(response[1].Attester, ShouldEqual, "0xa2")
			})
		})

		Convey("When no limit is specified", func() {
			req := httptest.NewRequest("GET", "/leaderboard", nil)
			w := httptest.NewRecorder()

			handler.HandleGetLeaderboard(w, req)

			Convey("Then it should return 400 Bad Request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the limit exceeds the cap", func() {
			req := httptest.NewRequest("GET", "/leaderboard?limit=5000", nil)
			w := httptest.NewRecorder()

			handler.HandleGetLeaderboard(w, req)

			Convey("Then it should return 400 with limit_exceeded", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)

				var response errorResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Code, ShouldEqual, "limit_exceeded")
			})
		})

		Convey("When the leaderboard returns an error", func() {
			deps.topErr = fmt.Errorf("store error")
			req := httptest.NewRequest("GET", "/leaderboard?limit=10", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return internal server error", func() {
				handler.HandleGetLeaderboard(w, req)
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestRankHandler_HandleGetRank(t *testing.T) {
	Convey("Given a rank handler", t, func() {
		rank := 5
		score := 85.0
		deps := &mockDependencies{
			rank: types.RankResult{Rank: &rank, AccuracyScore: &score, TotalForecasters: 40},
		}
		handler := api.NewRankHandler(deps)

		Convey("When requesting the rank of a scored forecaster", func() {
			req := httptest.NewRequest("GET", "/rank/0xabc", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return the rank information", func() {
				handler.HandleGetRank(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")

				var response types.RankResult
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Attester, ShouldEqual, "0xabc")
				So(*response.Rank, ShouldEqual, 5)
				So(*response.AccuracyScore, ShouldEqual, 85.0)
				So(response.TotalForecasters, ShouldEqual, 40)
			})
		})

		Convey("When the forecaster is unranked", func() {
			deps.rank = types.RankResult{TotalForecasters: 40}
			req := httptest.NewRequest("GET", "/rank/0xnew", nil)
			w := httptest.NewRecorder()

			Convey("Then it should still return 200 with null rank", func() {
				handler.HandleGetRank(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response types.RankResult
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Rank, ShouldBeNil)
				So(response.AccuracyScore, ShouldBeNil)
				So(response.TotalForecasters, ShouldEqual, 40)
			})
		})

		Convey("When the path carries no attester", func() {
			req := httptest.NewRequest("GET", "/rank/", nil)
			w := httptest.NewRecorder()

			handler.HandleGetRank(w, req)

			Convey("Then it should return bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the read fails", func() {
			deps.rankErr = fmt.Errorf("store error")
			req := httptest.NewRequest("GET", "/rank/0xabc", nil)
			w := httptest.NewRecorder()

			handler.HandleGetRank(w, req)

			Convey("Then it should return internal server error", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestReindexHandler(t *testing.T) {
	Convey("Given a reindex handler", t, func() {
		deps := &mockDependencies{started: true}
		handler := api.NewReindexHandler(deps)

		Convey("When triggering a targeted reindex", func() {
			body := `{"address": "0xabc", "market_id": "cond-1"}`
			req := httptest.NewRequest("POST", "/reindex", strings.NewReader(body))
			w := httptest.NewRecorder()

			Convey("Then it should accept and report the run id", func() {
				handler.HandlePostReindex(w, req)
				So(w.Code, ShouldEqual, http.StatusAccepted)

				var response runResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Status, ShouldEqual, "accepted")
				So(response.RunID, ShouldEqual, "run-reindex")
				So(deps.lastAddress, ShouldEqual, "0xabc")
				So(deps.lastMarket, ShouldEqual, "cond-1")
			})
		})

		Convey("When triggering a reindex with an empty body", func() {
			req := httptest.NewRequest("POST", "/reindex", strings.NewReader(""))
			w := httptest.NewRecorder()

			Convey("Then it should accept a full run", func() {
				handler.HandlePostReindex(w, req)
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(deps.reindexes, ShouldEqual, 1)
			})
		})

		Convey("When triggering a backfill", func() {
			req := httptest.NewRequest("POST", "/backfill", nil)
			w := httptest.NewRecorder()

			Convey("Then it should accept and report the run id", func() {
				handler.HandlePostBackfill(w, req)
				So(w.Code, ShouldEqual, http.StatusAccepted)

				var response runResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.RunID, ShouldEqual, "run-backfill")
			})
		})

		Convey("When the service is not started", func() {
			deps.started = false
			req := httptest.NewRequest("POST", "/backfill", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return service unavailable", func() {
				handler.HandlePostBackfill(w, req)
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})

		Convey("When the body is malformed", func() {
			req := httptest.NewRequest("POST", "/reindex", strings.NewReader(`{broken`))
			w := httptest.NewRecorder()

			Convey("Then it should return bad request", func() {
				handler.HandlePostReindex(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	Convey("Given a rate-limited trigger route", t, func() {
		deps := &mockDependencies{started: true}
		handler := api.NewReindexHandler(deps)
		limited := api.RateLimitMiddleware(handler.HandlePostBackfill, api.NewTriggerLimiter(1, 1))

		Convey("When the burst is exhausted", func() {
			req1 := httptest.NewRequest("POST", "/backfill", nil)
			w1 := httptest.NewRecorder()
			limited(w1, req1)

			req2 := httptest.NewRequest("POST", "/backfill", nil)
			w2 := httptest.NewRecorder()
			limited(w2, req2)

			Convey("Then the second request is throttled", func() {
				So(w1.Code, ShouldEqual, http.StatusAccepted)
				So(w2.Code, ShouldEqual, http.StatusTooManyRequests)

				var response errorResponse
				err := json.NewDecoder(w2.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Code, ShouldEqual, "rate_limited")
			})
		})
	})
}

func TestHealthHandler_HandleHealth(t *testing.T) {
	Convey("Given a health handler", t, func() {
		handler := api.NewHealthHandler()

		Convey("When handling health check request", func() {
			req := httptest.NewRequest("GET", "/healthz", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return OK status", func() {
				handler.HandleHealth(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestStatsHandler_HandleStats(t *testing.T) {
	Convey("Given a stats handler", t, func() {
		mockStats := &mockStatsProvider{
			stats: map[string]interface{}{
				"state":        "idle",
				"attestations": 1000,
			},
		}
		handler := api.NewStatsHandler(mockStats)

		Convey("When handling stats request", func() {
			req := httptest.NewRequest("GET", "/stats", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return stats", func() {
				handler.HandleStats(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response map[string]interface{}
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response["state"], ShouldEqual, "idle")
				So(response["attestations"], ShouldEqual, 1000)
			})
		})
	})
}
