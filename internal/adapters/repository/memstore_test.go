package repository_test

import (
	"context"
	"fmt"
	"testing"

	repository "github.com/okian/foresight/internal/adapters/repository"
	"github.com/okian/foresight/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func floatPtr(f float64) *float64 { return &f }
func strPtr(s string) *string     { return &s }

func TestMemStore_AttestationPagination(t *testing.T) {
	Convey("Given a store seeded with attestations out of id order", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore(ctx)

		for _, id := range []string{"a-03", "a-01", "a-05", "a-02", "a-04"} {
			So(store.PutAttestation(ctx, model.Attestation{ID: id, ConditionID: "c-1"}), ShouldBeNil)
		}

		Convey("When paging with a cursor", func() {
			first, err := store.AttestationsAfter(ctx, "", 2)
			So(err, ShouldBeNil)

			Convey("Then pages come back in ascending id order without overlap", func() {
				So(len(first), ShouldEqual, 2)
				So(first[0].ID, ShouldEqual, "a-01")
				So(first[1].ID, ShouldEqual, "a-02")

				second, err := store.AttestationsAfter(ctx, first[1].ID, 2)
				So(err, ShouldBeNil)
				So(second[0].ID, ShouldEqual, "a-03")
				So(second[1].ID, ShouldEqual, "a-04")

				third, err := store.AttestationsAfter(ctx, second[1].ID, 2)
				So(err, ShouldBeNil)
				So(len(third), ShouldEqual, 1)
				So(third[0].ID, ShouldEqual, "a-05")

				fourth, err := store.AttestationsAfter(ctx, third[0].ID, 2)
				So(err, ShouldBeNil)
				So(fourth, ShouldBeEmpty)
			})

			Convey("And a non-positive limit is rejected", func() {
				_, err := store.AttestationsAfter(ctx, "", 0)
				So(err, ShouldEqual, repository.ErrInvalidLimit)
			})
		})

		Convey("When looking up a missing attestation", func() {
			_, err := store.Attestation(ctx, "a-99")

			Convey("Then ErrNotFound is returned", func() {
				So(err, ShouldEqual, repository.ErrNotFound)
			})
		})
	})
}

func TestMemStore_UpsertScoreFieldSets(t *testing.T) {
	Convey("Given a derived row that has already been scored", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore(ctx)

		seed := model.AttestationScore{
			AttestationID:    "a-1",
			Attester:         "0xaaa",
			MarketAddress:    "0xmarket",
			MarketID:         "c-1",
			MadeAt:           100,
			ProbabilityFloat: floatPtr(0.4),
			ProbabilityD18:   strPtr("400000000000000000"),
		}
		So(store.UpsertScore(ctx, seed), ShouldBeNil)
		So(store.SetScoreResult(ctx, "a-1", 0.36, 1, 5000), ShouldBeNil)

		Convey("When the row is upserted again with a fresh probability", func() {
			refreshed := seed
			refreshed.ProbabilityFloat = floatPtr(0.9)
			refreshed.ProbabilityD18 = strPtr("900000000000000000")
			So(store.UpsertScore(ctx, refreshed), ShouldBeNil)

			Convey("Then probability fields refresh and scoring state survives", func() {
				row, err := store.Score(ctx, "a-1")
				So(err, ShouldBeNil)
				So(*row.ProbabilityFloat, ShouldEqual, 0.9)
				So(*row.ProbabilityD18, ShouldEqual, "900000000000000000")
				So(row.ErrorSquared, ShouldNotBeNil)
				So(*row.ErrorSquared, ShouldEqual, 0.36)
				So(*row.Outcome, ShouldEqual, 1)
				So(*row.ScoredAt, ShouldEqual, 5000)
			})
		})

		Convey("When the market's results are cleared", func() {
			So(store.ClearScoreResults(ctx, "0xmarket", "c-1"), ShouldBeNil)

			Convey("Then the scoring fields are nulled together", func() {
				row, err := store.Score(ctx, "a-1")
				So(err, ShouldBeNil)
				So(row.ErrorSquared, ShouldBeNil)
				So(row.Outcome, ShouldBeNil)
				So(row.ScoredAt, ShouldBeNil)
				So(row.ProbabilityFloat, ShouldNotBeNil)
			})
		})

		Convey("When a returned row is mutated by the caller", func() {
			row, err := store.Score(ctx, "a-1")
			So(err, ShouldBeNil)
			*row.ProbabilityFloat = 0.99

			Convey("Then store memory is unaffected", func() {
				again, err := store.Score(ctx, "a-1")
				So(err, ShouldBeNil)
				So(*again.ProbabilityFloat, ShouldEqual, 0.4)
			})
		})
	})
}

func TestMemStore_MarketQueriesAndAggregates(t *testing.T) {
	Convey("Given rows across two markets and two attesters", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore(ctx)

		put := func(id, attester, market string, madeAt int64) {
			So(store.UpsertScore(ctx, model.AttestationScore{
				AttestationID:    id,
				Attester:         attester,
				MarketAddress:    "0xm",
				MarketID:         market,
				MadeAt:           madeAt,
				ProbabilityFloat: floatPtr(0.5),
				ProbabilityD18:   strPtr("500000000000000000"),
			}), ShouldBeNil)
		}
		put("a-1", "0xaaa", "c-1", 300)
		put("a-2", "0xaaa", "c-1", 100)
		put("a-3", "0xbbb", "c-1", 200)
		put("a-4", "0xaaa", "c-2", 150)

		Convey("Then market listings sort ascending by MadeAt", func() {
			rows, err := store.ScoresByMarket(ctx, "0xm", "c-1")
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 3)
			So(rows[0].AttestationID, ShouldEqual, "a-2")
			So(rows[1].AttestationID, ShouldEqual, "a-3")
			So(rows[2].AttestationID, ShouldEqual, "a-1")
		})

		Convey("Then attester-scoped listings filter correctly", func() {
			rows, err := store.ScoresByMarketAttester(ctx, "0xm", "c-1", "0xaaa")
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 2)
			So(rows[0].AttestationID, ShouldEqual, "a-2")
		})

		Convey("Then distinct market ids are reported per attester", func() {
			ids, err := store.MarketIDsByAttester(ctx, "0xaaa")
			So(err, ShouldBeNil)
			So(ids, ShouldResemble, []string{"c-1", "c-2"})
		})

		Convey("When tw-error aggregates are written", func() {
			for i, attester := range []string{"0xaaa", "0xbbb"} {
				So(store.UpsertTwError(ctx, model.AttesterMarketTwError{
					Attester:      attester,
					MarketAddress: "0xm",
					MarketID:      "c-1",
					TwError:       float64(i+1) * 0.01,
				}), ShouldBeNil)
			}

			Convey("Then groups and counts reflect them", func() {
				groups, err := store.TwErrorGroups(ctx)
				So(err, ShouldBeNil)
				So(len(groups), ShouldEqual, 2)
				So(groups["0xaaa"], ShouldResemble, []float64{0.01})
				So(store.CountForecasters(ctx), ShouldEqual, 2)
			})

			Convey("Then deleting one aggregate leaves the rest", func() {
				So(store.DeleteTwError(ctx, "0xaaa", "0xm", "c-1"), ShouldBeNil)
				rows, err := store.TwErrorsByAttester(ctx, "0xaaa")
				So(err, ShouldBeNil)
				So(rows, ShouldBeEmpty)
				So(store.CountForecasters(ctx), ShouldEqual, 1)
			})
		})
	})
}

func TestMemStore_SettledConditions(t *testing.T) {
	Convey("Given a mix of settled and unsettled conditions", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore(ctx)

		end := int64(1000)
		for i := 0; i < 4; i++ {
			So(store.PutCondition(ctx, model.Condition{
				ID:      fmt.Sprintf("c-%d", i),
				EndTime: &end,
				Settled: i%2 == 0,
			}), ShouldBeNil)
		}

		Convey("Then only settled ones are listed, in id order", func() {
			conds, err := store.SettledConditions(ctx)
			So(err, ShouldBeNil)
			So(len(conds), ShouldEqual, 2)
			So(conds[0].ID, ShouldEqual, "c-0")
			So(conds[1].ID, ShouldEqual, "c-2")
		})
	})
}
