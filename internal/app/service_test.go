package service_test

import (
	"context"
	"testing"

	"github.com/maxaitel/overwatch-server-discord-bot/internal/adapters/repository"
	app "github.com/maxaitel/overwatch-server-discord-bot/internal/app"
	"github.com/maxaitel/overwatch-server-discord-bot/internal/domain/model"
	"github.com/maxaitel/overwatch-server-discord-bot/internal/domain/rating"
	"github.com/maxaitel/overwatch-server-discord-bot/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

// settledRating disables calibration so equal 2500s swing exactly +/-12
// at the default K of 24.
func settledRating() rating.Config {
	return rating.New(rating.WithCalibration(0, 2.0))
}

func startedService(ctx context.Context, opts ...app.Option) *app.Service {
	svc := app.New(opts...)
	So(svc.Start(ctx), ShouldBeNil)
	return svc
}

func join(ctx context.Context, svc *app.Service, p model.Participant) {
	ok, err := svc.JoinPool(ctx, p)
	So(err, ShouldBeNil)
	So(ok, ShouldBeTrue)
}

func TestJoinPool(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service", t, func() {
		svc := startedService(ctx, app.WithPlayersPerMatch(2))
		defer svc.Stop()

		Convey("When an unknown participant joins without a rating", func() {
			join(ctx, svc, model.Participant{ID: "new"})

			Convey("Then it waits with the default rating and flex role", func() {
				So(svc.PoolSize(ctx), ShouldEqual, 1)
			})

			Convey("Then joining twice is rejected", func() {
				ok, err := svc.JoinPool(ctx, model.Participant{ID: "new"})
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})

			Convey("Then leaving frees the slot", func() {
				So(svc.LeavePool(ctx, "new"), ShouldBeTrue)
				So(svc.PoolSize(ctx), ShouldEqual, 0)
			})
		})
	})
}

func TestFormMatch(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service forming four-player matches", t, func() {
		svc := startedService(ctx,
			app.WithPlayersPerMatch(4),
			app.WithEnforceRoles(false),
			app.WithRatingConfig(settledRating()),
		)
		defer svc.Stop()

		Convey("When the pool is short", func() {
			join(ctx, svc, model.Participant{ID: "a", Rating: 2500})
			_, err := svc.FormMatch(ctx)

			Convey("Then formation reports the pool too small and consumes nothing", func() {
				So(err, ShouldWrap, app.ErrPoolTooSmall)
				So(svc.PoolSize(ctx), ShouldEqual, 1)
			})
		})

		Convey("When enough participants wait", func() {
			for _, p := range []model.Participant{
				{ID: "a", Rating: 1000},
				{ID: "b", Rating: 2000},
				{ID: "c", Rating: 1000},
				{ID: "d", Rating: 2000},
			} {
				join(ctx, svc, p)
			}

			m, err := svc.FormMatch(ctx)
			So(err, ShouldBeNil)

			Convey("Then the match partitions the group into equal teams", func() {
				So(len(m.TeamA.Players), ShouldEqual, 2)
				So(len(m.TeamB.Players), ShouldEqual, 2)
				So(m.TeamA.AverageRating(), ShouldEqual, m.TeamB.AverageRating())
				So(m.Seq, ShouldEqual, 1)
			})

			Convey("Then the consumed waiters leave the pool", func() {
				So(svc.PoolSize(ctx), ShouldEqual, 0)
			})

			Convey("Then the match is recorded", func() {
				recent, err := svc.RecentMatches(ctx, 5)
				So(err, ShouldBeNil)
				So(len(recent), ShouldEqual, 1)
				So(recent[0].ID, ShouldEqual, m.ID)
			})

			Convey("Then team members are listed strongest first", func() {
				So(m.TeamA.Players[0].Rating, ShouldBeGreaterThanOrEqualTo, m.TeamA.Players[1].Rating)
				So(m.TeamB.Players[0].Rating, ShouldBeGreaterThanOrEqualTo, m.TeamB.Players[1].Rating)
			})
		})
	})

	Convey("Given a service enforcing a 1 tank / 1 damage quota", t, func() {
		svc := startedService(ctx,
			app.WithPlayersPerMatch(4),
			app.WithEnforceRoles(true),
			app.WithRoleQuota(model.RoleQuota{model.RoleTank: 1, model.RoleDamage: 1}),
			app.WithRatingConfig(settledRating()),
		)
		defer svc.Stop()

		for _, p := range []model.Participant{
			{ID: "t1", Rating: 2500, Role: model.RoleTank},
			{ID: "t2", Rating: 2500, Role: model.RoleTank},
			{ID: "d1", Rating: 2500, Role: model.RoleDamage},
			{ID: "d2", Rating: 2500, Role: model.RoleDamage},
		} {
			join(ctx, svc, p)
		}

		Convey("When the match forms", func() {
			m, err := svc.FormMatch(ctx)
			So(err, ShouldBeNil)
			So(m.RolesEnforced, ShouldBeTrue)

			Convey("Then every player has a concrete assigned role", func() {
				for _, team := range []model.Team{m.TeamA, m.TeamB} {
					assigned := map[model.Role]int{}
					for _, pl := range team.Players {
						assigned[pl.AssignedRole]++
					}
					So(assigned[model.RoleTank], ShouldEqual, 1)
					So(assigned[model.RoleDamage], ShouldEqual, 1)
				}
			})
		})
	})
}

func TestApplyResult(t *testing.T) {
	ctx := context.Background()

	Convey("Given a formed two-player match at equal 2500", t, func() {
		svc := startedService(ctx,
			app.WithPlayersPerMatch(2),
			app.WithEnforceRoles(false),
			app.WithRatingConfig(settledRating()),
		)
		defer svc.Stop()

		join(ctx, svc, model.Participant{ID: "a", Rating: 2500})
		join(ctx, svc, model.Participant{ID: "b", Rating: 2500})
		m, err := svc.FormMatch(ctx)
		So(err, ShouldBeNil)

		winnerOf := func(pid string) string { return m.TeamOf(pid) }

		Convey("When team A's side wins", func() {
			changes, status, err := svc.ApplyResult(ctx, m.ID, winnerOf("a"))
			So(err, ShouldBeNil)
			So(status, ShouldEqual, app.StatusApplied)
			So(len(changes), ShouldEqual, 2)

			Convey("Then the winner gains 12 and the loser drops 12", func() {
				for _, c := range changes {
					So(c.RatingBefore, ShouldEqual, 2500)
					if c.ParticipantID == "a" {
						So(c.Delta, ShouldEqual, 12)
						So(c.RatingAfter, ShouldEqual, 2512)
					} else {
						So(c.Delta, ShouldEqual, -12)
						So(c.RatingAfter, ShouldEqual, 2488)
					}
				}
			})

			Convey("Then live ratings and the leaderboard follow", func() {
				e, err := svc.ParticipantRank(ctx, "a")
				So(err, ShouldBeNil)
				So(e.Rating, ShouldEqual, 2512)
				So(e.Rank, ShouldEqual, 1)
				So(e.GamesPlayed, ShouldEqual, 1)
			})

			Convey("Then applying again is an idempotent no-op", func() {
				again, status, err := svc.ApplyResult(ctx, m.ID, winnerOf("b"))
				So(err, ShouldBeNil)
				So(status, ShouldEqual, app.StatusAlreadyApplied)
				So(again, ShouldResemble, changes)

				e, _ := svc.ParticipantRank(ctx, "a")
				So(e.Rating, ShouldEqual, 2512)
			})
		})

		Convey("When the match draws", func() {
			changes, status, err := svc.ApplyResult(ctx, m.ID, "Draw")
			So(err, ShouldBeNil)
			So(status, ShouldEqual, app.StatusApplied)

			Convey("Then equal ratings move by exactly zero", func() {
				for _, c := range changes {
					So(c.Delta, ShouldEqual, 0)
					So(c.RatingAfter, ShouldEqual, 2500)
				}
			})
		})

		Convey("When the winner label is invalid", func() {
			_, _, err := svc.ApplyResult(ctx, m.ID, "team a")
			So(err, ShouldWrap, model.ErrInvalidWinner)
		})

		Convey("When the match does not exist", func() {
			_, _, err := svc.ApplyResult(ctx, "no-such-match", "Draw")
			So(err, ShouldWrap, app.ErrMatchNotFound)
		})
	})

	Convey("Given calibration is enabled", t, func() {
		svc := startedService(ctx,
			app.WithPlayersPerMatch(2),
			app.WithEnforceRoles(false),
			app.WithRatingConfig(rating.New(rating.WithCalibration(5, 2.0))),
		)
		defer svc.Stop()

		join(ctx, svc, model.Participant{ID: "a", Rating: 2500})
		join(ctx, svc, model.Participant{ID: "b", Rating: 2500})
		m, err := svc.FormMatch(ctx)
		So(err, ShouldBeNil)

		Convey("When a first-ever result applies", func() {
			changes, status, err := svc.ApplyResult(ctx, m.ID, m.TeamOf("a"))
			So(err, ShouldBeNil)
			So(status, ShouldEqual, app.StatusApplied)

			Convey("Then the zero-prior-games swing is doubled", func() {
				for _, c := range changes {
					if c.ParticipantID == "a" {
						So(c.Delta, ShouldEqual, 24)
					} else {
						So(c.Delta, ShouldEqual, -24)
					}
				}
			})
		})
	})
}

func TestCorrectResult(t *testing.T) {
	ctx := context.Background()

	Convey("Given an applied two-player match at equal 2500", t, func() {
		svc := startedService(ctx,
			app.WithPlayersPerMatch(2),
			app.WithEnforceRoles(false),
			app.WithRatingConfig(settledRating()),
		)
		defer svc.Stop()

		join(ctx, svc, model.Participant{ID: "a", Rating: 2500})
		join(ctx, svc, model.Participant{ID: "b", Rating: 2500})
		m, err := svc.FormMatch(ctx)
		So(err, ShouldBeNil)

		aSide, bSide := m.TeamOf("a"), m.TeamOf("b")

		_, _, err = svc.ApplyResult(ctx, m.ID, aSide)
		So(err, ShouldBeNil)

		Convey("When the winner flips to the other side", func() {
			changes, status, err := svc.CorrectResult(ctx, m.ID, bSide)
			So(err, ShouldBeNil)
			So(status, ShouldEqual, app.StatusCorrected)

			Convey("Then the frozen before-ratings stay and the deltas negate", func() {
				for _, c := range changes {
					So(c.RatingBefore, ShouldEqual, 2500)
					if c.ParticipantID == "a" {
						So(c.Delta, ShouldEqual, -12)
						So(c.RatingAfter, ShouldEqual, 2488)
					} else {
						So(c.Delta, ShouldEqual, 12)
						So(c.RatingAfter, ShouldEqual, 2512)
					}
				}
			})

			Convey("Then live ratings land where the corrected result would have", func() {
				a, _ := svc.ParticipantRank(ctx, "a")
				b, _ := svc.ParticipantRank(ctx, "b")
				So(a.Rating, ShouldEqual, 2488)
				So(b.Rating, ShouldEqual, 2512)
			})

			Convey("Then correcting to the same winner again changes nothing", func() {
				_, status, err := svc.CorrectResult(ctx, m.ID, bSide)
				So(err, ShouldBeNil)
				So(status, ShouldEqual, app.StatusAlreadyMatches)
			})
		})

		Convey("When the correction restates the recorded winner", func() {
			_, status, err := svc.CorrectResult(ctx, m.ID, aSide)
			So(err, ShouldBeNil)
			So(status, ShouldEqual, app.StatusAlreadyMatches)
		})
	})

	Convey("Given a match that was never applied", t, func() {
		svc := startedService(ctx,
			app.WithPlayersPerMatch(2),
			app.WithEnforceRoles(false),
		)
		defer svc.Stop()

		join(ctx, svc, model.Participant{ID: "a", Rating: 2500})
		join(ctx, svc, model.Participant{ID: "b", Rating: 2500})
		m, err := svc.FormMatch(ctx)
		So(err, ShouldBeNil)

		Convey("When a correction arrives first", func() {
			_, _, err := svc.CorrectResult(ctx, m.ID, "Draw")
			So(err, ShouldWrap, app.ErrNotApplied)
		})
	})

	Convey("Given a loser pinned at the rating floor", t, func() {
		store := repository.NewMemoryStore()
		svc := startedService(ctx,
			app.WithStore(store),
			app.WithPlayersPerMatch(2),
			app.WithEnforceRoles(false),
			app.WithRatingConfig(settledRating()),
		)
		defer svc.Stop()

		// Tracked at the floor so the loss clamps: raw -12, after stays 0.
		So(store.UpsertParticipant(ctx, model.Participant{ID: "a", Rating: 0}), ShouldBeNil)
		So(store.UpsertParticipant(ctx, model.Participant{ID: "b", Rating: 0}), ShouldBeNil)

		join(ctx, svc, model.Participant{ID: "a"})
		join(ctx, svc, model.Participant{ID: "b"})
		m, err := svc.FormMatch(ctx)
		So(err, ShouldBeNil)

		applied, _, err := svc.ApplyResult(ctx, m.ID, m.TeamOf("a"))
		So(err, ShouldBeNil)
		for _, c := range applied {
			if c.ParticipantID == "b" {
				So(c.Delta, ShouldEqual, -12)
				So(c.RatingAfter, ShouldEqual, 0)
			}
		}

		Convey("When the result is corrected to a draw", func() {
			changes, status, err := svc.CorrectResult(ctx, m.ID, "Draw")
			So(err, ShouldBeNil)
			So(status, ShouldEqual, app.StatusCorrected)

			Convey("Then the clamped loser's row is left untouched", func() {
				for _, c := range changes {
					switch c.ParticipantID {
					case "a":
						So(c.Delta, ShouldEqual, 0)
						So(c.RatingAfter, ShouldEqual, 0)
					case "b":
						// Zero effective correction: stored delta survives.
						So(c.Delta, ShouldEqual, -12)
						So(c.RatingAfter, ShouldEqual, 0)
					}
				}

				a, _ := svc.ParticipantRank(ctx, "a")
				b, _ := svc.ParticipantRank(ctx, "b")
				So(a.Rating, ShouldEqual, 0)
				So(b.Rating, ShouldEqual, 0)
			})
		})
	})

	Convey("Given a winner pinned at the rating ceiling", t, func() {
		svc := startedService(ctx,
			app.WithPlayersPerMatch(2),
			app.WithEnforceRoles(false),
			app.WithRatingConfig(settledRating()),
		)
		defer svc.Stop()

		// a wins from 4995: raw +12 clamps at 5000 (+5 effective).
		join(ctx, svc, model.Participant{ID: "a", Rating: 4995})
		join(ctx, svc, model.Participant{ID: "b", Rating: 4990})
		m, err := svc.FormMatch(ctx)
		So(err, ShouldBeNil)

		_, _, err = svc.ApplyResult(ctx, m.ID, m.TeamOf("a"))
		So(err, ShouldBeNil)

		a, _ := svc.ParticipantRank(ctx, "a")
		So(a.Rating, ShouldEqual, 5000)

		Convey("When the result flips against the clamped winner", func() {
			changes, status, err := svc.CorrectResult(ctx, m.ID, m.TeamOf("b"))
			So(err, ShouldBeNil)
			So(status, ShouldEqual, app.StatusCorrected)

			Convey("Then the correction is effective-delta aware, not raw", func() {
				for _, c := range changes {
					if c.ParticipantID == "a" {
						So(c.RatingBefore, ShouldEqual, 4995)
						So(c.Delta, ShouldEqual, -12)
						So(c.RatingAfter, ShouldEqual, 4983)
					}
				}
				// Live rating drops by 17 (5000 -> 4983), undoing the +5
				// effective win before applying the -12 loss.
				a, _ := svc.ParticipantRank(ctx, "a")
				So(a.Rating, ShouldEqual, 4983)
			})
		})
	})
}

func TestStats(t *testing.T) {
	ctx := context.Background()

	Convey("Given a participant with a win, a loss and a draw", t, func() {
		svc := startedService(ctx,
			app.WithPlayersPerMatch(2),
			app.WithEnforceRoles(false),
			app.WithRatingConfig(settledRating()),
		)
		defer svc.Stop()

		outcomes := []func(m model.MatchRecord) string{
			func(m model.MatchRecord) string { return m.TeamOf("a") },
			func(m model.MatchRecord) string { return m.TeamOf("b") },
			func(model.MatchRecord) string { return "Draw" },
		}
		for _, pick := range outcomes {
			join(ctx, svc, model.Participant{ID: "a"})
			join(ctx, svc, model.Participant{ID: "b"})
			m, err := svc.FormMatch(ctx)
			So(err, ShouldBeNil)
			_, _, err = svc.ApplyResult(ctx, m.ID, pick(m))
			So(err, ShouldBeNil)
		}

		Convey("When aggregating the record", func() {
			stats, err := svc.Stats(ctx, "a")
			So(err, ShouldBeNil)

			Convey("Then the tallies match the applied results", func() {
				So(stats.Entry.GamesPlayed, ShouldEqual, 3)
				So(stats.Wins, ShouldEqual, 1)
				So(stats.Losses, ShouldEqual, 1)
				So(stats.Draws, ShouldEqual, 1)
			})
		})

		Convey("When reading the match history", func() {
			hist, err := svc.MatchHistory(ctx, "a", 10)
			So(err, ShouldBeNil)
			So(len(hist), ShouldEqual, 3)

			Convey("Then rows come newest match first", func() {
				So(hist[0].MatchSeq, ShouldBeGreaterThan, hist[1].MatchSeq)
				So(hist[1].MatchSeq, ShouldBeGreaterThan, hist[2].MatchSeq)
			})
		})

		Convey("When reading the leaderboard", func() {
			top, err := svc.Leaderboard(ctx, 10)
			So(err, ShouldBeNil)
			So(len(top), ShouldEqual, 2)
		})
	})
}

func TestServiceStats(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service", t, func() {
		svc := startedService(ctx, app.WithPlayersPerMatch(2), app.WithStore(repository.NewMemoryStore()))
		defer svc.Stop()

		join(ctx, svc, model.Participant{ID: "a"})

		stats := svc.ServiceStats(ctx)
		So(stats["started"], ShouldBeTrue)
		So(stats["poolSize"], ShouldEqual, 1)
		So(stats["playersPerMatch"], ShouldEqual, 2)
	})
}
