package balance_test

import (
	"testing"

	"github.com/maxaitel/overwatch-server-discord-bot/internal/domain/balance"
	"github.com/maxaitel/overwatch-server-discord-bot/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func player(id string, ratingValue int, role model.Role) model.Participant {
	return model.Participant{ID: id, DisplayLabel: id, Rating: ratingValue, Role: role}
}

func memberSet(team []model.Participant) map[string]bool {
	out := make(map[string]bool, len(team))
	for _, p := range team {
		out[p.ID] = true
	}
	return out
}

func teamSum(team []model.Participant) int {
	sum := 0
	for _, p := range team {
		sum += p.Rating
	}
	return sum
}

func TestBalanceInput(t *testing.T) {
	Convey("Given invalid participant pools", t, func() {
		Convey("When the pool is empty", func() {
			_, err := balance.Balance(nil, false, nil)
			So(err, ShouldWrap, balance.ErrInvalidInput)
		})

		Convey("When the pool size is odd", func() {
			pool := []model.Participant{
				player("a", 1000, model.RoleFlex),
				player("b", 1000, model.RoleFlex),
				player("c", 1000, model.RoleFlex),
			}
			_, err := balance.Balance(pool, false, nil)
			So(err, ShouldWrap, balance.ErrInvalidInput)
		})

		Convey("When the quota exceeds the team size", func() {
			pool := []model.Participant{
				player("a", 1000, model.RoleFlex),
				player("b", 1000, model.RoleFlex),
				player("c", 1000, model.RoleFlex),
				player("d", 1000, model.RoleFlex),
			}
			quota := model.RoleQuota{model.RoleTank: 1, model.RoleDamage: 1, model.RoleSupport: 1}
			_, err := balance.Balance(pool, true, quota)
			So(err, ShouldWrap, balance.ErrInvalidInput)

			Convey("But an oversized quota is fine when roles are not enforced", func() {
				res, err := balance.Balance(pool, false, quota)
				So(err, ShouldBeNil)
				So(res.RolesEnforced, ShouldBeFalse)
			})
		})
	})
}

func TestBalancePartition(t *testing.T) {
	Convey("Given a pool of mixed ratings", t, func() {
		pool := []model.Participant{
			player("a", 1000, model.RoleFlex),
			player("b", 2000, model.RoleFlex),
			player("c", 1500, model.RoleFlex),
			player("d", 2500, model.RoleFlex),
			player("e", 1200, model.RoleFlex),
			player("f", 1800, model.RoleFlex),
		}

		Convey("When balancing without role constraints", func() {
			res, err := balance.Balance(pool, false, nil)
			So(err, ShouldBeNil)

			Convey("Then both teams have equal size", func() {
				So(len(res.TeamA), ShouldEqual, 3)
				So(len(res.TeamB), ShouldEqual, 3)
			})

			Convey("Then the teams partition the pool exactly", func() {
				a, b := memberSet(res.TeamA), memberSet(res.TeamB)
				So(len(a)+len(b), ShouldEqual, len(pool))
				for _, p := range pool {
					So(a[p.ID] != b[p.ID], ShouldBeTrue)
				}
			})

			Convey("Then the first participant anchors team A", func() {
				So(memberSet(res.TeamA)["a"], ShouldBeTrue)
			})

			Convey("Then no other split is more even", func() {
				// Total 10000; best achievable split is 5000/5000.
				So(teamSum(res.TeamA), ShouldEqual, 5000)
				So(teamSum(res.TeamB), ShouldEqual, 5000)
			})
		})
	})
}

func TestBalanceTieBreak(t *testing.T) {
	Convey("Given a pool where every split balances equally", t, func() {
		pool := []model.Participant{
			player("a", 1000, model.RoleFlex),
			player("b", 1000, model.RoleFlex),
			player("c", 1000, model.RoleFlex),
			player("d", 1000, model.RoleFlex),
		}

		Convey("When balancing twice", func() {
			first, err1 := balance.Balance(pool, false, nil)
			second, err2 := balance.Balance(pool, false, nil)
			So(err1, ShouldBeNil)
			So(err2, ShouldBeNil)

			Convey("Then the scan keeps the first best split deterministically", func() {
				So(memberSet(first.TeamA), ShouldResemble, map[string]bool{"a": true, "b": true})
				So(memberSet(second.TeamA), ShouldResemble, memberSet(first.TeamA))
			})
		})
	})
}

func TestBalanceRoles(t *testing.T) {
	quota := model.RoleQuota{model.RoleTank: 1, model.RoleDamage: 1}

	Convey("Given a pool that can satisfy the quota", t, func() {
		pool := []model.Participant{
			player("t1", 2000, model.RoleTank),
			player("t2", 1000, model.RoleTank),
			player("d1", 2000, model.RoleDamage),
			player("d2", 1000, model.RoleDamage),
		}

		Convey("When balancing with roles enforced", func() {
			res, err := balance.Balance(pool, true, quota)
			So(err, ShouldBeNil)
			So(res.RolesEnforced, ShouldBeTrue)

			Convey("Then each side carries one tank and one damage", func() {
				for _, team := range [][]model.Participant{res.TeamA, res.TeamB} {
					counts := map[model.Role]int{}
					for _, p := range team {
						counts[p.Role]++
					}
					So(counts[model.RoleTank], ShouldEqual, 1)
					So(counts[model.RoleDamage], ShouldEqual, 1)
				}
			})

			Convey("Then the rating-balanced feasible split is chosen", func() {
				So(teamSum(res.TeamA), ShouldEqual, 3000)
				So(teamSum(res.TeamB), ShouldEqual, 3000)
			})
		})
	})

	Convey("Given a pool that cannot satisfy the quota on any split", t, func() {
		pool := []model.Participant{
			player("t1", 1000, model.RoleTank),
			player("t2", 1100, model.RoleTank),
			player("t3", 1200, model.RoleTank),
			player("t4", 1300, model.RoleTank),
		}

		Convey("When balancing with roles enforced", func() {
			res, err := balance.Balance(pool, true, quota)

			Convey("Then the search degrades to a pure rating balance", func() {
				So(err, ShouldBeNil)
				So(res.RolesEnforced, ShouldBeFalse)
				So(len(res.TeamA), ShouldEqual, 2)
				So(len(res.TeamB), ShouldEqual, 2)
			})
		})
	})

	Convey("Given flex players covering uncovered seats", t, func() {
		pool := []model.Participant{
			player("t1", 1500, model.RoleTank),
			player("f1", 1500, model.RoleFlex),
			player("f2", 1500, model.RoleFlex),
			player("f3", 1500, model.RoleFlex),
		}

		Convey("When balancing with roles enforced", func() {
			res, err := balance.Balance(pool, true, quota)

			Convey("Then the all-flex side is feasible through its flex count", func() {
				So(err, ShouldBeNil)
				So(res.RolesEnforced, ShouldBeTrue)
			})
		})
	})
}
