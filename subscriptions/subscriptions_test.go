package subscriptions

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/reevlo/reevlo-backend/db"
)

func TestPlanFor(t *testing.T) {
	c := qt.New(t)

	c.Assert(PlanFor(nil).ID, qt.Equals, FreePlanID)
	c.Assert(PlanFor(&db.User{}).ID, qt.Equals, FreePlanID)
	plus := PlanFor(&db.User{Premium: true})
	c.Assert(plus.ID, qt.Equals, PlusPlanID)
	c.Assert(plus.Price.String(), qt.Equals, "8.99")
	c.Assert(plus.Interval, qt.Equals, "month")
	c.Assert(plus.Limits.MaxUploadMinutes, qt.Equals, 60)

	plans := Plans()
	c.Assert(plans, qt.HasLen, 2)
	c.Assert(plans[0].Price.LessThan(plans[1].Price), qt.IsTrue)
}

func TestHasPermission(t *testing.T) {
	c := qt.New(t)

	free := &db.User{}
	premium := &db.User{Premium: true}
	for _, perk := range []Perk{LongUploads, AdFree, VerificationBadge, PrioritySupport} {
		c.Assert(HasPermission(free, perk), qt.IsFalse, qt.Commentf("free %s", perk))
		c.Assert(HasPermission(premium, perk), qt.IsTrue, qt.Commentf("premium %s", perk))
	}
	c.Assert(HasPermission(premium, Perk(99)), qt.IsFalse)
	c.Assert(Perk(99).String(), qt.Equals, "Unknown")

	c.Assert(Perks(free), qt.HasLen, 0)
	c.Assert(Perks(premium), qt.DeepEquals, []string{"LongUploads", "AdFree", "VerificationBadge", "PrioritySupport"})
}
