package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide_OpenPhraseWithoutExtension(t *testing.T) {
	plan := Decide("open gohighlevel and then click login", false)

	assert.True(t, plan.Navigate)
	assert.Equal(t, "https://gohighlevel.com", plan.TargetURL)
	assert.Equal(t, "click login", plan.Action)
}

func TestDecide_FullURLOnly(t *testing.T) {
	plan := Decide("https://example.com/path", false)

	assert.True(t, plan.Navigate)
	assert.Equal(t, "https://example.com/path", plan.TargetURL)
	assert.Empty(t, plan.Action, "navigation-only instruction must skip the action step")
}

func TestDecide_BareDomainWithResidual(t *testing.T) {
	plan := Decide("open stripe.com and click pricing", false)

	assert.True(t, plan.Navigate)
	assert.Equal(t, "https://stripe.com", plan.TargetURL)
	assert.Equal(t, "click pricing", plan.Action)
}

func TestDecide_BareDomainWithPath(t *testing.T) {
	plan := Decide("visit docs.example.io/getting-started and read the intro", false)

	assert.True(t, plan.Navigate)
	assert.Equal(t, "https://docs.example.io/getting-started", plan.TargetURL)
	assert.Equal(t, "read the intro", plan.Action)
}

func TestDecide_FullURLBeatsBareDomain(t *testing.T) {
	plan := Decide("compare https://stripe.com/pricing with paddle.com", false)

	assert.Equal(t, "https://stripe.com/pricing", plan.TargetURL)
}

func TestDecide_ReuseWithNoCueSkipsNavigation(t *testing.T) {
	plan := Decide("click the first contact in the list", true)

	assert.False(t, plan.Navigate)
	assert.Empty(t, plan.TargetURL)
	assert.Equal(t, "click the first contact in the list", plan.Action,
		"full original instruction must reach the provider unmodified")
}

func TestDecide_FreshSessionForcesNavigation(t *testing.T) {
	plan := Decide("search for coffee shops", false)

	assert.True(t, plan.Navigate)
	assert.Equal(t, DefaultStartURL, plan.TargetURL)
	assert.Equal(t, "search for coffee shops", plan.Action)
}

func TestDecide_ShortResidualBecomesNavigationOnly(t *testing.T) {
	plan := Decide("open stripe.com now", false)

	assert.True(t, plan.Navigate)
	assert.Equal(t, "https://stripe.com", plan.TargetURL)
	assert.Empty(t, plan.Action)
}

func TestCleanResidual(t *testing.T) {
	cases := map[string]string{
		" and then click login":    "click login",
		"open  and click pricing":  "click pricing",
		"and then":                 "",
		"fill the form, then save": "fill the form, then save",
	}
	for in, want := range cases {
		assert.Equal(t, want, cleanResidual(in), "input %q", in)
	}
}
