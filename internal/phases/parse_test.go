package phases

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pandora-run/pandora/pkg/models"
)

func TestQueryAnalyzerParseRejectsUnknownIntent(t *testing.T) {
	_, err := QueryAnalyzer{}.Parse(`{"intent":"sideways","topic":"t","keywords":[]}`)
	require.Error(t, err)
}

func TestReflectionParse(t *testing.T) {
	d, err := Reflection{}.Parse(`{"proceed":true,"clarifying_question":""}`)
	require.NoError(t, err)
	require.True(t, d.Proceed)

	d, err = Reflection{}.Parse(`{"proceed":false,"clarifying_question":"which model?"}`)
	require.NoError(t, err)
	require.False(t, d.Proceed)
	require.Equal(t, "which model?", d.ClarifyingQuestion)

	// A clarify decision must carry its question.
	_, err = Reflection{}.Parse(`{"proceed":false,"clarifying_question":""}`)
	require.Error(t, err)
}

func TestContextGathererParse(t *testing.T) {
	d, err := ContextGatherer{}.Parse(`{"digest":"prior turns discussed mice","citations":["turns/3"]}`)
	require.NoError(t, err)
	require.Equal(t, "prior turns discussed mice", d.Digest)
	require.Equal(t, []string{"turns/3"}, d.Citations)
}

func TestPlannerParse(t *testing.T) {
	p, err := Planner{}.Parse(`{"goal":"find price","pattern":"commerce","approach":"search retailers","likely_tools":["web_search"],"route":"executor"}`)
	require.NoError(t, err)
	require.Equal(t, models.RouteExecutor, p.Route)
	require.Equal(t, []string{"web_search"}, p.LikelyTools)

	_, err = Planner{}.Parse(`{"goal":"g","approach":"a","route":"sideways"}`)
	require.Error(t, err)
}

func TestCoordinatorParseRoundTripsLedger(t *testing.T) {
	raw := `{"claims":[{"claim":"price is $99","url":"https://example.com/p","source_type":"retailer","confidence":0.9,"quote":"$99.00","verification":"pdp_verified"}]}`
	r, err := Coordinator{}.Parse(raw)
	require.NoError(t, err)
	require.Len(t, r.Ledger, 1)
	c := r.Ledger[0]
	require.Equal(t, "price is $99", c.Claim)
	require.Equal(t, "retailer", c.SourceType)
	require.Equal(t, models.VerificationPDPVerified, c.Verification)
}

func TestValidationParse(t *testing.T) {
	r, err := Validation{}.Parse(`{"decision":"approve","reason":""}`)
	require.NoError(t, err)
	require.Equal(t, models.ValidationApprove, r.Decision)

	r, err = Validation{}.Parse(`{"decision":"revise","reason":"missing attribution"}`)
	require.NoError(t, err)
	require.Equal(t, models.ValidationRevise, r.Decision)
	require.Equal(t, "missing attribution", r.Reason)

	_, err = Validation{}.Parse(`{"decision":"revise","reason":""}`)
	require.Error(t, err)

	_, err = Validation{}.Parse(`{"decision":"maybe","reason":"x"}`)
	require.Error(t, err)
}

func TestSynthesisParseIsIdentity(t *testing.T) {
	r, err := Synthesis{}.Parse("final answer text")
	require.NoError(t, err)
	require.Equal(t, "final answer text", r.Text)
}

func TestClassifyBlocker(t *testing.T) {
	cases := []struct {
		detail string
		want   models.BlockerType
		ok     bool
	}{
		{"page served a reCAPTCHA challenge", models.BlockerCaptchaRecaptcha, true},
		{"hCaptcha detected", models.BlockerCaptchaHCaptcha, true},
		{"Cloudflare checking your browser", models.BlockerCaptchaCloudflare, true},
		{"generic captcha wall", models.BlockerCaptchaGeneric, true},
		{"please log in to continue", models.BlockerLoginRequired, true},
		{"429 too many requests", models.BlockerRateLimit, true},
		{"are you a robot?", models.BlockerBotDetection, true},
		{"connection reset by peer", "", false},
	}
	for _, tc := range cases {
		got, ok := classifyBlocker(tc.detail)
		if ok != tc.ok || got != tc.want {
			t.Errorf("classifyBlocker(%q) = (%q, %v), want (%q, %v)", tc.detail, got, ok, tc.want, tc.ok)
		}
	}
}

func TestAverageConfidence(t *testing.T) {
	require.Zero(t, averageConfidence(nil))
	ledger := []models.EvidenceClaim{{Confidence: 0.5}, {Confidence: 1.0}}
	require.InDelta(t, 0.75, averageConfidence(ledger), 1e-9)
}
