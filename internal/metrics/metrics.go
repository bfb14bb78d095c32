package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	CodesIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oidc_authorization_codes_issued_total",
		Help: "Total number of authorization codes issued.",
	})
	CodesRedeemedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oidc_authorization_codes_redeemed_total",
		Help: "Total number of authorization codes successfully redeemed.",
	})
	TokenSetsIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oidc_token_sets_issued_total",
		Help: "Total number of token sets issued.",
	})
	TokensRotatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oidc_refresh_tokens_rotated_total",
		Help: "Total number of successful refresh token rotations.",
	})
	FamiliesRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oidc_refresh_token_families_revoked_total",
		Help: "Total number of refresh token families revoked on detected reuse.",
	})
	AccountsProvisionedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oidc_federated_accounts_provisioned_total",
		Help: "Total number of local accounts provisioned for federated identities.",
	})
)

// Register registers all counters with the given registerer. Call once at
// startup; a nil registerer is a no-op so library users without Prometheus
// lose nothing but the counters.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	collectors := []prometheus.Collector{
		CodesIssuedTotal,
		CodesRedeemedTotal,
		TokenSetsIssuedTotal,
		TokensRotatedTotal,
		FamiliesRevokedTotal,
		AccountsProvisionedTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("failed to register metric")
		}
	}
}
