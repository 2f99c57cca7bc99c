package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accessd_auth_attempts_total",
		Help: "Identity resolutions by branch and outcome.",
	}, []string{"branch", "outcome"})

	aclDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accessd_acl_denials_total",
		Help: "Entity access refusals by entity kind.",
	}, []string{"entity"})
)
