package health

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mercator-hq/callisto/pkg/breaker"
	"mercator-hq/callisto/pkg/router"
)

// RouterCheck fails while r refuses traffic.
func RouterCheck(r *router.Router) CheckFunc {
	return func(context.Context) error {
		if r.Ready() {
			return nil
		}
		problems := r.Problems()
		if len(problems) == 0 {
			return errors.New("router disabled")
		}
		return fmt.Errorf("configuration invalid: %s", strings.Join(problems, "; "))
	}
}

// ProvidersCheck fails when no provider can take a call: every breaker is
// open or no provider is configured.
func ProvidersCheck(r *router.Router) CheckFunc {
	return func(context.Context) error {
		statuses := r.Providers()
		if len(statuses) == 0 {
			return errors.New("no providers configured")
		}
		for _, s := range statuses {
			if s.Breaker.State != breaker.Open {
				return nil
			}
		}
		return fmt.Errorf("all %d provider circuits open", len(statuses))
	}
}
