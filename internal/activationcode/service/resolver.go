package service

import (
	"context"

	"github.com/smallbiznis/memoria/internal/activationcode/domain"
)

const DefaultAttemptBudget = 100

// ExistsFunc reports whether a code is already stored.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Resolver draws candidates until each one is free both in the current call
// and in the store. The store's unique index stays the final arbiter; the
// check here only keeps inserts from colliding in the common case.
type Resolver struct {
	gen    domain.Generator
	exists ExistsFunc
	budget int
}

func NewResolver(gen domain.Generator, exists ExistsFunc, budget int) *Resolver {
	if budget <= 0 {
		budget = DefaultAttemptBudget
	}
	return &Resolver{gen: gen, exists: exists, budget: budget}
}

// Generate returns up to n codes. A code whose budget runs out is counted in
// Shortfall rather than failing the whole call.
func (r *Resolver) Generate(ctx context.Context, n int, reserved map[string]struct{}) (domain.GenerateResult, error) {
	if n <= 0 {
		return domain.GenerateResult{}, domain.ErrInvalidQuantity
	}

	inFlight := make(map[string]struct{}, n+len(reserved))
	for code := range reserved {
		inFlight[code] = struct{}{}
	}

	result := domain.GenerateResult{Codes: make([]string, 0, n)}
	for i := 0; i < n; i++ {
		code, err := r.drawOne(ctx, inFlight)
		if err != nil {
			return result, err
		}
		if code == "" {
			result.Shortfall++
			continue
		}
		inFlight[code] = struct{}{}
		result.Codes = append(result.Codes, code)
	}
	return result, nil
}

func (r *Resolver) drawOne(ctx context.Context, inFlight map[string]struct{}) (string, error) {
	for attempt := 0; attempt < r.budget; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate, err := r.gen.Next()
		if err != nil {
			return "", err
		}
		if _, taken := inFlight[candidate]; taken {
			continue
		}
		stored, err := r.exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if stored {
			continue
		}
		return candidate, nil
	}
	return "", nil
}
