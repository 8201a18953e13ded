package aggregator

import (
	"sort"
	"sync"

	"custody-wallet-go/internal/models"

	"github.com/shopspring/decimal"
)

type assetTotal struct {
	balance      decimal.Decimal
	address      string
	addressOrder int
	networks     map[string]struct{}
}

// accumulator is the only state shared between fetch tasks. Once sealed it
// drops further results.
type accumulator struct {
	mu       sync.Mutex
	sealed   bool
	assets   map[string]*assetTotal
	order    []string
	failures []models.TaskFailure
}

func newAccumulator() *accumulator {
	return &accumulator{assets: make(map[string]*assetTotal)}
}

func (a *accumulator) declare(assetCode string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.assets[assetCode]; ok {
		return
	}
	a.assets[assetCode] = &assetTotal{
		balance:      decimal.Zero,
		addressOrder: -1,
		networks:     make(map[string]struct{}),
	}
	a.order = append(a.order, assetCode)
}

// add merges a successful read and reports whether it was accepted.
func (a *accumulator) add(t task, balance decimal.Decimal) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sealed {
		return false
	}

	total := a.assets[t.token.Symbol]
	total.balance = total.balance.Add(balance)
	total.networks[t.entry.Network] = struct{}{}

	if addr := t.address(); addr != "" && (total.addressOrder < 0 || t.order < total.addressOrder) {
		total.address = addr
		total.addressOrder = t.order
	}
	return true
}

func (a *accumulator) fail(f models.TaskFailure) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sealed {
		return
	}
	a.failures = append(a.failures, f)
}

func (a *accumulator) seal() (map[string]models.AssetBalance, []models.TaskFailure) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sealed = true

	out := make(map[string]models.AssetBalance, len(a.assets))
	for _, assetCode := range a.order {
		total := a.assets[assetCode]
		networks := make([]string, 0, len(total.networks))
		for n := range total.networks {
			networks = append(networks, n)
		}
		sort.Strings(networks)

		out[assetCode] = models.AssetBalance{
			AssetCode:            assetCode,
			Balance:              total.balance,
			Address:              total.address,
			ContributingNetworks: networks,
		}
	}

	failures := make([]models.TaskFailure, len(a.failures))
	copy(failures, a.failures)
	return out, failures
}
