package policy

import (
	"github.com/minsu-cho/agorasim/pkg/econ/sim"
)

// Labor runs a simple one-in-one-out labor market. Profitable firms that can
// cover a bigger payroll hire one worker per cycle from the unemployed pool;
// loss-making or cash-starved firms release one. Payroll pays each worker the
// firm's wage scaled by skill, gross of income tax.
type Labor struct {
	// PayrollCover is how many cycles of payroll a firm must hold in cash
	// before it hires another worker.
	PayrollCover float64
	// FireBelow is the profitability level at which a firm sheds a worker.
	FireBelow float64
}

func NewLabor() *Labor {
	return &Labor{PayrollCover: 3, FireBelow: -0.05}
}

func (l *Labor) Match(api sim.API) {
	// Deterministic pool: households in registration order.
	var idle []*sim.Household
	for _, h := range api.Households() {
		if !h.Employed() {
			idle = append(idle, h)
		}
	}

	for _, f := range api.Firms() {
		if f.Bankrupt {
			continue
		}
		payroll := f.Wage * float64(len(f.Employees)+1)
		switch {
		case f.Profitability < l.FireBelow && len(f.Employees) > 0:
			worker := f.Employees[len(f.Employees)-1]
			f.Employees = f.Employees[:len(f.Employees)-1]
			if h := api.HouseholdOf(worker); h != nil {
				h.Employer = 0
			}
		case len(idle) > 0 && f.Acct.AvailableCash() >= payroll*l.PayrollCover:
			h := idle[0]
			idle = idle[1:]
			h.Employer = f.Acct.ID
			f.Employees = append(f.Employees, h.Acct.ID)
		}
	}
}

func (l *Labor) Payroll(api sim.API) {
	for _, f := range api.Firms() {
		if f.Bankrupt {
			continue
		}
		for _, worker := range f.Employees {
			h := api.HouseholdOf(worker)
			if h == nil {
				continue
			}
			api.PayWage(f.Acct.ID, worker, f.Wage*h.Skill)
		}
	}
}
