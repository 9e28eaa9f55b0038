package params

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Ticks groups the three scheduler frequencies, expressed as tick moduli.
// A sub-system runs whenever tick % rate == 0.
type Ticks struct {
	// MarketRate gates stale-order pruning.
	MarketRate uint64 `yaml:"market_rate"`
	// DailyRate gates the full daily pipeline (policy, bank, accounting, audit).
	DailyRate uint64 `yaml:"daily_rate"`
	// MacroRate gates valuation, fiscal policy and business-cycle updates.
	MacroRate uint64 `yaml:"macro_rate"`
}

// Numeric holds the tolerance constants the kernel treats as "effectively zero".
// These are empirical damage-control bounds against float drift, not business
// rules; the auditor clamps and logs anything outside them.
type Numeric struct {
	// QtyEpsilon: order remaining quantity at or below this counts as filled.
	QtyEpsilon float64 `yaml:"qty_epsilon"`
	// MoneyTolerance: allowed absolute drift between observed and tracked M0
	// before the auditor reports a leak.
	MoneyTolerance float64 `yaml:"money_tolerance"`
	// PriceFloor: corrupted (negative/non-finite) prices are clamped here.
	PriceFloor float64 `yaml:"price_floor"`
}

// Market holds matching-engine tunables.
type Market struct {
	// MarketBuyBuffer multiplies best-ask when locking escrow for a market buy,
	// since the true execution price is unknown until the walk completes.
	MarketBuyBuffer float64 `yaml:"market_buy_buffer"`
	// OrderTTLTicks: resting orders older than this are cancelled and refunded.
	OrderTTLTicks uint64 `yaml:"order_ttl_ticks"`
	// ConsumptionTaxRate is deducted from seller proceeds into the treasury.
	ConsumptionTaxRate float64 `yaml:"consumption_tax_rate"`
	// TradeHistoryCap bounds each book's trade ring buffer.
	TradeHistoryCap int `yaml:"trade_history_cap"`
	// CandleHistoryCap bounds each item's daily OHLCV history.
	CandleHistoryCap int `yaml:"candle_history_cap"`
	// VolatilityWindow: number of recent trades used for the rolling
	// spread/volatility metrics.
	VolatilityWindow int `yaml:"volatility_window"`
}

// Regime selects the monetary policy strategy.
type Regime string

const (
	RegimeReserveRatio Regime = "reserve_ratio"
	RegimePolicyRate   Regime = "policy_rate"
)

// Bank holds central-bank tunables shared by both regimes plus the
// regime-specific knobs.
type Bank struct {
	Regime Regime `yaml:"regime"`

	// Rate band applied after every policy step.
	MinRate float64 `yaml:"min_rate"`
	MaxRate float64 `yaml:"max_rate"`

	// DepositSpread: deposit rate = loan rate - spread, floored at zero.
	DepositSpread float64 `yaml:"deposit_spread"`

	// Reserve-ratio regime: proportional control toward ReserveTarget.
	ReserveTarget float64 `yaml:"reserve_target"`
	ReserveGain   float64 `yaml:"reserve_gain"`

	// Policy-rate regime (Taylor rule).
	NeutralRealRate  float64 `yaml:"neutral_real_rate"`
	TargetInflation  float64 `yaml:"target_inflation"`
	InflationGain    float64 `yaml:"inflation_gain"`
	OutputGapGain    float64 `yaml:"output_gap_gain"`
	NaturalUnemp     float64 `yaml:"natural_unemployment"`
	OkunCoefficient  float64 `yaml:"okun_coefficient"`
	RateSmoothing    float64 `yaml:"rate_smoothing"`
	TermSlope        float64 `yaml:"term_slope"`
	ReserveRequired  float64 `yaml:"reserve_required"`
	CARTrigger       float64 `yaml:"car_trigger"`
	LoanRiskWeight   float64 `yaml:"loan_risk_weight"`

	// Lending pass.
	LoanIncrement    float64 `yaml:"loan_increment"`
	LoanTermTicks    uint64  `yaml:"loan_term_ticks"`
	BaseRiskPremium  float64 `yaml:"base_risk_premium"`
	RepayCashBuffer  float64 `yaml:"repay_cash_buffer"`
	InsolvencyBuffer float64 `yaml:"insolvency_buffer"`

	// Household cash sweep thresholds.
	SweepAbove float64 `yaml:"sweep_above"`
	SweepBelow float64 `yaml:"sweep_below"`

	// HistoryCap bounds the bank's per-day history ring.
	HistoryCap int `yaml:"history_cap"`
}

// World holds bootstrap sizes and endowments for a fresh simulation.
type World struct {
	Households int `yaml:"households"`
	Firms      int `yaml:"firms"`
	Farmers    int `yaml:"farmers"`

	HouseholdCash float64 `yaml:"household_cash"`
	FirmCash      float64 `yaml:"firm_cash"`
	BankReserves  float64 `yaml:"bank_reserves"`
	TreasuryCash  float64 `yaml:"treasury_cash"`

	// InitialWage seeds every firm's wage rate; labor dynamics move it after.
	InitialWage float64 `yaml:"initial_wage"`
	// SharesOutstanding: equity units each firm lists at build.
	SharesOutstanding float64 `yaml:"shares_outstanding"`
}

// Fiscal holds treasury-side tunables used by the reference fiscal module.
type Fiscal struct {
	IncomeTaxRate       float64 `yaml:"income_tax_rate"`
	UnemploymentBenefit float64 `yaml:"unemployment_benefit"`
}

// Audit holds auditor tunables.
type Audit struct {
	// StagnationWindow: audits with GDP unchanged across this many cycles
	// raise a stagnation warning.
	StagnationWindow int `yaml:"stagnation_window"`
	// FindingsCap bounds the auditor's findings ring.
	FindingsCap int `yaml:"findings_cap"`
}

// Config is the full tunable surface of the kernel.
type Config struct {
	Seed    int64   `yaml:"seed"`
	Ticks   Ticks   `yaml:"ticks"`
	Numeric Numeric `yaml:"numeric"`
	Market  Market  `yaml:"market"`
	Bank    Bank    `yaml:"bank"`
	World   World   `yaml:"world"`
	Fiscal  Fiscal  `yaml:"fiscal"`
	Audit   Audit   `yaml:"audit"`
}

// Default returns the devnet parameter set. Every value can be overridden per
// field from the environment (LoadFromEnv) or wholesale from a YAML scenario
// file (LoadFile).
func Default() Config {
	return Config{
		Seed: 1,
		Ticks: Ticks{
			MarketRate: 5,
			DailyRate:  20,
			MacroRate:  100,
		},
		Numeric: Numeric{
			QtyEpsilon:     1e-4,
			MoneyTolerance: 1.0,
			PriceFloor:     0.01,
		},
		Market: Market{
			MarketBuyBuffer:    1.10,
			OrderTTLTicks:      60,
			ConsumptionTaxRate: 0.05,
			TradeHistoryCap:    256,
			CandleHistoryCap:   128,
			VolatilityWindow:   32,
		},
		Bank: Bank{
			Regime:           RegimeReserveRatio,
			MinRate:          0.001,
			MaxRate:          0.25,
			DepositSpread:    0.02,
			ReserveTarget:    0.40,
			ReserveGain:      0.5,
			NeutralRealRate:  0.02,
			TargetInflation:  0.02,
			InflationGain:    0.5,
			OutputGapGain:    0.5,
			NaturalUnemp:     0.05,
			OkunCoefficient:  2.0,
			RateSmoothing:    0.3,
			TermSlope:        0.01,
			ReserveRequired:  0.10,
			CARTrigger:       0.08,
			LoanRiskWeight:   1.0,
			LoanIncrement:    100.0,
			LoanTermTicks:    400,
			BaseRiskPremium:  0.01,
			RepayCashBuffer:  50.0,
			InsolvencyBuffer: -50.0,
			SweepAbove:       200.0,
			SweepBelow:       20.0,
			HistoryCap:       365,
		},
		World: World{
			Households:        40,
			Firms:             6,
			Farmers:           4,
			HouseholdCash:     100.0,
			FirmCash:          500.0,
			BankReserves:      5000.0,
			TreasuryCash:      1000.0,
			InitialWage:       8.0,
			SharesOutstanding: 100.0,
		},
		Fiscal: Fiscal{
			IncomeTaxRate:       0.10,
			UnemploymentBenefit: 5.0,
		},
		Audit: Audit{
			StagnationWindow: 5,
			FindingsCap:      512,
		},
	}
}

// LoadFile reads a YAML scenario file over the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("SIM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = n
		}
	}
	if v := os.Getenv("SIM_MARKET_RATE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			cfg.Ticks.MarketRate = n
		}
	}
	if v := os.Getenv("SIM_DAILY_RATE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			cfg.Ticks.DailyRate = n
		}
	}
	if v := os.Getenv("SIM_MACRO_RATE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			cfg.Ticks.MacroRate = n
		}
	}
	if v := os.Getenv("SIM_BANK_REGIME"); v != "" {
		switch Regime(v) {
		case RegimeReserveRatio, RegimePolicyRate:
			cfg.Bank.Regime = Regime(v)
		}
	}
	if v := os.Getenv("SIM_RESERVE_TARGET"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Bank.ReserveTarget = f
		}
	}
	if v := os.Getenv("SIM_ORDER_TTL_TICKS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			cfg.Market.OrderTTLTicks = n
		}
	}

	return cfg
}

// Validate rejects parameter sets the kernel cannot run with.
func (c *Config) Validate() error {
	if c.Ticks.MarketRate == 0 || c.Ticks.DailyRate == 0 || c.Ticks.MacroRate == 0 {
		return fmt.Errorf("tick rates must be positive: %+v", c.Ticks)
	}
	if c.Numeric.QtyEpsilon <= 0 {
		return fmt.Errorf("qty epsilon must be positive: %g", c.Numeric.QtyEpsilon)
	}
	if c.Numeric.PriceFloor <= 0 {
		return fmt.Errorf("price floor must be positive: %g", c.Numeric.PriceFloor)
	}
	if c.Market.MarketBuyBuffer < 1.0 {
		return fmt.Errorf("market buy buffer must be >= 1: %g", c.Market.MarketBuyBuffer)
	}
	if c.Market.ConsumptionTaxRate < 0 || c.Market.ConsumptionTaxRate >= 1 {
		return fmt.Errorf("consumption tax rate out of range: %g", c.Market.ConsumptionTaxRate)
	}
	if c.Bank.MinRate < 0 || c.Bank.MaxRate <= c.Bank.MinRate {
		return fmt.Errorf("bad rate band: [%g, %g]", c.Bank.MinRate, c.Bank.MaxRate)
	}
	if c.Bank.ReserveTarget <= 0 || c.Bank.ReserveTarget > 1 {
		return fmt.Errorf("reserve target out of range: %g", c.Bank.ReserveTarget)
	}
	if c.World.Households <= 0 || c.World.Firms <= 0 {
		return fmt.Errorf("world needs at least one household and one firm: %+v", c.World)
	}
	if c.World.Farmers > c.World.Households {
		return fmt.Errorf("farmers (%d) cannot exceed households (%d)", c.World.Farmers, c.World.Households)
	}
	switch c.Bank.Regime {
	case RegimeReserveRatio, RegimePolicyRate:
	default:
		return fmt.Errorf("unknown monetary regime: %q", c.Bank.Regime)
	}
	return nil
}
