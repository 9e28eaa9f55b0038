package api

import (
	"github.com/minsu-cho/agorasim/pkg/econ/audit"
	"github.com/minsu-cho/agorasim/pkg/econ/bank"
	"github.com/minsu-cho/agorasim/pkg/econ/book"
	"github.com/minsu-cho/agorasim/pkg/econ/sim"
)

// Update is one immutable frame of simulation state. The scheduler thread
// builds it between cycles and pushes it to the server; handler goroutines
// only ever read published frames, never the live world.
type Update struct {
	Macro    sim.Snapshot
	Books    []BookDepth
	Candles  map[string][]book.Candle
	Bank     []bank.HistoryEntry
	Findings []audit.Finding
}

// PriceLevel is one aggregated depth level.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// BookDepth is the resting state of one item's book.
type BookDepth struct {
	Item       string       `json:"item"`
	LastPrice  float64      `json:"lastPrice"`
	Spread     float64      `json:"spread"`
	Volatility float64      `json:"volatility"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
}

// MacroInfo is the JSON shape of the macro snapshot.
type MacroInfo struct {
	Tick             uint64             `json:"tick"`
	Day              uint64             `json:"day"`
	Phase            string             `json:"phase"`
	Sentiment        float64            `json:"sentiment"`
	Health           float64            `json:"health"`
	GDP              float64            `json:"gdp"`
	CPI              float64            `json:"cpi"`
	Inflation        float64            `json:"inflation"`
	Unemployment     float64            `json:"unemployment"`
	Velocity         float64            `json:"velocity"`
	MoneyBase        float64            `json:"moneyBase"`
	Deposits         float64            `json:"deposits"`
	TotalLoans       float64            `json:"totalLoans"`
	ReserveRatio     float64            `json:"reserveRatio"`
	Leverage         float64            `json:"leverage"`
	WrittenOff       float64            `json:"writtenOff"`
	LoanRate         float64            `json:"loanRate"`
	DepositRate      float64            `json:"depositRate"`
	YieldCurve       [3]float64         `json:"yieldCurve"`
	LendingSuspended bool               `json:"lendingSuspended"`
	Prices           map[string]float64 `json:"prices"`
	Employed         int                `json:"employed"`
	LaborForce       int                `json:"laborForce"`
	ActiveFirms      int                `json:"activeFirms"`
	BankruptFirms    int                `json:"bankruptFirms"`
	AvgFirmMargin    float64            `json:"avgFirmMargin"`
	AvgFirmCash      float64            `json:"avgFirmCash"`
	AvgTobinQ        float64            `json:"avgTobinQ"`
	Findings         int                `json:"findings"`
}

// CandleInfo is one daily OHLCV bar.
type CandleInfo struct {
	Day    uint64  `json:"day"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// BankDay is one balance-sheet history row.
type BankDay struct {
	Day         uint64  `json:"day"`
	LoanRate    float64 `json:"loanRate"`
	DepositRate float64 `json:"depositRate"`
	Reserves    float64 `json:"reserves"`
	Loans       float64 `json:"loans"`
	Deposits    float64 `json:"deposits"`
}

// FindingInfo is one audit finding.
type FindingInfo struct {
	Tick     uint64 `json:"tick"`
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
}

// MacroUpdate is the WebSocket frame pushed on the "macro" channel.
type MacroUpdate struct {
	Type  string    `json:"type"`
	Macro MacroInfo `json:"macro"`
}

// BookUpdate is the WebSocket frame pushed on "book:<item>" channels.
type BookUpdate struct {
	Type string    `json:"type"`
	Book BookDepth `json:"book"`
}

// WSSubscribeRequest is the client -> server subscription message.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func macroInfo(s sim.Snapshot) MacroInfo {
	prices := make(map[string]float64, len(s.Prices))
	for id, p := range s.Prices {
		prices[string(id)] = p
	}
	return MacroInfo{
		Tick:             s.Tick,
		Day:              s.Day,
		Phase:            s.Phase.String(),
		Sentiment:        s.Sentiment,
		Health:           s.Health,
		GDP:              s.GDP,
		CPI:              s.CPI,
		Inflation:        s.Inflation,
		Unemployment:     s.Unemployment,
		Velocity:         s.Velocity,
		MoneyBase:        s.MoneyBase,
		Deposits:         s.Deposits,
		TotalLoans:       s.TotalLoans,
		ReserveRatio:     s.ReserveRatio,
		Leverage:         s.Leverage,
		WrittenOff:       s.WrittenOff,
		LoanRate:         s.LoanRate,
		DepositRate:      s.DepositRate,
		YieldCurve:       s.YieldCurve,
		LendingSuspended: s.LendingSuspended,
		Prices:           prices,
		Employed:         s.Employed,
		LaborForce:       s.LaborForce,
		ActiveFirms:      s.ActiveFirms,
		BankruptFirms:    s.BankruptFirms,
		AvgFirmMargin:    s.AvgFirmMargin,
		AvgFirmCash:      s.AvgFirmCash,
		AvgTobinQ:        s.AvgTobinQ,
		Findings:         s.Findings,
	}
}

// SnapshotWorld assembles a full update frame. Must run on the scheduler
// thread, between cycles.
func SnapshotWorld(w *sim.World) Update {
	u := Update{
		Macro:    w.MacroSnapshot(),
		Candles:  make(map[string][]book.Candle),
		Bank:     append([]bank.HistoryEntry(nil), w.Bank().History()...),
		Findings: append([]audit.Finding(nil), w.Auditor().Findings()...),
	}
	for _, it := range w.Catalog().List() {
		b := w.Engine().Book(it.ID)
		if b == nil {
			continue
		}
		depth := BookDepth{
			Item:       string(it.ID),
			LastPrice:  b.LastPrice(),
			Spread:     b.Spread(),
			Volatility: b.Volatility(),
		}
		for _, lv := range b.BidLevels() {
			depth.Bids = append(depth.Bids, PriceLevel{Price: lv.Price, Size: lv.Qty})
		}
		for _, lv := range b.AskLevels() {
			depth.Asks = append(depth.Asks, PriceLevel{Price: lv.Price, Size: lv.Qty})
		}
		u.Books = append(u.Books, depth)
		u.Candles[string(it.ID)] = append([]book.Candle(nil), b.Candles()...)
	}
	return u
}
