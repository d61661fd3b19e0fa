package db

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TradingMode distinguishes simulated from live execution.
type TradingMode string

const (
	TradingModePaper TradingMode = "paper"
	TradingModeReal  TradingMode = "real"
)

// TradingType selects the venue family a council trades on.
type TradingType string

const (
	TradingTypeFutures TradingType = "futures"
	TradingTypeSpot    TradingType = "spot"
)

// PositionSide is the direction of a futures position. BOTH appears on
// one-way venue accounts and carries a signed amount.
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
	PositionSideBoth  PositionSide = "BOTH"
)

// PositionStatus is the lifecycle state of a futures position.
type PositionStatus string

const (
	PositionStatusOpen       PositionStatus = "OPEN"
	PositionStatusClosed     PositionStatus = "CLOSED"
	PositionStatusLiquidated PositionStatus = "LIQUIDATED"
)

// HoldingStatus is the lifecycle state of a spot holding.
type HoldingStatus string

const (
	HoldingStatusActive HoldingStatus = "ACTIVE"
	HoldingStatusClosed HoldingStatus = "CLOSED"
)

// OrderSide is the venue order side.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType is the venue order type.
type OrderType string

const (
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeStop             OrderType = "STOP"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
	OrderTypeTakeProfit       OrderType = "TAKE_PROFIT"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// OrderStatus is the venue-reported order state.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// RunStatus is the lifecycle state of a council run.
type RunStatus string

const (
	RunStatusIdle       RunStatus = "IDLE"
	RunStatusInProgress RunStatus = "IN_PROGRESS"
	RunStatusCompleted  RunStatus = "COMPLETED"
	RunStatusFailed     RunStatus = "FAILED"
)

// DecisionKind is the directional outcome of a consensus round.
type DecisionKind string

const (
	DecisionBuy  DecisionKind = "BUY"
	DecisionSell DecisionKind = "SELL"
	DecisionHold DecisionKind = "HOLD"
)

// MessageType classifies debate stream entries.
type MessageType string

const (
	MessageTypeAnalysis          MessageType = "analysis"
	MessageTypeTechnicalAnalysis MessageType = "technical_analysis"
	MessageTypeSentimentAnalysis MessageType = "sentiment_analysis"
	MessageTypePersonaAnalysis   MessageType = "persona_analysis"
	MessageTypeRiskAnalysis      MessageType = "risk_analysis"
	MessageTypeConsensus         MessageType = "consensus"
)

// Sentiment is the directional tone of a debate message.
type Sentiment string

const (
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentNeutral Sentiment = "neutral"
)

// Council is a persistent configuration of analysis agents with a
// capital book and a trading mode.
type Council struct {
	ID      int64           `db:"id"`
	OwnerID *int64          `db:"owner_id"` // nil means system-owned
	Name    string          `db:"name"`
	Config  json.RawMessage `db:"config"` // agents list + connections graph

	TradingMode TradingMode `db:"trading_mode"`
	TradingType TradingType `db:"trading_type"`

	InitialCapital    decimal.Decimal `db:"initial_capital"`
	AvailableBalance  decimal.Decimal `db:"available_balance"`
	UsedBalance       decimal.Decimal `db:"used_balance"`
	TotalAccountValue decimal.Decimal `db:"total_account_value"`

	RealizedPnL      decimal.Decimal `db:"realized_pnl"`
	UnrealizedProfit decimal.Decimal `db:"unrealized_profit"`
	TotalFees        decimal.Decimal `db:"total_fees"`
	TotalFundingFees decimal.Decimal `db:"total_funding_fees"`
	NetPnL           decimal.Decimal `db:"net_pnl"`
	TotalInvested    decimal.Decimal `db:"total_invested"`

	AvgLeverage   decimal.Decimal `db:"avg_leverage"`
	AvgConfidence decimal.Decimal `db:"avg_confidence"`
	BiggestWin    decimal.Decimal `db:"biggest_win"`
	BiggestLoss   decimal.Decimal `db:"biggest_loss"`
	LongHoldPct   decimal.Decimal `db:"long_hold_pct"`
	ShortHoldPct  decimal.Decimal `db:"short_hold_pct"`
	FlatHoldPct   decimal.Decimal `db:"flat_hold_pct"`

	OpenFuturesCount   int `db:"open_futures_count"`
	ClosedFuturesCount int `db:"closed_futures_count"`
	ActiveSpotHoldings int `db:"active_spot_holdings"`

	// Legacy columns kept in sync by the metrics engine.
	CurrentCapital     decimal.Decimal `db:"current_capital"`
	TotalPnL           decimal.Decimal `db:"total_pnl"`
	TotalPnLPercentage decimal.Decimal `db:"total_pnl_percentage"`
	WinRate            decimal.Decimal `db:"win_rate"`
	TotalTrades        int             `db:"total_trades"`

	IsSystem     bool   `db:"is_system"`
	IsPublic     bool   `db:"is_public"`
	IsTemplate   bool   `db:"is_template"`
	ForkedFromID *int64 `db:"forked_from_id"`

	LastExecutedAt *time.Time `db:"last_executed_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// CouncilConfig is the shape of Council.Config.
type CouncilConfig struct {
	Agents      []AgentRef       `json:"agents"`
	Connections ConnectionsGraph `json:"connections"`
}

// AgentRef names one configured agent.
type AgentRef struct {
	AgentKey string `json:"agent_key"`
	Role     string `json:"role,omitempty"`
}

// ConnectionsGraph describes agent execution edges for non-system
// councils.
type ConnectionsGraph struct {
	Edges []ConnectionEdge `json:"edges"`
}

// ConnectionEdge is one directed edge of the agent graph.
type ConnectionEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Wallet holds venue credentials for a council. At most one per council
// (unique index on council_id); the council finds it by lookup rather
// than a stored back-pointer.
type Wallet struct {
	ID              int64     `db:"id"`
	CouncilID       int64     `db:"council_id"`
	Exchange        string    `db:"exchange"`
	APIKey          string    `db:"api_key"`
	SecretKey       string    `db:"secret_key"`
	ContractAddress *string   `db:"contract_address"`
	CreatedAt       time.Time `db:"created_at"`
}

// TakeProfitLevel is one exit-plan target with its venue order link.
type TakeProfitLevel struct {
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity,omitempty"`
	VenueOrderID *string         `json:"venue_order_id,omitempty"`
}

// FuturesPosition is a leveraged directional exposure. PositionAmt is
// stored as the absolute quantity with an explicit side; BOTH rows may
// carry a signed amount and are normalized at read time. A closed row
// preserves its final position_amt as history.
type FuturesPosition struct {
	ID        int64        `db:"id"`
	CouncilID int64        `db:"council_id"`
	Symbol    string       `db:"symbol"`
	Side      PositionSide `db:"position_side"`

	PositionAmt      decimal.Decimal `db:"position_amt"`
	EntryPrice       decimal.Decimal `db:"entry_price"`
	MarkPrice        decimal.Decimal `db:"mark_price"`
	LiquidationPrice decimal.Decimal `db:"liquidation_price"`
	Leverage         int             `db:"leverage"`
	MarginType       string          `db:"margin_type"` // ISOLATED or CROSSED
	IsolatedMargin   decimal.Decimal `db:"isolated_margin"`
	Notional         decimal.Decimal `db:"notional"`

	UnrealizedProfit decimal.Decimal  `db:"unrealized_profit"`
	RealizedPnL      decimal.Decimal  `db:"realized_pnl"`
	FeesPaid         decimal.Decimal  `db:"fees_paid"`
	FundingFees      decimal.Decimal  `db:"funding_fees"`
	Confidence       *decimal.Decimal `db:"confidence"`

	StopLoss    *decimal.Decimal `db:"stop_loss"`
	TakeProfits json.RawMessage  `db:"take_profits"` // up to three TakeProfitLevel entries

	Status   PositionStatus `db:"status"`
	OpenedAt time.Time      `db:"opened_at"`
	ClosedAt *time.Time     `db:"closed_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

const (
	MarginTypeIsolated = "ISOLATED"
	MarginTypeCrossed  = "CROSSED"
)

// SpotHolding is an unleveraged asset balance with weighted-average
// cost. Invariant: total = free + locked, total >= 0; total = 0 forces
// CLOSED with closed_at set.
type SpotHolding struct {
	ID         int64  `db:"id"`
	CouncilID  int64  `db:"council_id"`
	Symbol     string `db:"symbol"`
	BaseAsset  string `db:"base_asset"`
	QuoteAsset string `db:"quote_asset"`

	Free        decimal.Decimal `db:"free"`
	Locked      decimal.Decimal `db:"locked"`
	Total       decimal.Decimal `db:"total"`
	AverageCost decimal.Decimal `db:"average_cost"`
	TotalCost   decimal.Decimal `db:"total_cost"`

	UnrealizedPnL decimal.Decimal `db:"unrealized_pnl"`

	Platform    string      `db:"platform"`
	TradingMode TradingMode `db:"trading_mode"`

	Status   HoldingStatus `db:"status"`
	OpenedAt time.Time     `db:"opened_at"`
	ClosedAt *time.Time    `db:"closed_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Order is the unified order record for futures and spot. Position and
// holding links are weak (SET NULL on deletion).
type Order struct {
	ID        int64  `db:"id"`
	CouncilID int64  `db:"council_id"`
	Symbol    string `db:"symbol"`

	Side         OrderSide     `db:"side"`
	Type         OrderType     `db:"type"`
	PositionSide *PositionSide `db:"position_side"` // futures only

	OrigQty     decimal.Decimal  `db:"orig_qty"`
	ExecutedQty decimal.Decimal  `db:"executed_qty"`
	Price       *decimal.Decimal `db:"price"`
	StopPrice   *decimal.Decimal `db:"stop_price"`
	AvgPrice    *decimal.Decimal `db:"avg_price"`

	Status OrderStatus `db:"status"`

	PositionID *int64 `db:"position_id"`
	HoldingID  *int64 `db:"holding_id"`

	Platform    string      `db:"platform"`
	TradingMode TradingMode `db:"trading_mode"`
	TradingType TradingType `db:"trading_type"`

	Commission      *decimal.Decimal `db:"commission"`
	CommissionAsset *string          `db:"commission_asset"`
	VenueOrderID    *string          `db:"venue_order_id"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// PnLSnapshot ties a position or holding to a point-in-time valuation.
type PnLSnapshot struct {
	ID         int64  `db:"id"`
	CouncilID  int64  `db:"council_id"`
	PositionID *int64 `db:"position_id"`
	HoldingID  *int64 `db:"holding_id"`

	SnapshotTime  time.Time       `db:"snapshot_time"`
	MarkPrice     decimal.Decimal `db:"mark_price"`
	NotionalValue decimal.Decimal `db:"notional_value"`
	UnrealizedPnL decimal.Decimal `db:"unrealized_pnl"`
	PnLPercentage decimal.Decimal `db:"pnl_percentage"`

	LiquidationDistancePct *decimal.Decimal `db:"liquidation_distance_pct"`
	MarginRatio            *decimal.Decimal `db:"margin_ratio"`
}

// CouncilRun records one orchestrator-invoked cycle.
type CouncilRun struct {
	ID        int64  `db:"id"`
	CouncilID int64  `db:"council_id"`
	UserID    *int64 `db:"user_id"`

	TradingMode TradingMode `db:"trading_mode"`
	Symbols     []string    `db:"symbols"`
	Status      RunStatus   `db:"status"`
	RunNumber   int         `db:"run_number"`

	Request json.RawMessage `db:"request"`
	Result  json.RawMessage `db:"result"`

	StartedAt    time.Time  `db:"started_at"`
	CompletedAt  *time.Time `db:"completed_at"`
	ErrorMessage *string    `db:"error_message"`
}

// CouncilRunCycle captures one pipeline pass within a run.
type CouncilRunCycle struct {
	ID        int64 `db:"id"`
	RunID     int64 `db:"run_id"`
	CouncilID int64 `db:"council_id"`

	Status        RunStatus `db:"status"`
	TriggerReason string    `db:"trigger_reason"`

	AnalystSignals     json.RawMessage `db:"analyst_signals"`
	TradingDecisions   json.RawMessage `db:"trading_decisions"`
	ExecutedTrades     json.RawMessage `db:"executed_trades"`
	PortfolioSnapshot  json.RawMessage `db:"portfolio_snapshot"`
	PerformanceMetrics json.RawMessage `db:"performance_metrics"`

	LLMCalls      int             `db:"llm_calls"`
	APICalls      int             `db:"api_calls"`
	EstimatedCost decimal.Decimal `db:"estimated_cost"`

	StartedAt   time.Time  `db:"started_at"`
	CompletedAt *time.Time `db:"completed_at"`
}

// ConsensusDecision is the per-symbol outcome of a debate round.
// Invariant: votes_buy + votes_sell + votes_hold = total_votes.
type ConsensusDecision struct {
	ID        int64  `db:"id"`
	CouncilID int64  `db:"council_id"`
	RunID     *int64 `db:"run_id"`
	CycleID   *int64 `db:"cycle_id"`
	Symbol    string `db:"symbol"`

	Decision   DecisionKind    `db:"decision"`
	Confidence decimal.Decimal `db:"confidence"`
	Threshold  decimal.Decimal `db:"threshold"`

	VotesBuy   int             `db:"votes_buy"`
	VotesSell  int             `db:"votes_sell"`
	VotesHold  int             `db:"votes_hold"`
	TotalVotes int             `db:"total_votes"`
	AgentVotes json.RawMessage `db:"agent_votes"` // agent_key -> vote

	MarketPrice      decimal.Decimal `db:"market_price"`
	MarketConditions json.RawMessage `db:"market_conditions"`

	WasExecuted     bool    `db:"was_executed"`
	OrderID         *int64  `db:"order_id"`
	ExecutionReason string  `db:"execution_reason"`
	Reasoning       string  `db:"reasoning"`

	CreatedAt time.Time `db:"created_at"`
}

// AgentDebateMessage is one entry of the append-only per-council debate
// stream.
type AgentDebateMessage struct {
	ID        int64 `db:"id"`
	CouncilID int64 `db:"council_id"`

	AgentName   string      `db:"agent_name"`
	MessageType MessageType `db:"message_type"`
	Sentiment   Sentiment   `db:"sentiment"`
	Content     string      `db:"content"`

	MarketSymbol *string         `db:"market_symbol"`
	Confidence   decimal.Decimal `db:"confidence"`
	DebateRound  int             `db:"debate_round"`

	CreatedAt time.Time `db:"created_at"`
}

// CouncilPerformanceSnapshot is the account-level time series appended
// after each metrics recomputation.
type CouncilPerformanceSnapshot struct {
	ID        int64     `db:"id"`
	CouncilID int64     `db:"council_id"`
	Timestamp time.Time `db:"timestamp"`

	TotalValue    decimal.Decimal `db:"total_value"`
	PnL           decimal.Decimal `db:"pnl"`
	PnLPercentage decimal.Decimal `db:"pnl_percentage"`
	WinRate       decimal.Decimal `db:"win_rate"`
	TotalTrades   int             `db:"total_trades"`
	OpenPositions int             `db:"open_positions"`
}

// HourlyPerformance is one bucket of the cross-council hourly
// aggregation.
type HourlyPerformance struct {
	Hour          time.Time       `db:"hour"`
	CouncilCount  int             `db:"council_count"`
	AvgTotalValue decimal.Decimal `db:"avg_total_value"`
	TotalPnL      decimal.Decimal `db:"total_pnl"`
}

// ParseConfig decodes the council configuration blob.
func (c *Council) ParseConfig() (*CouncilConfig, error) {
	var cfg CouncilConfig
	if len(c.Config) == 0 {
		return &cfg, nil
	}
	if err := json.Unmarshal(c.Config, &cfg); err != nil {
		return nil, wrapError("parse council config", err)
	}
	return &cfg, nil
}
