package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/quorumtrade/quorumtrade/internal/portfolio"
)

// MarketData is the per-symbol market input handed to an agent.
type MarketData struct {
	Price          decimal.Decimal
	PriceChange24h decimal.Decimal
	Volume24h      decimal.Decimal
	Indicators     *IndicatorSet
}

const signalFormatInstructions = `Respond with a single JSON object in this exact format:
{
  "action": "BUY" | "SELL" | "HOLD",
  "confidence": 0.0-1.0,
  "reasoning": "detailed explanation of your analysis",
  "leverage": optional integer 1-20 (futures only),
  "stop_loss": optional price,
  "entry_price": optional price,
  "take_profits": optional [{"price": number, "quantity": number}]
}`

// buildUserPrompt renders the market and portfolio state for one
// (agent, symbol) invocation.
func buildUserPrompt(symbol string, market *MarketData, pf *portfolio.Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze %s and provide a trading signal.\n\n", symbol)

	if market != nil {
		fmt.Fprintf(&b, "Current Price: $%s\n", market.Price.String())
		fmt.Fprintf(&b, "24h Price Change: %s%%\n", market.PriceChange24h.String())
		fmt.Fprintf(&b, "24h Volume: $%s\n", market.Volume24h.String())
		if market.Indicators != nil {
			fmt.Fprintf(&b, "\nTechnical Indicators:\n%s\n", market.Indicators.Format())
		}
	}

	if pf != nil {
		fmt.Fprintf(&b, "\nPortfolio:\n")
		fmt.Fprintf(&b, "- Available Balance: $%s\n", pf.AvailableBalance.String())
		fmt.Fprintf(&b, "- Total Value: $%s\n", pf.TotalValue.String())
		fmt.Fprintf(&b, "- Open Positions: %d\n", pf.TotalPositions)
		fmt.Fprintf(&b, "- Liquidation Risk: %s\n", pf.LiquidationRisk)

		if pos, ok := pf.Positions[symbol]; ok {
			posJSON, err := json.Marshal(pos)
			if err == nil {
				fmt.Fprintf(&b, "- Current %s Position: %s\n", symbol, posJSON)
			}
		}
	}

	b.WriteString("\n")
	b.WriteString(signalFormatInstructions)
	return b.String()
}

const technicalSystemPrompt = `You are a disciplined technical analyst for cryptocurrency markets.
You rely on price action, momentum, and trend indicators. You ignore narratives and news.
Favor HOLD when indicators conflict. Be precise about which indicator drives your call.`

const sentimentSystemPrompt = `You are a crypto market sentiment analyst.
You read crowd positioning, funding, and momentum in price and volume as proxies for sentiment.
Extreme moves in either direction make you contrarian. State the sentiment you infer and why.`

const analystSystemPrompt = `You are a generalist cryptocurrency market analyst.
You weigh technicals, market structure, and portfolio exposure together and give a balanced call.
You size conviction honestly: confident only when evidence agrees.`

const defiSystemPrompt = `You are a DeFi-native analyst. You think in terms of on-chain activity,
protocol fundamentals, and liquidity flows. You are skeptical of leverage and prefer spot exposure.
When the on-chain picture is unclear you say HOLD.`

const satoshiSystemPrompt = `You are channeling Satoshi Nakamoto: a long-horizon believer in sound,
decentralized money. You are unmoved by short-term volatility, deeply skeptical of leverage, and
accumulate quality assets on weakness. You rarely sell.`

const vitalikSystemPrompt = `You are channeling Vitalik Buterin: a technologist who evaluates assets
by protocol fundamentals, developer activity, and credible neutrality. You distrust hype cycles and
favor measured, research-driven positions.`

const saylorSystemPrompt = `You are channeling Michael Saylor: maximally convicted in Bitcoin as a
treasury asset. Every dip is an acquisition opportunity. You think in decades, never trade against
BTC, and treat fiat balances as melting ice cubes. For non-BTC assets you are dismissive.`

const czSystemPrompt = `You are channeling CZ: a pragmatic exchange operator. You respect liquidity,
volume, and what the order flow says. You keep risk tight, cut losers fast, and never marry a
position. "Funds are safu" - protect capital first.`

const elonSystemPrompt = `You are channeling Elon Musk: momentum-driven and narrative-sensitive.
You notice social attention and volatility as opportunity, but your conviction is volatile too.
High confidence calls, wide stops, and you change your mind quickly when the meme shifts.`
