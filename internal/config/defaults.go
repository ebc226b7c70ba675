package config

// defaultKeywords is the built-in topic taxonomy. Operators usually replace
// it wholesale via the config file; the built-in set keeps the bot useful
// with zero file configuration.
func defaultKeywords() map[string][]string {
	return map[string][]string{
		"crypto": {
			"crypto", "cryptocurrency", "blockchain", "bitcoin", "btc",
			"ethereum", "eth", "ton", "toncoin", "the open network",
			"usdt", "tether", "usdc", "bnb", "solana", "sol", "cardano",
			"xrp", "ripple", "dogecoin", "doge", "shiba", "polygon",
			"avalanche", "polkadot", "chainlink", "uniswap", "litecoin",
			"stellar", "cosmos", "near protocol", "arbitrum", "optimism",
			"defi", "nft", "staking", "mining", "satoshi", "gas fee",
			"smart contract", "dapp", "dao", "web3", "metaverse",
			"airdrop", "altcoin", "token", "coin", "wallet", "exchange",
			"dex", "cex", "liquidity",
		},
		"fiat": {
			"dollar", "usd", "ruble", "rub", "euro", "eur",
			"currency", "forex", "exchange rate",
		},
		"metals": {
			"gold", "silver", "platinum", "palladium", "precious metal",
		},
		"meme": {
			"meme", "memecoin", "pepe", "doge", "shiba",
		},
		"market": {
			"trading", "bull", "bear", "whale", "fomo", "fud", "pump",
			"dump", "hodl", "rekt", "moon",
		},
	}
}

// defaultPersona is the fallback style contract for the synthesizer. The
// real channel voice ships in the config file; this one only has to produce
// a sane post when nothing is configured.
const defaultPersona = `You are the voice of a small crypto channel. Rewrite the
supplied material as a short post of 3-5 sentences. Keep every name, number
and fact from the source. Write like a person, not an assistant: no markdown,
no greetings, no disclaimers, no repeated sentence patterns. Each post must
read as an independent message with its own angle.`
