package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Railgun MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var stringItems = mcp.Items(map[string]any{"type": "string"})

func networkArg(desc string) mcp.ToolOption {
	return mcp.WithString("network",
		mcp.Description(desc),
		mcp.Enum("ethereum", "polygon", "bsc", "arbitrum"))
}

func passwordArg() mcp.ToolOption {
	return mcp.WithString("password",
		mcp.Description("Wallet password. Falls back to RAILGUN_WALLET_PASSWORD when omitted."))
}

func relayerArg() mcp.ToolOption {
	return mcp.WithString("relayer_id",
		mcp.Description("Relayer to broadcast through, from get_relayers. Omit to broadcast from your own 0x address."))
}

// --- Wallets ---

var ToolCreateWallet = mcp.NewTool("create_wallet",
	mcp.WithDescription(
		"Create a new Railgun wallet with a fresh mnemonic. "+
			"Returns the public 0x address and the private 0zk address. "+
			"The secret is sealed with the password and never returned."),
	networkArg("Network the wallet starts on (default from config)"),
	passwordArg(),
	mcp.WithString("label",
		mcp.Description("Optional name to find the wallet by later")),
)

var ToolImportWallet = mcp.NewTool("import_wallet",
	mcp.WithDescription(
		"Import an existing wallet from a BIP-39 mnemonic or a 64-hex private key. "+
			"The secret is sealed with the password before it is stored."),
	mcp.WithString("private_key",
		mcp.Required(),
		mcp.Description("Mnemonic phrase (12-24 words) or 0x-prefixed private key")),
	networkArg("Network the wallet starts on (default from config)"),
	passwordArg(),
	mcp.WithNumber("index",
		mcp.Description("BIP-44 account index for mnemonics (default 0)"),
		mcp.Min(0)),
)

var ToolListWallets = mcp.NewTool("list_wallets",
	mcp.WithDescription("List every stored wallet with its 0x and 0zk addresses."),
)

var ToolGetBalance = mcp.NewTool("get_balance",
	mcp.WithDescription(
		"Get a wallet's token balances. Public balances come from the chain, "+
			"private (shielded) balances from the Railgun engine."),
	mcp.WithString("wallet_id",
		mcp.Required(),
		mcp.Description("Wallet id, 0x address or 0zk address")),
	mcp.WithString("token_address",
		mcp.Description("Only report this token (symbol or contract address)")),
	mcp.WithBoolean("include_private",
		mcp.Description("Include shielded balances (default true)"),
		mcp.DefaultBool(true)),
	networkArg("Network to read (default: the wallet's network)"),
	passwordArg(),
)

var ToolGetGasPrice = mcp.NewTool("get_gas_price",
	mcp.WithDescription("Get the current gas price, base fee and priority fee for a network, in gwei."),
	networkArg("Network to query"),
)

// --- Private transactions ---

var ToolShieldTokens = mcp.NewTool("shield_tokens",
	mcp.WithDescription(
		"Shield public tokens into the Railgun privacy pool. "+
			"ERC-20 tokens are approved first when the allowance is short. "+
			"Gas is paid in the native coin from the public address."),
	mcp.WithString("wallet_id", mcp.Required(), mcp.Description("Wallet id or address")),
	mcp.WithString("token_address", mcp.Required(), mcp.Description("Token symbol or contract address (ETH for the native coin)")),
	mcp.WithString("amount", mcp.Required(), mcp.Description("Amount in whole tokens, e.g. '1.5'")),
	networkArg("Network (default: the wallet's network)"),
	passwordArg(),
)

var ToolUnshieldTokens = mcp.NewTool("unshield_tokens",
	mcp.WithDescription(
		"Unshield private tokens back to a public 0x address. "+
			"Defaults to the wallet's own public address."),
	mcp.WithString("wallet_id", mcp.Required(), mcp.Description("Wallet id or address")),
	mcp.WithString("token_address", mcp.Required(), mcp.Description("Token symbol or contract address")),
	mcp.WithString("amount", mcp.Required(), mcp.Description("Amount in whole tokens")),
	mcp.WithString("recipient_0x_address", mcp.Description("Public address to receive the tokens")),
	networkArg("Network (default: the wallet's network)"),
	passwordArg(),
	relayerArg(),
)

var ToolPrivateTransfer = mcp.NewTool("private_transfer",
	mcp.WithDescription(
		"Send shielded tokens to another 0zk address. Sender, recipient and amount stay private."),
	mcp.WithString("wallet_id", mcp.Required(), mcp.Description("Wallet id or address")),
	mcp.WithString("token_address", mcp.Required(), mcp.Description("Token symbol or contract address")),
	mcp.WithString("amount", mcp.Required(), mcp.Description("Amount in whole tokens")),
	mcp.WithString("recipient_0zk_address", mcp.Required(), mcp.Description("Recipient's 0zk address")),
	mcp.WithString("memo", mcp.Description("Encrypted note for the recipient")),
	networkArg("Network (default: the wallet's network)"),
	passwordArg(),
	relayerArg(),
)

var ToolGetTransactionStatus = mcp.NewTool("get_transaction_status",
	mcp.WithDescription(
		"Look up a transaction by record id or hash. Pending transactions are refreshed from the chain."),
	mcp.WithString("transaction_id", mcp.Required(), mcp.Description("Record id (tx_...) or 0x transaction hash")),
	networkArg("Network (used for hashes not in local history)"),
	mcp.WithNumber("wait_seconds",
		mcp.Description("Wait up to this many seconds for the transaction to be mined (max 300)"),
		mcp.Min(0), mcp.Max(300)),
)

var ToolGetTransactionHistory = mcp.NewTool("get_transaction_history",
	mcp.WithDescription("List a wallet's recorded transactions, newest first."),
	mcp.WithString("wallet_id", mcp.Required(), mcp.Description("Wallet id or address")),
	mcp.WithNumber("limit", mcp.Description("Maximum records to return (default 50, max 200)"), mcp.DefaultNumber(50)),
	mcp.WithNumber("offset", mcp.Description("Records to skip (default 0)"), mcp.DefaultNumber(0)),
	mcp.WithString("transaction_type",
		mcp.Description("Only this type"),
		mcp.Enum("shield", "unshield", "private_transfer", "transfer", "approve", "recipe")),
	mcp.WithString("status",
		mcp.Description("Only this status"),
		mcp.Enum("pending", "confirmed", "failed", "cancelled")),
)

// --- Recipes ---

var ToolCreateRecipe = mcp.NewTool("create_recipe",
	mcp.WithDescription(
		"Create a multi-step DeFi recipe (approve, swap, add_liquidity, stake, ...) "+
			"that runs from the private balance and reshields its outputs."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Recipe name")),
	mcp.WithString("description", mcp.Description("What the recipe does")),
	networkArg("Network the recipe runs on"),
	mcp.WithArray("steps",
		mcp.Required(),
		mcp.Description("Ordered steps. Each has type, optional contract_address, function_name, function_args, inputs and outputs ([{token, amount}])."),
		mcp.Items(map[string]any{"type": "object"})),
)

var ToolExecuteRecipe = mcp.NewTool("execute_recipe",
	mcp.WithDescription("Execute a stored recipe from the wallet's private balance."),
	mcp.WithString("wallet_id", mcp.Required(), mcp.Description("Wallet id or address")),
	mcp.WithString("recipe_id", mcp.Required(), mcp.Description("Recipe id from create_recipe")),
	mcp.WithArray("input_amounts",
		mcp.Required(),
		mcp.Description("Amounts for the recipe's input tokens: [{\"token\": \"USDC\", \"amount\": \"100\"}]"),
		mcp.Items(map[string]any{"type": "object"})),
	mcp.WithNumber("slippage_percentage",
		mcp.Description("Maximum slippage in percent (default 0.5, max 50)"),
		mcp.DefaultNumber(0.5), mcp.Min(0), mcp.Max(50)),
	relayerArg(),
	passwordArg(),
)

var ToolEstimateRecipeGas = mcp.NewTool("estimate_recipe_gas",
	mcp.WithDescription("Estimate the gas and native-coin cost of running a recipe at current prices."),
	mcp.WithString("recipe_id", mcp.Required(), mcp.Description("Recipe id")),
	mcp.WithArray("input_amounts",
		mcp.Description("Optional input amounts to check against the recipe"),
		mcp.Items(map[string]any{"type": "object"})),
)

var ToolCreateSwapRecipe = mcp.NewTool("create_swap_recipe",
	mcp.WithDescription("Create a private swap recipe: unshield, approve the router, swap, reshield."),
	networkArg("Network the swap runs on"),
	mcp.WithString("sell_token", mcp.Required(), mcp.Description("Token to sell (symbol or address)")),
	mcp.WithString("buy_token", mcp.Required(), mcp.Description("Token to buy (symbol or address)")),
	mcp.WithString("dex",
		mcp.Description("Exchange to route through (default 0x)"),
		mcp.Enum("0x", "uniswap", "sushiswap"),
		mcp.DefaultString("0x")),
)

// --- Relayers ---

var ToolGetRelayers = mcp.NewTool("get_relayers",
	mcp.WithDescription("List relayers on a network with their fees and reliability, most reliable first."),
	networkArg("Network to list"),
)

var ToolSubmitToRelayer = mcp.NewTool("submit_to_relayer",
	mcp.WithDescription("Hand transaction data to a relayer so it broadcasts without linking your public address."),
	mcp.WithString("transaction_data", mcp.Required(), mcp.Description("0x-prefixed transaction data")),
	mcp.WithString("relayer_id", mcp.Required(), mcp.Description("Relayer id from get_relayers")),
	networkArg("Network (default from config)"),
	mcp.WithString("priority",
		mcp.Description("Broadcast priority (default normal)"),
		mcp.Enum("slow", "normal", "fast"),
		mcp.DefaultString("normal")),
	mcp.WithString("wallet_id", mcp.Description("Wallet to record the submission under")),
)

// --- Multi-wallet ---

var ToolCreateWalletBatch = mcp.NewTool("create_wallet_batch",
	mcp.WithDescription("Create up to 10 wallets at once, sealed with passwords derived from a prefix."),
	mcp.WithNumber("count", mcp.Required(), mcp.Description("Number of wallets (1-10)"), mcp.Min(1), mcp.Max(10)),
	networkArg("Network for the new wallets"),
	mcp.WithString("password_prefix", mcp.Required(), mcp.Description("Password prefix")),
	mcp.WithBoolean("use_unique_passwords",
		mcp.Description("Seal wallet i with '<prefix>_i' instead of the bare prefix (default true)"),
		mcp.DefaultBool(true)),
)

var ToolDistributeTokens = mcp.NewTool("distribute_tokens",
	mcp.WithDescription("Split a private balance across several wallets with private transfers."),
	mcp.WithString("source_wallet_id", mcp.Required(), mcp.Description("Wallet sending the tokens")),
	mcp.WithString("token_address", mcp.Required(), mcp.Description("Token symbol or address")),
	mcp.WithString("total_amount", mcp.Required(), mcp.Description("Total to distribute, in whole tokens")),
	mcp.WithArray("destination_wallet_ids", mcp.Required(), mcp.Description("Receiving wallet ids or 0zk addresses"), stringItems),
	mcp.WithString("distribution_type",
		mcp.Description("equal splits the total, custom uses amounts (default equal)"),
		mcp.Enum("equal", "custom"),
		mcp.DefaultString("equal")),
	mcp.WithArray("amounts", mcp.Description("Per-destination amounts for custom distribution"), stringItems),
	passwordArg(),
	relayerArg(),
)

var ToolMixTokens = mcp.NewTool("mix_tokens",
	mcp.WithDescription(
		"Plan a round-robin schedule of private transfers between your own wallets. "+
			"Returns the hops and timings; run them with private_transfer."),
	mcp.WithArray("wallet_ids", mcp.Required(), mcp.Description("At least two wallet ids"), stringItems),
	mcp.WithString("token_address", mcp.Required(), mcp.Description("Token symbol or address")),
	mcp.WithNumber("mixing_rounds", mcp.Description("Rounds (1-10, default 3)"), mcp.DefaultNumber(3)),
	mcp.WithNumber("delay_seconds", mcp.Description("Seconds between hops (default 30)"), mcp.DefaultNumber(30)),
	networkArg("Network (default: the first wallet's network)"),
)

var ToolGetWalletAnalytics = mcp.NewTool("get_wallet_analytics",
	mcp.WithDescription("Summarize holdings, USD value and recent activity across several wallets."),
	mcp.WithArray("wallet_ids", mcp.Required(), mcp.Description("Wallet ids or addresses"), stringItems),
	mcp.WithBoolean("include_transactions", mcp.Description("Include recent transactions (default true)"), mcp.DefaultBool(true)),
	passwordArg(),
)

// --- Plain-English helpers ---

var ToolCanIAffordThis = mcp.NewTool("can_i_afford_this",
	mcp.WithDescription("Check whether a wallet has the tokens and the gas for an action."),
	mcp.WithString("wallet_id", mcp.Required(), mcp.Description("Wallet id or address")),
	mcp.WithString("action",
		mcp.Required(),
		mcp.Description("What you want to do: shield, unshield, swap, send or private_send")),
	mcp.WithString("amount", mcp.Description("Amount of the token the action spends")),
	mcp.WithString("token", mcp.Description("Token symbol (default USDC)"), mcp.DefaultString("USDC")),
	networkArg("Network (default: the wallet's network)"),
)

var ToolWhyIsThisSoExpensive = mcp.NewTool("why_is_this_so_expensive",
	mcp.WithDescription("Explain in plain English what an action costs right now and how to pay less."),
	mcp.WithString("action", mcp.Required(), mcp.Description("shield, unshield, swap, send or private_send")),
	networkArg("Network (default ethereum)"),
)

var ToolJustSendMoney = mcp.NewTool("just_send_money",
	mcp.WithDescription(
		"Send money the simple way, e.g. amount '10' token 'USDC' to an address. "+
			"A 0zk recipient is paid privately, shielding first if needed. "+
			"A 0x recipient is paid out of the privacy pool (shield, then unshield) unless keep_private is false."),
	mcp.WithString("wallet_id", mcp.Required(), mcp.Description("Wallet id or address")),
	mcp.WithString("to", mcp.Required(), mcp.Description("Recipient 0x or 0zk address")),
	mcp.WithString("amount", mcp.Required(), mcp.Description("Amount, e.g. '10' or '10 USDC'")),
	mcp.WithString("token", mcp.Description("Token symbol when amount has none (default USDC)"), mcp.DefaultString("USDC")),
	mcp.WithBoolean("keep_private", mcp.Description("Route a 0x send through the privacy pool (default true)"), mcp.DefaultBool(true)),
	passwordArg(),
	networkArg("Network (default: the wallet's network)"),
)

var ToolWhereAreMyTokens = mcp.NewTool("where_are_my_tokens",
	mcp.WithDescription("Explain where a wallet's tokens are: public, private, or both."),
	mcp.WithString("wallet_id", mcp.Required(), mcp.Description("Wallet id or address")),
	mcp.WithBoolean("show_details", mcp.Description("Include per-token breakdown")),
	passwordArg(),
)

var ToolFixStuckTransaction = mcp.NewTool("fix_stuck_transaction",
	mcp.WithDescription("Diagnose a pending transaction that is taking too long and suggest a fix."),
	mcp.WithString("wallet_id", mcp.Required(), mcp.Description("Wallet id or address")),
	mcp.WithString("transaction_id", mcp.Description("Specific record id or hash (default: oldest pending)")),
)

var ToolOptimizeMyPrivacy = mcp.NewTool("optimize_my_privacy",
	mcp.WithDescription("Score a wallet's privacy habits out of 100 and suggest improvements."),
	mcp.WithString("wallet_id", mcp.Required(), mcp.Description("Wallet id or address")),
	passwordArg(),
)

var ToolEmergencyExit = mcp.NewTool("emergency_exit",
	mcp.WithDescription(
		"Plan moving every token out of a wallet to a safe public address. "+
			"Returns the steps and cost; nothing is sent."),
	mcp.WithString("wallet_id", mcp.Required(), mcp.Description("Wallet id or address")),
	mcp.WithString("destination", mcp.Required(), mcp.Description("Safe 0x address")),
	mcp.WithString("reason",
		mcp.Description("Why you are exiting (default general)"),
		mcp.Enum("general", "compromised", "migration"),
		mcp.DefaultString("general")),
)

// --- Utility ---

var ToolVerifyProof = mcp.NewTool("verify_proof",
	mcp.WithDescription("Verify a zero-knowledge proof with the Railgun engine."),
	mcp.WithString("proof_data", mcp.Required(), mcp.Description("0x-prefixed proof bytes")),
)

var ToolGetSupportedTokens = mcp.NewTool("get_supported_tokens",
	mcp.WithDescription("List the tokens known on a network with their addresses and decimals."),
	networkArg("Network to list (default from config)"),
)

var ToolCheckConfig = mcp.NewTool("check_config",
	mcp.WithDescription("Show which settings are configured. Secrets are reported as set or unset only."),
)
