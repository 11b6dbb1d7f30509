package decoder

// builtinABI covers the token and ownership interfaces seen on most chains.
// ERC20 and ERC721 share the Transfer/Approval topic and differ only in how
// many arguments are indexed, so they are kept as separate documents.
var builtinABIs = map[string]string{
	"erc20": `[
		{"type":"event","name":"Transfer","inputs":[
			{"name":"from","type":"address","indexed":true},
			{"name":"to","type":"address","indexed":true},
			{"name":"value","type":"uint256","indexed":false}]},
		{"type":"event","name":"Approval","inputs":[
			{"name":"owner","type":"address","indexed":true},
			{"name":"spender","type":"address","indexed":true},
			{"name":"value","type":"uint256","indexed":false}]},
		{"type":"function","name":"transfer","inputs":[
			{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"type":"function","name":"transferFrom","inputs":[
			{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"type":"function","name":"approve","inputs":[
			{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`,
	"erc721": `[
		{"type":"event","name":"Transfer","inputs":[
			{"name":"from","type":"address","indexed":true},
			{"name":"to","type":"address","indexed":true},
			{"name":"tokenId","type":"uint256","indexed":true}]},
		{"type":"event","name":"Approval","inputs":[
			{"name":"owner","type":"address","indexed":true},
			{"name":"approved","type":"address","indexed":true},
			{"name":"tokenId","type":"uint256","indexed":true}]},
		{"type":"event","name":"ApprovalForAll","inputs":[
			{"name":"owner","type":"address","indexed":true},
			{"name":"operator","type":"address","indexed":true},
			{"name":"approved","type":"bool","indexed":false}]},
		{"type":"function","name":"safeTransferFrom","inputs":[
			{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
		{"type":"function","name":"safeTransferFrom","inputs":[
			{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[]},
		{"type":"function","name":"setApprovalForAll","inputs":[
			{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"outputs":[]}
	]`,
	"erc1155": `[
		{"type":"event","name":"TransferSingle","inputs":[
			{"name":"operator","type":"address","indexed":true},
			{"name":"from","type":"address","indexed":true},
			{"name":"to","type":"address","indexed":true},
			{"name":"id","type":"uint256","indexed":false},
			{"name":"value","type":"uint256","indexed":false}]},
		{"type":"event","name":"TransferBatch","inputs":[
			{"name":"operator","type":"address","indexed":true},
			{"name":"from","type":"address","indexed":true},
			{"name":"to","type":"address","indexed":true},
			{"name":"ids","type":"uint256[]","indexed":false},
			{"name":"values","type":"uint256[]","indexed":false}]},
		{"type":"function","name":"safeTransferFrom","inputs":[
			{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"id","type":"uint256"},
			{"name":"amount","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[]},
		{"type":"function","name":"safeBatchTransferFrom","inputs":[
			{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"ids","type":"uint256[]"},
			{"name":"amounts","type":"uint256[]"},{"name":"data","type":"bytes"}],"outputs":[]}
	]`,
	"weth": `[
		{"type":"event","name":"Deposit","inputs":[
			{"name":"dst","type":"address","indexed":true},
			{"name":"wad","type":"uint256","indexed":false}]},
		{"type":"event","name":"Withdrawal","inputs":[
			{"name":"src","type":"address","indexed":true},
			{"name":"wad","type":"uint256","indexed":false}]},
		{"type":"function","name":"deposit","inputs":[],"outputs":[]},
		{"type":"function","name":"withdraw","inputs":[{"name":"wad","type":"uint256"}],"outputs":[]}
	]`,
	"ownable": `[
		{"type":"event","name":"OwnershipTransferred","inputs":[
			{"name":"previousOwner","type":"address","indexed":true},
			{"name":"newOwner","type":"address","indexed":true}]},
		{"type":"function","name":"transferOwnership","inputs":[{"name":"newOwner","type":"address"}],"outputs":[]},
		{"type":"function","name":"renounceOwnership","inputs":[],"outputs":[]}
	]`,
}

// builtinMethodSignatures are router and aggregator calls known only by signature.
var builtinMethodSignatures = []string{
	"swapExactTokensForTokens(uint256,uint256,address[],address,uint256)",
	"swapTokensForExactTokens(uint256,uint256,address[],address,uint256)",
	"swapExactETHForTokens(uint256,address[],address,uint256)",
	"swapExactTokensForETH(uint256,uint256,address[],address,uint256)",
	"addLiquidity(address,address,uint256,uint256,uint256,uint256,address,uint256)",
	"addLiquidityETH(address,uint256,uint256,uint256,address,uint256)",
	"removeLiquidity(address,address,uint256,uint256,uint256,address,uint256)",
	"multicall(bytes[])",
	"multicall(uint256,bytes[])",
	"execute(bytes,bytes[],uint256)",
	"exactInputSingle((address,address,uint24,address,uint256,uint256,uint256,uint160))",
	"exactInput((bytes,address,uint256,uint256,uint256))",
}

// builtinEventSignatures are events known only by signature; they resolve to a name.
var builtinEventSignatures = []string{
	"Swap(address,uint256,uint256,uint256,uint256,address)",
	"Swap(address,address,int256,int256,uint160,uint128,int24)",
	"Sync(uint112,uint112)",
	"Mint(address,uint256,uint256)",
	"Burn(address,uint256,uint256,address)",
	"PairCreated(address,address,address,uint256)",
}
