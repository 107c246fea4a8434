package registry

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/swell-ops-ea/internal/model"
	"github.com/yourorg/swell-ops-ea/internal/types"
)

// OP-stack predeploys shared by every Swellchain deployment.
var (
	l2StandardBridge = common.HexToAddress("0x4200000000000000000000000000000000000010")
	l2WETH           = common.HexToAddress("0x4200000000000000000000000000000000000006")
)

// NativeSentinel is the address the quote service uses for the gas asset.
var NativeSentinel = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Tables is the raw material the registry is built from.
type Tables struct {
	Networks   []model.NetworkDescriptor
	Tokens     []model.TokenDescriptor
	Vault      *model.VaultDescriptor
	PriceFeeds []model.PriceFeed
}

// Builtin returns the compiled-in tables for a profile. The mainnet L1
// bridge address and Ethereum RPC endpoint are not compiled in and must be
// supplied through overrides.
func Builtin(profile types.Profile) Tables {
	if profile == types.ProfileMainnet {
		return mainnetTables()
	}
	return testnetTables()
}

func testnetTables() Tables {
	return Tables{
		Networks: []model.NetworkDescriptor{
			{
				Name:          types.NetworkEthereum,
				DisplayName:   "Ethereum Sepolia",
				ChainID:       11155111,
				BridgeAddress: common.HexToAddress("0xebb79a1d00b2d489f53adee985a2ded2a3553f22"),
				RPCURL:        "https://eth-sepolia.public.blastapi.io",
				BlockExplorer: "https://sepolia.etherscan.io",
			},
			{
				Name:          types.NetworkSwellchain,
				DisplayName:   "Swellchain Testnet",
				ChainID:       1924,
				BridgeAddress: l2StandardBridge,
				RPCURL:        "https://swell-testnet.alt.technology",
				BlockExplorer: "https://swell-testnet-explorer.alt.technology",
			},
		},
		Tokens: []model.TokenDescriptor{
			nativeETH(),
			bridged("WETH", 18, "0x7b79995e5f793A07Bc00c21412e50Ecae098E7f9", l2WETH.Hex()),
			bridged("USDT", 6, "0xfd665f836095Ed02fDBF3C4F24174D70DFD6b69c", "0x41a0bD84E65e75Bc30AFBbe6ea142eBBcc347542"),
		},
	}
}

func mainnetTables() Tables {
	tokens := []model.TokenDescriptor{
		nativeETH(),
		bridged("WETH", 18, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", l2WETH.Hex()),
		bridged("stBTC", 18, "0xf6718b2701D4a6498eF77D7c152b2137Ab28b8A3", "0xf6718b2701D4a6498eF77D7c152b2137Ab28b8A3"),
		bridged("SWELL", 18, "0x0a6E7Ba5042B38349e437ec6Db6214AEC7B35676", "0x2826D136F5630adA89C1678b64A61620Aab77Aea"),
		bridged("rSWELL", 18, "0x358d94b5b2F147D741088803d932Acb566acB7B6", "0x939f1cC163fDc38a77571019eb4Ad1794873bf8c"),
		bridged("swBTC", 8, "0x8DB2350D78aBc13f5673A411D4700BCF87864dDE", "0x1cf7b5f266A0F39d6f9408B90340E3E71dF8BF7B"),
		bridged("weETH", 18, "0xCd5fE23C85820F7B72D0926FC9b05b43E359b7ee", "0xA6cB988942610f6731e664379D15fFcfBf282b44"),
		bridged("rswETH", 18, "0xFAe103DC9cf190eD75350761e95403b7b8aFa6c0", "0x18d33689AE5d02649a859A1CF16c9f0563975258"),
		bridged("swETH", 18, "0xf951E335afb289353dc249e82926178EaC7DEd78", "0x09341022ea237a4DB1644DE7CCf8FA0e489D85B7"),
		bridged("ezETH", 18, "0xbf5495Efe5DB9ce00f80364C8B423567e58d2110", "0x2416092f143378750bb29b79eD961ab195CcEea5"),
		bridged("pzETH", 18, "0x8c9532a60E0E7C6BbD2B2c1303F63aCE1c3E9811", "0x9cb41CD74D01ae4b4f640EC40f7A60cA1bCF83E7"),
		bridged("rsETH", 18, "0xA1290d69c65A6Fe4DF752f95823fae25cB99e5A7", "0xc3eACf0612346366Db554C991D7858716db09f58"),
		bridged("wstETH", 18, "0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0", "0x7c98E0779EB5924b3ba8cE3B17648539ed5b0Ecc"),
		bridged("USDe", 18, "0x4c9EDD5852cd905f086C759E8383e09bff1E68B3", "0x5d3a1Ff2b6BAb83b63cd9AD0787074081a52ef34"),
		bridged("sUSDe", 18, "0x9D39A5DE30e57443BfF2A8307A4256c8797A3497", "0x211Cc4DD073734dA055fbF44a2b4667d5E5fE5d2"),
		bridged("ENA", 18, "0x57e114B691Db790C35207b2e685D4A43181e6061", "0x58538e6A46E07434d7E7375Bc268D3cb839C0133"),
		bridged("EUL", 18, "0xd9Fcd98c322942075A5C3860693e9f4f03AAE07b", "0x80ccFBec4b8c82265abdc226Ad3Df84C0726E7A3"),
		bridged("KING", 18, "0x8F08B70456eb22f6109F57b8fafE862ED28E6040", "0xc2606AADe4bdd978a4fa5a6edb3b66657acEe6F8"),
		bridged("rUSDC", 6, "0xCB35Be279968F6c53EBF73c8d9D5d7AAf4d34956", "0x9ab96A4668456896d45c301Bc3A15Cee76AA7B8D"),

		// Swellchain-only tokens tradable through the swap aggregator
		l2Only("earnETH", 18, "0x9Ed15383940CC380fAEF0a75edacE507cC775f22"),
		l2Only("msETH", 18, "0x4661407fC224E5432D7f528a20EF8906E453A8f3"),
		l2Only("NEP", 18, "0xEa34479f7d95341E5fd49b89936366D6da710824"),
		l2Only("SURF", 18, "0x8169c783b5e930f189b06a97f85A1524A9822B2C"),
		l2Only("uBTC", 18, "0xb5668713E9BA8bC96f97D691663E70b54CE90b0A"),
	}

	return Tables{
		Networks: []model.NetworkDescriptor{
			{
				Name:          types.NetworkEthereum,
				DisplayName:   "Ethereum",
				ChainID:       1,
				BlockExplorer: "https://etherscan.io",
			},
			{
				Name:          types.NetworkSwellchain,
				DisplayName:   "Swellchain",
				ChainID:       1923,
				BridgeAddress: l2StandardBridge,
				RPCURL:        "https://swell-mainnet.alt.technology",
				BlockExplorer: "https://swellchainscan.io",
			},
		},
		Tokens: tokens,
		Vault: &model.VaultDescriptor{
			Name:           "earnETH",
			Teller:         common.HexToAddress("0x6D207874DDc8B1C3954a0BB2b21c6Fce2Aa18Dba"),
			ShareToken:     common.HexToAddress("0x9Ed15383940CC380fAEF0a75edacE507cC775f22"),
			ShareDecimals:  18,
			AcceptedAssets: []string{"ezETH", "rswETH", "swETH", "weETH", "wstETH"},
			DefaultAsset:   "ezETH",
		},
	}
}

func nativeETH() model.TokenDescriptor {
	return model.TokenDescriptor{Symbol: "ETH", Decimals: 18, CanonicalAddress: model.NativeAddress}
}

func bridged(symbol string, decimals uint8, l1, l2 string) model.TokenDescriptor {
	return model.TokenDescriptor{
		Symbol:           symbol,
		Decimals:         decimals,
		CanonicalAddress: common.HexToAddress(l1).Hex(),
		L1Address:        common.HexToAddress(l1),
		L2Address:        common.HexToAddress(l2),
	}
}

func l2Only(symbol string, decimals uint8, l2 string) model.TokenDescriptor {
	return model.TokenDescriptor{
		Symbol:           symbol,
		Decimals:         decimals,
		CanonicalAddress: common.HexToAddress(l2).Hex(),
		L2Address:        common.HexToAddress(l2),
	}
}
