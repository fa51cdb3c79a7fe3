package entity

// ChainID identifies a network the machine programs are deployed on.
type ChainID string

const (
	ChainSolana        ChainID = "solana"
	ChainBNB           ChainID = "bnb"
	ChainPolygonMumbai ChainID = "polygon_mumbai"
	ChainOKT           ChainID = "okt"
	ChainGnosis        ChainID = "gnosis"
	ChainXDC           ChainID = "xdc"
	ChainAvaxC         ChainID = "avaxc"
	ChainAptosTestnet  ChainID = "aptos_testnet"
	ChainAptos         ChainID = "aptos"
	ChainKlaytn        ChainID = "klaytn"
	ChainMantle        ChainID = "mantle"
	ChainScrollSepolia ChainID = "scroll_sepolia"
)

// NonEVMChains are served by other program adapters and never touched by the EVM sync.
var NonEVMChains = []ChainID{ChainSolana, ChainAptos, ChainAptosTestnet}

// StoppedChains are deployments that no longer accept syncs.
var StoppedChains = []ChainID{ChainOKT, ChainGnosis, ChainXDC, ChainPolygonMumbai, ChainAptosTestnet}

// ChainSet is a lookup set of chain ids.
type ChainSet map[ChainID]struct{}

// NewChainSet builds a set from the given lists.
func NewChainSet(lists ...[]ChainID) ChainSet {
	s := ChainSet{}
	for _, l := range lists {
		for _, c := range l {
			s[c] = struct{}{}
		}
	}
	return s
}

// Has reports whether c is in the set.
func (s ChainSet) Has(c ChainID) bool {
	_, ok := s[c]
	return ok
}

// Slice returns the members as strings, handy for $nin filters.
func (s ChainSet) Slice() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, string(c))
	}
	return out
}
