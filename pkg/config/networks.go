package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4/json"

	"github.com/systemis/funding-machine-backend/pkg/entity"
	"github.com/systemis/funding-machine-backend/pkg/utils"
)

// ErrUnknownChain is returned when a chain has no network entry.
var ErrUnknownChain = errors.New("chain is not configured")

// Network holds the RPC endpoint, operator key, and program addresses of one chain.
type Network struct {
	InternalRPCURL                string `json:"INTERNAL_RPC_URL"`
	OperatorSecretKey             string `json:"OPERATOR_SECRET_KEY"`
	MachineProgramAddress         string `json:"MACHINE_PROGRAM_ADDRESS"`
	MachineRegistryProgramAddress string `json:"MACHINE_REGISTRY_PROGRAM_ADDRESS"`
	MachineVaultProgramAddress    string `json:"MACHINE_VAULT_PROGRAM_ADDRESS"`
	Multicall3ProgramAddress      string `json:"MULTICALL3_PROGRAM_ADDRESS"`

	// RPS and Burst bound the request rate to the RPC endpoint. Zero means the defaults.
	RPS   int `json:"RPS,omitempty"`
	Burst int `json:"BURST,omitempty"`
}

// Networks is the registry file shape.
type Networks struct {
	Networks map[entity.ChainID]Network `json:"NETWORKS"`
}

// Get returns the network of the chain.
func (n *Networks) Get(chainID entity.ChainID) (Network, error) {
	net, ok := n.Networks[chainID]
	if !ok {
		return Network{}, fmt.Errorf("%w: %s", ErrUnknownChain, chainID)
	}
	return net, nil
}

// ChainIDs lists the configured chains.
func (n *Networks) ChainIDs() []entity.ChainID {
	out := make([]entity.ChainID, 0, len(n.Networks))
	for id := range n.Networks {
		out = append(out, id)
	}
	return out
}

// LoadNetworks reads the registry file pointed to by CONFIG_FILE.
func LoadNetworks() (*Networks, error) {
	return LoadNetworksFile(utils.Env("CONFIG_FILE", "config.json"))
}

// LoadNetworksFile reads the registry file at path.
func LoadNetworksFile(path string) (*Networks, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read networks file %s: %w", path, err)
	}
	return ParseNetworks(raw)
}

// ParseNetworks decodes a registry document.
func ParseNetworks(raw []byte) (*Networks, error) {
	var n Networks
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("decode networks: %w", err)
	}
	if n.Networks == nil {
		n.Networks = map[entity.ChainID]Network{}
	}
	for id, net := range n.Networks {
		if net.InternalRPCURL == "" {
			return nil, fmt.Errorf("network %s: INTERNAL_RPC_URL is required", id)
		}
	}
	return &n, nil
}
