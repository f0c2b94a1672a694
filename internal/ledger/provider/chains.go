package provider

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChainDefinitions models configs/chains.yaml.
type ChainDefinitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes a single wallet backend.
type ChainDefinition struct {
	// Type is solana (default) or evm.
	Type   string `yaml:"type"`
	RPCURL string `yaml:"rpc_url"`
	Symbol string `yaml:"symbol"`
	// PrivateKey and FaucetKey are secret references (env:, file:, ssm:).
	PrivateKey     string `yaml:"private_key"`
	FaucetKey      string `yaml:"faucet_key"`
	AirdropAmount  string `yaml:"airdrop_amount"`
	ConfirmPoll    string `yaml:"confirm_poll"`
	ConfirmTimeout string `yaml:"confirm_timeout"`
	Description    string `yaml:"description"`
}

// LoadChainDefinitions parses the YAML chain file. An empty path yields a
// single devnet Solana chain.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{
			"devnet": {Type: "solana", Description: "Solana devnet"},
		}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("read chain definitions: %w", err)
	}

	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("parse chain definitions: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	return defs, nil
}
