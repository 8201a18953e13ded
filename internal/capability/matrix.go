/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package capability holds the static matrix of which tokens each
// (wallet type, provider, network) supports.
package capability

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

// ConfigurationError is returned for a malformed matrix. It is fatal at startup.
type ConfigurationError struct {
	Entry  int
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Entry < 0 {
		return fmt.Sprintf("capability matrix: %s", e.Reason)
	}
	return fmt.Sprintf("capability matrix: entry %d: %s", e.Entry, e.Reason)
}

type Token struct {
	Symbol          string `yaml:"symbol"`
	ProviderTokenId string `yaml:"provider_token_id"`
}

// Entry describes the tokens one provider supports on one network for a wallet type.
type Entry struct {
	WalletType        string  `yaml:"wallet_type"`
	Provider          string  `yaml:"provider"`
	Network           string  `yaml:"network"`
	ProviderNetworkId string  `yaml:"provider_network_id"`
	Tokens            []Token `yaml:"tokens"`
}

// Token returns the entry's token for a symbol
func (e Entry) Token(symbol string) (Token, bool) {
	for _, t := range e.Tokens {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return Token{}, false
}

// ProviderNetwork returns the provider's identifier for the network, defaulting to the network name
func (e Entry) ProviderNetwork() string {
	if e.ProviderNetworkId != "" {
		return e.ProviderNetworkId
	}
	return e.Network
}

type matrixFile struct {
	Capabilities []Entry `yaml:"capabilities"`
}

// Matrix is immutable once built.
type Matrix struct {
	entries []Entry
	byType  map[string][]int
}

// Load reads and validates the matrix file. Relative paths resolve against the working directory.
func Load(file string) (*Matrix, error) {
	path := file
	if !filepath.IsAbs(file) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, file)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", file, err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Matrix, error) {
	var f matrixFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &ConfigurationError{Entry: -1, Reason: fmt.Sprintf("unable to parse: %v", err)}
	}
	return New(f.Capabilities)
}

// New validates entries and builds the matrix. Identical duplicate entries collapse into one.
func New(entries []Entry) (*Matrix, error) {
	m := &Matrix{byType: make(map[string][]int)}

	type key struct{ walletType, provider, network string }
	seen := make(map[key]int)
	networkOwner := make(map[[2]string]string)

	for i, e := range entries {
		e.WalletType = strings.TrimSpace(e.WalletType)
		e.Provider = strings.ToLower(strings.TrimSpace(e.Provider))
		e.Network = NormalizeNetwork(e.Network)
		tokens := make([]Token, len(e.Tokens))
		for j, t := range e.Tokens {
			tokens[j] = Token{Symbol: NormalizeAsset(t.Symbol), ProviderTokenId: t.ProviderTokenId}
		}
		e.Tokens = tokens

		if e.WalletType == "" || e.Provider == "" || e.Network == "" {
			return nil, &ConfigurationError{Entry: i, Reason: "wallet_type, provider and network are required"}
		}
		if len(e.Tokens) == 0 {
			return nil, &ConfigurationError{Entry: i, Reason: "at least one token is required"}
		}
		symbols := make(map[string]bool, len(e.Tokens))
		for _, t := range e.Tokens {
			if t.Symbol == "" {
				return nil, &ConfigurationError{Entry: i, Reason: "token missing symbol"}
			}
			if symbols[t.Symbol] {
				return nil, &ConfigurationError{Entry: i, Reason: fmt.Sprintf("duplicate token %s", t.Symbol)}
			}
			symbols[t.Symbol] = true
		}

		k := key{e.WalletType, e.Provider, e.Network}
		if prev, ok := seen[k]; ok {
			if !sameTokens(m.entries[prev].Tokens, e.Tokens) {
				return nil, &ConfigurationError{Entry: i, Reason: fmt.Sprintf(
					"%s/%s/%s declared twice with conflicting token lists", e.WalletType, e.Provider, e.Network)}
			}
			continue
		}

		owner := [2]string{e.WalletType, e.Network}
		if p, ok := networkOwner[owner]; ok && p != e.Provider {
			return nil, &ConfigurationError{Entry: i, Reason: fmt.Sprintf(
				"network %s of wallet type %s claimed by both %s and %s", e.Network, e.WalletType, p, e.Provider)}
		}
		networkOwner[owner] = e.Provider

		seen[k] = len(m.entries)
		m.byType[e.WalletType] = append(m.byType[e.WalletType], len(m.entries))
		m.entries = append(m.entries, e)
	}

	if len(m.entries) == 0 {
		return nil, &ConfigurationError{Entry: -1, Reason: "no capabilities configured"}
	}

	return m, nil
}

func sameTokens(a, b []Token) bool {
	if len(a) != len(b) {
		return false
	}
	x := sortedTokens(a)
	y := sortedTokens(b)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func sortedTokens(in []Token) []Token {
	out := make([]Token, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// EntriesFor returns the entries of a wallet type in declaration order.
func (m *Matrix) EntriesFor(walletType string) []Entry {
	idx := m.byType[walletType]
	out := make([]Entry, 0, len(idx))
	for _, i := range idx {
		out = append(out, m.entries[i])
	}
	return out
}

// Lookup returns the entry for an exact (wallet type, provider, network)
func (m *Matrix) Lookup(walletType, provider, network string) (Entry, bool) {
	for _, i := range m.byType[walletType] {
		e := m.entries[i]
		if e.Provider == provider && e.Network == network {
			return e, true
		}
	}
	return Entry{}, false
}

// Routes returns every entry, across wallet types, that supports the asset on the network.
func (m *Matrix) Routes(assetCode, network string) []Entry {
	var out []Entry
	for _, e := range m.entries {
		if e.Network != network {
			continue
		}
		if _, ok := e.Token(assetCode); ok {
			out = append(out, e)
		}
	}
	return out
}

func (m *Matrix) Supports(assetCode, network string) bool {
	return len(m.Routes(assetCode, network)) > 0
}

// ProviderEntries returns the entries a provider serves for a wallet type.
func (m *Matrix) ProviderEntries(walletType, provider string) []Entry {
	var out []Entry
	for _, e := range m.EntriesFor(walletType) {
		if e.Provider == provider {
			out = append(out, e)
		}
	}
	return out
}

func (m *Matrix) Providers() []string {
	set := make(map[string]bool)
	for _, e := range m.entries {
		set[e.Provider] = true
	}
	return sortedKeys(set)
}

func (m *Matrix) WalletTypes() []string {
	set := make(map[string]bool)
	for _, e := range m.entries {
		set[e.WalletType] = true
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NormalizeAsset upper-cases an asset code the way the matrix declares them.
func NormalizeAsset(assetCode string) string {
	return strings.ToUpper(strings.TrimSpace(assetCode))
}

// NormalizeNetwork lower-cases a network name the way the matrix declares them.
func NormalizeNetwork(network string) string {
	return strings.ToLower(strings.TrimSpace(network))
}
