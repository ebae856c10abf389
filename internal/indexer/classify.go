package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"txTracker/internal/model"
)

// DefaultLockAddresses are the escrow addresses whose transfers are reported as locked.
var DefaultLockAddresses = []string{
	"0xd9d2b28e09921a38ad7ab1b4138357408bda8ebd",
	"0xcca36039cfdd0753d3aa9f1b4bf35b606c8ed971",
	"0xfd1e4b568bb3bcf706b0bac5960d4b91bacff96f",
	"0x7389c003988802a713af73e82777b1c702077c6f",
	"0x7dc8a6e706da7c4a77d3710f7b7e621ee0074dc3",
	"0xc7e7790fc0c81a2d880b1e119ba0921881f0cdef",
}

// LockSet classifies transfers touching a fixed set of addresses.
type LockSet struct {
	addresses map[string]struct{}
}

// NewLockSet validates the given addresses and builds a case-insensitive set.
func NewLockSet(addresses []string) (*LockSet, error) {
	parsed, err := ParseAddresses(addresses)
	if err != nil {
		return nil, fmt.Errorf("lock addresses: %w", err)
	}

	set := &LockSet{addresses: make(map[string]struct{}, len(parsed))}
	for _, addr := range parsed {
		set.addresses[strings.ToLower(addr.Hex())] = struct{}{}
	}
	return set, nil
}

// Contains reports whether value is a lock address, ignoring case.
func (s *LockSet) Contains(value *string) bool {
	if s == nil || value == nil {
		return false
	}
	_, ok := s.addresses[strings.ToLower(strings.TrimSpace(*value))]
	return ok
}

// Len returns the number of configured addresses.
func (s *LockSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.addresses)
}

// Classify marks a Transfer whose sender or recipient is a lock address.
// Other events are left untouched.
func (s *LockSet) Classify(event *model.Event) bool {
	if event == nil || event.Name != model.TransferEventName {
		return false
	}
	if !s.Contains(event.P0) && !s.Contains(event.P1) {
		return false
	}
	locked := true
	event.IsLock = &locked
	return true
}

// ParseAddresses converts string addresses into common.Address.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}
