package schema

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	// DefaultTokenAddress is the token contract emitting Transfer/Approval/LogBurn.
	DefaultTokenAddress = "0x5d60d8d7eF6d37E16EBABc324de3bE57f135e0BC"
	// DefaultEventsAddress is the platform events contract.
	DefaultEventsAddress = "0x3388729Ea21775D5f3a712853338D7Aba04d5CE5"
)

const tokenABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "name": "_spender", "type": "address"},
      {"indexed": false, "name": "_value", "type": "uint256"}
    ],
    "name": "LogBurn",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "name": "from", "type": "address"},
      {"indexed": true, "name": "to", "type": "address"},
      {"indexed": false, "name": "value", "type": "uint256"}
    ],
    "name": "Transfer",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "name": "owner", "type": "address"},
      {"indexed": true, "name": "spender", "type": "address"},
      {"indexed": false, "name": "value", "type": "uint256"}
    ],
    "name": "Approval",
    "type": "event"
  }
]`

const eventsABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "name": "message", "type": "string"},
      {"indexed": true, "name": "messageID", "type": "bytes32"},
      {"indexed": true, "name": "origin", "type": "address"}
    ],
    "name": "LogEvent",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "name": "message", "type": "string"},
      {"indexed": true, "name": "messageID", "type": "bytes32"},
      {"indexed": true, "name": "from", "type": "address"},
      {"indexed": true, "name": "to", "type": "address"},
      {"indexed": false, "name": "amount", "type": "uint256"},
      {"indexed": false, "name": "token", "type": "address"},
      {"indexed": false, "name": "origin", "type": "address"}
    ],
    "name": "LogTransaction",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "name": "message", "type": "string"},
      {"indexed": true, "name": "messageID", "type": "bytes32"},
      {"indexed": true, "name": "account", "type": "address"},
      {"indexed": true, "name": "origin", "type": "address"}
    ],
    "name": "LogAddress",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "name": "message", "type": "string"},
      {"indexed": true, "name": "messageID", "type": "bytes32"},
      {"indexed": true, "name": "account", "type": "address"},
      {"indexed": false, "name": "name", "type": "string"},
      {"indexed": true, "name": "origin", "type": "address"}
    ],
    "name": "LogContractChange",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "name": "message", "type": "string"},
      {"indexed": true, "name": "messageID", "type": "bytes32"},
      {"indexed": false, "name": "uri", "type": "string"},
      {"indexed": true, "name": "assetID", "type": "bytes32"},
      {"indexed": false, "name": "asset", "type": "address"},
      {"indexed": false, "name": "manager", "type": "address"},
      {"indexed": true, "name": "origin", "type": "address"}
    ],
    "name": "LogAsset",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "name": "message", "type": "string"},
      {"indexed": true, "name": "messageID", "type": "bytes32"},
      {"indexed": false, "name": "asset", "type": "address"},
      {"indexed": false, "name": "escrowID", "type": "bytes32"},
      {"indexed": true, "name": "manager", "type": "address"},
      {"indexed": false, "name": "amount", "type": "uint256"},
      {"indexed": true, "name": "origin", "type": "address"}
    ],
    "name": "LogEscrow",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "name": "message", "type": "string"},
      {"indexed": true, "name": "messageID", "type": "bytes32"},
      {"indexed": true, "name": "orderID", "type": "bytes32"},
      {"indexed": false, "name": "amount", "type": "uint256"},
      {"indexed": false, "name": "price", "type": "uint256"},
      {"indexed": true, "name": "origin", "type": "address"}
    ],
    "name": "LogOrder",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "name": "message", "type": "string"},
      {"indexed": true, "name": "messageID", "type": "bytes32"},
      {"indexed": false, "name": "orderID", "type": "bytes32"},
      {"indexed": true, "name": "asset", "type": "address"},
      {"indexed": false, "name": "account", "type": "address"},
      {"indexed": true, "name": "origin", "type": "address"}
    ],
    "name": "LogExchange",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "name": "message", "type": "string"},
      {"indexed": true, "name": "messageID", "type": "bytes32"},
      {"indexed": false, "name": "operatorID", "type": "bytes32"},
      {"indexed": false, "name": "operatorURI", "type": "string"},
      {"indexed": true, "name": "account", "type": "address"},
      {"indexed": true, "name": "origin", "type": "address"}
    ],
    "name": "LogOperator",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "name": "message", "type": "string"},
      {"indexed": true, "name": "messageID", "type": "bytes32"},
      {"indexed": false, "name": "executionID", "type": "bytes32"},
      {"indexed": false, "name": "votesID", "type": "bytes32"},
      {"indexed": false, "name": "votes", "type": "uint256"},
      {"indexed": false, "name": "tokens", "type": "uint256"},
      {"indexed": false, "name": "quorum", "type": "uint256"},
      {"indexed": true, "name": "origin", "type": "address"}
    ],
    "name": "LogConsensus",
    "type": "event"
  }
]`

var (
	tokenABI     abi.ABI
	tokenABIOnce sync.Once
	tokenABIErr  error

	eventsABI     abi.ABI
	eventsABIOnce sync.Once
	eventsABIErr  error
)

// TokenABI returns the parsed token contract event schema.
func TokenABI() (abi.ABI, error) {
	tokenABIOnce.Do(func() {
		tokenABI, tokenABIErr = abi.JSON(strings.NewReader(tokenABIJSON))
	})
	return tokenABI, tokenABIErr
}

// EventsABI returns the parsed events contract schema.
func EventsABI() (abi.ABI, error) {
	eventsABIOnce.Do(func() {
		eventsABI, eventsABIErr = abi.JSON(strings.NewReader(eventsABIJSON))
	})
	return eventsABI, eventsABIErr
}
