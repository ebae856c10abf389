package schema

import (
	"fmt"
	"math/big"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"txTracker/internal/model"
)

// Contract binds an event schema to the address that emits it.
type Contract struct {
	Address common.Address
	ABI     abi.ABI
}

// LoadContract builds a Contract from an address and an optional ABI JSON file.
// When abiPath is empty the built-in schema is used.
func LoadContract(address, abiPath string, builtin func() (abi.ABI, error)) (Contract, error) {
	if !common.IsHexAddress(address) {
		return Contract{}, fmt.Errorf("invalid contract address: %s", address)
	}

	var parsed abi.ABI
	if abiPath != "" {
		file, err := os.Open(abiPath)
		if err != nil {
			return Contract{}, fmt.Errorf("open abi: %w", err)
		}
		defer file.Close()
		parsed, err = abi.JSON(file)
		if err != nil {
			return Contract{}, fmt.Errorf("parse abi %s: %w", abiPath, err)
		}
	} else {
		var err error
		parsed, err = builtin()
		if err != nil {
			return Contract{}, fmt.Errorf("parse builtin abi: %w", err)
		}
	}

	return Contract{Address: common.HexToAddress(address), ABI: parsed}, nil
}

// Registry decodes raw logs using one schema per contract address.
type Registry struct {
	contracts map[common.Address]abi.ABI
	addresses []common.Address
}

// NewRegistry builds a registry; each address may be registered once.
func NewRegistry(contracts []Contract) (*Registry, error) {
	r := &Registry{contracts: make(map[common.Address]abi.ABI, len(contracts))}
	for _, c := range contracts {
		if _, ok := r.contracts[c.Address]; ok {
			return nil, fmt.Errorf("duplicate contract address: %s", c.Address.Hex())
		}
		r.contracts[c.Address] = c.ABI
		r.addresses = append(r.addresses, c.Address)
	}
	return r, nil
}

// Addresses returns the registered contract addresses in registration order.
func (r *Registry) Addresses() []common.Address {
	out := make([]common.Address, len(r.addresses))
	copy(out, r.addresses)
	return out
}

// DecodeOrUnknown decodes log and falls back to the unknown-event placeholder on any
// failure. The boolean reports whether the log matched a known schema.
func (r *Registry) DecodeOrUnknown(log model.RawLog) (decoded model.Decoded, known bool) {
	defer func() {
		if rec := recover(); rec != nil {
			decoded, known = model.UnknownDecoded(), false
		}
	}()

	decoded, err := r.Decode(log)
	if err != nil {
		return model.UnknownDecoded(), false
	}
	return decoded, true
}

// Decode converts a raw log into an event name and its first positional parameters,
// in the order the schema declares them.
func (r *Registry) Decode(log model.RawLog) (model.Decoded, error) {
	if !common.IsHexAddress(log.Address) {
		return model.Decoded{}, fmt.Errorf("invalid log address: %s", log.Address)
	}
	contractABI, ok := r.contracts[common.HexToAddress(log.Address)]
	if !ok {
		return model.Decoded{}, fmt.Errorf("no schema for address %s", log.Address)
	}
	if len(log.Topics) == 0 {
		return model.Decoded{}, fmt.Errorf("missing topics")
	}

	topics, err := parseTopicHashes(log.Topics)
	if err != nil {
		return model.Decoded{}, err
	}
	event, err := contractABI.EventByID(topics[0])
	if err != nil {
		return model.Decoded{}, fmt.Errorf("unknown event signature %s", topics[0].Hex())
	}

	indexedArgs := indexedArguments(event.Inputs)
	if len(topics) != len(indexedArgs)+1 {
		return model.Decoded{}, fmt.Errorf("%s: expected %d topics, got %d", event.RawName, len(indexedArgs)+1, len(topics))
	}
	// Keyed by topic position: override ABIs may repeat input names.
	positional := make(abi.Arguments, len(indexedArgs))
	for j, arg := range indexedArgs {
		arg.Name = topicKey(j)
		positional[j] = arg
	}
	indexed := make(map[string]interface{}, len(positional))
	if err := abi.ParseTopicsIntoMap(indexed, positional, topics[1:]); err != nil {
		return model.Decoded{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(*event, log.Data)
	if err != nil {
		return model.Decoded{}, err
	}

	decoded := model.Decoded{Name: event.RawName}
	next, nextTopic := 0, 0
	for i, arg := range event.Inputs {
		if i >= model.EventParamCount {
			break
		}
		var value interface{}
		if arg.Indexed {
			value = indexed[topicKey(nextTopic)]
			nextTopic++
		} else {
			if next >= len(values) {
				return model.Decoded{}, fmt.Errorf("%s: missing value for %s", event.RawName, arg.Name)
			}
			value = values[next]
			next++
		}
		formatted := formatValue(value)
		decoded.Values[i] = &formatted
	}

	return decoded, nil
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > common.HashLength {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func topicKey(position int) string {
	return "topic" + strconv.Itoa(position)
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	if dataHex == "" {
		dataHex = "0x"
	}
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	nonIndexed := event.Inputs.NonIndexed()
	if len(nonIndexed) == 0 {
		return nil, nil
	}
	values, err := nonIndexed.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.RawName, err)
	}
	return values, nil
}

// formatValue renders a decoded ABI value the way the event table stores it:
// checksummed addresses, base-10 integers and 0x-prefixed bytes.
func formatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case common.Address:
		return v.Hex()
	case common.Hash:
		return v.Hex()
	case *big.Int:
		if v == nil {
			return "0"
		}
		return v.String()
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case []byte:
		return hexutil.Encode(v)
	case [32]byte:
		return hexutil.Encode(v[:])
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			buf := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(buf), rv)
			return hexutil.Encode(buf)
		}
	}

	parts := []string{}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			parts = append(parts, formatValue(rv.Index(i).Interface()))
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprintf("%v", value)
}
