package query

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"txTracker/internal/model"
	"txTracker/internal/storage"
)

var (
	// ErrValidation marks client input errors.
	ErrValidation = errors.New("invalid request")
	// ErrUpstream marks a dependency that is unreachable or timed out.
	ErrUpstream = errors.New("upstream unavailable")
	// ErrPersistence marks a failed store read.
	ErrPersistence = errors.New("persistence failure")
)

// DefaultMaxTake caps the page size when none is configured.
const DefaultMaxTake = 1000

// ListParams are the inputs of ListTransactions.
type ListParams struct {
	To   string
	Skip int
	Take int
}

// Service answers the read-only listings.
type Service struct {
	reader  storage.Reader
	maxTake int
}

func NewService(reader storage.Reader, maxTake int) *Service {
	if maxTake <= 0 {
		maxTake = DefaultMaxTake
	}
	return &Service{reader: reader, maxTake: maxTake}
}

// ParseListParams reads to, skip and take from a query string. skip and take are required.
func ParseListParams(values url.Values) (ListParams, error) {
	skip, err := requiredInt(values, "skip")
	if err != nil {
		return ListParams{}, err
	}
	take, err := requiredInt(values, "take")
	if err != nil {
		return ListParams{}, err
	}
	return ListParams{
		To:   strings.TrimSpace(values.Get("to")),
		Skip: skip,
		Take: take,
	}, nil
}

func requiredInt(values url.Values, key string) (int, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", ErrValidation, key)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrValidation, key)
	}
	return n, nil
}

// ListTransactions returns a page of transactions ordered by block number descending.
// A non-empty To is matched against the checksummed recipient.
func (s *Service) ListTransactions(ctx context.Context, params ListParams) ([]model.Transaction, error) {
	if params.Skip < 0 {
		return nil, fmt.Errorf("%w: skip must be >= 0", ErrValidation)
	}
	if params.Take < 1 || params.Take > s.maxTake {
		return nil, fmt.Errorf("%w: take must be between 1 and %d", ErrValidation, s.maxTake)
	}

	to := ""
	if params.To != "" {
		if !common.IsHexAddress(params.To) {
			return nil, fmt.Errorf("%w: to is not an address", ErrValidation)
		}
		to = common.HexToAddress(params.To).Hex()
	}

	txs, err := s.reader.ListTransactions(ctx, to, params.Skip, params.Take)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	return txs, nil
}

// ListAnomalousEvents returns locked transfers followed by burns, sorted ascending by block
// number. An event that is both appears twice.
func (s *Service) ListAnomalousEvents(ctx context.Context) ([]model.Event, error) {
	locked, err := s.reader.LockedEvents(ctx)
	if err != nil {
		return nil, classify(ctx, err)
	}
	burnt, err := s.reader.EventsWithP1(ctx, model.BurnAddress)
	if err != nil {
		return nil, classify(ctx, err)
	}

	events := make([]model.Event, 0, len(locked)+len(burnt))
	events = append(events, locked...)
	events = append(events, burnt...)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].BlockNumber < events[j].BlockNumber
	})
	return events, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}
