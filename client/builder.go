package client

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
)

// OperationKind tags an operation request with the feature that produced it.
type OperationKind string

const (
	OpTransfer        OperationKind = "transfer"
	OpSwap            OperationKind = "swap"
	OpAddLiquidity    OperationKind = "add-liquidity"
	OpRemoveLiquidity OperationKind = "remove-liquidity"
	OpPlaceOrder      OperationKind = "place-order"
	OpCancelOrder     OperationKind = "cancel-order"
	OpSupply          OperationKind = "supply"
	OpBorrow          OperationKind = "borrow"
	OpRepay           OperationKind = "repay"
	OpWithdraw        OperationKind = "withdraw"
	OpStake           OperationKind = "stake"
	OpDeploy          OperationKind = "deploy"
	OpComplianceCheck OperationKind = "compliance-check"
	OpTreasuryDeposit OperationKind = "treasury-deposit"
)

var catalog = map[OperationKind]struct{}{
	OpTransfer:        {},
	OpSwap:            {},
	OpAddLiquidity:    {},
	OpRemoveLiquidity: {},
	OpPlaceOrder:      {},
	OpCancelOrder:     {},
	OpSupply:          {},
	OpBorrow:          {},
	OpRepay:           {},
	OpWithdraw:        {},
	OpStake:           {},
	OpDeploy:          {},
	OpComplianceCheck: {},
	OpTreasuryDeposit: {},
}

// Valid reports whether k is in the operation catalog.
func (k OperationKind) Valid() bool {
	_, ok := catalog[k]
	return ok
}

// OperationKinds returns the operation catalog in lexical order.
func OperationKinds() []OperationKind {
	kinds := make([]OperationKind, 0, len(catalog))
	for k := range catalog {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// OperationRequest is the canonical transfer-shaped request submitted to the signer.
type OperationRequest struct {
	Kind             OperationKind  `json:"kind"`
	RecipientAddress string         `json:"recipient_address"`
	AmountBaseUnits  uint64         `json:"amount_base_units"`
	FeeBaseUnits     uint64         `json:"fee_base_units"`
	Metadata         map[string]any `json:"metadata,omitempty"`

	// AmountClamped is set when the requested amount was below the minimum
	// and AmountBaseUnits was raised to it. RequestedBaseUnits keeps the
	// caller's value.
	AmountClamped      bool   `json:"amount_clamped,omitempty"`
	RequestedBaseUnits uint64 `json:"requested_base_units,omitempty"`
}

// BuildParams are the caller-supplied inputs to Build. Nil pointers mean
// "use the default".
type BuildParams struct {
	Recipient string         `json:"recipient,omitempty"`
	Amount    *float64       `json:"amount,omitempty"`
	Fee       *uint64        `json:"fee,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Ptr returns a pointer to v, for filling optional BuildParams fields.
func Ptr[T any](v T) *T {
	return &v
}

// Builder constructs operation requests. It performs no I/O.
type Builder struct {
	treasury   string
	minDisplay float64
	defaultFee uint64
	logger     *slog.Logger
}

// NewBuilder creates a builder that sends recipient-less operations to
// treasury. An empty treasury selects DefaultTreasuryAddress.
func NewBuilder(treasury string, logger *slog.Logger) *Builder {
	if treasury == "" {
		treasury = DefaultTreasuryAddress
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Builder{
		treasury:   treasury,
		minDisplay: MinDisplayAmount,
		defaultFee: DefaultFeeBaseUnits,
		logger:     logger,
	}
}

// Build resolves params into an OperationRequest for kind.
//
// Amounts below the minimum are raised to it rather than rejected; the
// returned request reports this through AmountClamped.
func (b *Builder) Build(kind OperationKind, params BuildParams) (*OperationRequest, error) {
	if !kind.Valid() {
		return nil, NewError(KindValidation, fmt.Sprintf("unknown operation kind %q", kind), nil)
	}

	minBase, err := ToBaseUnits(b.minDisplay)
	if err != nil {
		return nil, err
	}

	req := &OperationRequest{
		Kind:             kind,
		RecipientAddress: params.Recipient,
		AmountBaseUnits:  minBase,
		FeeBaseUnits:     b.defaultFee,
		Metadata:         params.Metadata,
	}
	if req.RecipientAddress == "" {
		req.RecipientAddress = b.treasury
	}
	if params.Fee != nil {
		req.FeeBaseUnits = *params.Fee
	}

	if params.Amount != nil {
		requested, err := ToBaseUnits(*params.Amount)
		if err != nil {
			return nil, err
		}
		if requested < minBase {
			req.AmountClamped = true
			req.RequestedBaseUnits = requested
			b.logger.Warn("amount below minimum, clamping",
				"kind", kind,
				"requested_base_units", requested,
				"amount_base_units", minBase,
			)
		} else {
			req.AmountBaseUnits = requested
		}
	}

	return req, nil
}
