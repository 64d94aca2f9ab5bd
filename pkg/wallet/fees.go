package wallet

import "fmt"

const basisPointsDenominator = 10000

// FeeSchedule is the closed per-method-type fee table, expressed in basis
// points. Lookups fail closed: a method type without a configured rate is
// rejected, never defaulted.
type FeeSchedule struct {
	ratesBps map[MethodType]int64
}

// NewFeeSchedule validates the fee table at startup. Every known method type
// must carry a rate in [0, 10000].
func NewFeeSchedule(ratesBps map[MethodType]int64) (FeeSchedule, error) {
	if len(ratesBps) == 0 {
		return FeeSchedule{}, fmt.Errorf("%w: no rates configured", ErrInvalidFeeSchedule)
	}
	validated := make(map[MethodType]int64, len(ratesBps))
	for methodType, rateBps := range ratesBps {
		if _, err := ParseMethodType(methodType.String()); err != nil {
			return FeeSchedule{}, fmt.Errorf("%w: %v", ErrInvalidFeeSchedule, err)
		}
		if rateBps < 0 || rateBps > basisPointsDenominator {
			return FeeSchedule{}, fmt.Errorf("%w: rate %d out of range for %s", ErrInvalidFeeSchedule, rateBps, methodType)
		}
		validated[methodType] = rateBps
	}
	for _, required := range []MethodType{MethodBank, MethodMobileMoney} {
		if _, present := validated[required]; !present {
			return FeeSchedule{}, fmt.Errorf("%w: missing rate for %s", ErrInvalidFeeSchedule, required)
		}
	}
	return FeeSchedule{ratesBps: validated}, nil
}

// RateBps returns the configured rate for a method type.
func (schedule FeeSchedule) RateBps(methodType MethodType) (int64, error) {
	rateBps, present := schedule.ratesBps[methodType]
	if !present {
		return 0, fmt.Errorf("%w: no rate for %s", ErrInvalidFeeSchedule, methodType)
	}
	return rateBps, nil
}

// ComputeFee applies a basis-point rate to an amount, truncating toward zero.
func ComputeFee(amount AmountCents, rateBps int64) int64 {
	return amount.Int64() * rateBps / basisPointsDenominator
}
