package engine

import "math"

func addScore(score, n uint64) (uint64, error) {
	if score > math.MaxUint64-n {
		return score, ErrArithmeticOverflow
	}
	return score + n, nil
}

func addU16(v, n uint16) (uint16, error) {
	if v > math.MaxUint16-n {
		return v, ErrArithmeticOverflow
	}
	return v + n, nil
}

func addU8(v, n uint8) (uint8, error) {
	if v > math.MaxUint8-n {
		return v, ErrArithmeticOverflow
	}
	return v + n, nil
}
