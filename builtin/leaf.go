package builtin

import (
	"math"
	"math/bits"
)

// modInt64 returns 0 for a zero divisor; callers check the divisor before
// the call.
func modInt64(a, b uint64) uint64 {
	x, y := int64(a), int64(b)
	if y == 0 {
		return 0
	}
	r := x % y
	if r < 0 {
		if y < 0 {
			r -= y
		} else {
			r += y
		}
	}
	return uint64(r)
}

func mulHighInt64(a, b uint64) uint64 {
	hi, _ := bits.Mul64(a, b)
	if int64(a) < 0 {
		hi -= b
	}
	if int64(b) < 0 {
		hi -= a
	}
	return hi
}

func popCount(a uint64) uint64 {
	return uint64(bits.OnesCount64(a))
}

func libcPow(x, y float64) float64 { return math.Pow(x, y) }

func libcAtan2(y, x float64) float64 { return math.Atan2(y, x) }

func floatModulo(a, b float64) float64 {
	r := math.Mod(a, b)
	if r == 0 {
		return 0
	}
	if r < 0 {
		if b < 0 {
			r -= b
		} else {
			r += b
		}
	}
	return r
}

func libcFloor(x float64) float64 { return math.Floor(x) }

func libcCeil(x float64) float64 { return math.Ceil(x) }

func libcTrunc(x float64) float64 { return math.Trunc(x) }

func libcRound(x float64) float64 { return math.Round(x) }

func libcExp(x float64) float64 { return math.Exp(x) }

func libcLog(x float64) float64 { return math.Log(x) }
