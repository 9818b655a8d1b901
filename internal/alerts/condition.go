package alerts

import (
	"strconv"
	"strings"

	"github.com/driftguard/driftguard/pkg/types"
)

// evalCondition evaluates a rule condition string against a channel snapshot.
//
// Supported expressions (field operator value):
//
//	value > 95
//	slope > 0.05
//	raw_slope > 0.2
//	ttf_ms < 60000
//	status == drifting_up
//	status == faulted
//	liveness == dead
//	drifting == true
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is
// unknown. A ttf_ms condition never fires while the channel has no valid
// projection.
func evalCondition(cond string, snap *types.Snapshot) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	switch field {
	case "status":
		if op == "==" {
			return snap.Status == rhs, 0
		}
		if op == "!=" {
			return snap.Status != rhs, 0
		}
		return false, 0

	case "liveness":
		if op == "==" {
			return snap.Liveness == rhs, 0
		}
		if op == "!=" {
			return snap.Liveness != rhs, 0
		}
		return false, 0

	case "drifting":
		if op == "==" {
			want, err := strconv.ParseBool(rhs)
			if err != nil {
				return false, 0
			}
			return snap.Drifting == want, 0
		}
		return false, 0

	case "ttf_ms":
		if !snap.HasTTF {
			return false, 0
		}
		threshold, err := strconv.ParseFloat(rhs, 64)
		if err != nil {
			return false, 0
		}
		return compareFloat(snap.TTFMillis, op, threshold), snap.TTFMillis

	default:
		v, ok := numericField(field, snap)
		if !ok {
			return false, 0
		}
		threshold, err := strconv.ParseFloat(rhs, 64)
		if err != nil {
			return false, 0
		}
		return compareFloat(v, op, threshold), v
	}
}

// evalGroupCondition evaluates a rule condition against a group snapshot.
//
// Supported expressions:
//
//	group_value > 95
//	confidence < 0.7
//	spread > 2.0
//	active < 3
//	group_state == no_quorum
//	group_state == disagree
func evalGroupCondition(cond string, snap *types.GroupSnapshot) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if field == "group_state" {
		if op == "==" {
			return snap.State == rhs, 0
		}
		if op == "!=" {
			return snap.State != rhs, 0
		}
		return false, 0
	}

	var v float64
	switch field {
	case "group_value":
		v = snap.Value
	case "confidence":
		v = snap.Confidence
	case "spread":
		v = snap.Spread
	case "active":
		v = float64(snap.Active)
	default:
		return false, 0
	}

	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// numericField maps a field name to its value in the channel snapshot.
func numericField(field string, snap *types.Snapshot) (float64, bool) {
	switch field {
	case "value":
		return snap.Value, true
	case "slope":
		return snap.Slope, true
	case "raw_slope":
		return snap.RawSlope, true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
