package deopt

// Reason identifies why optimized code was abandoned.
type Reason uint8

const (
	ReasonBinarySmiOp Reason = iota
	ReasonBinaryInt64Op
	ReasonDoubleToSmi
	ReasonCheckSmi
	ReasonCheckClass
	ReasonUnknown
	ReasonPolymorphicInstanceCallTestFail
	ReasonUnaryInt64Op
	ReasonBinaryDoubleOp
	ReasonUnaryOp
	ReasonUnboxInteger
	ReasonUnbox
	ReasonCheckArrayBound
	ReasonAtCall
	ReasonGuardField
	ReasonTestCids
	NumReasons
)

// UnrecognizedReason is rendered for codes outside the defined range.
const UnrecognizedReason = "<unrecognized deopt reason>"

var reasonNames = [NumReasons]string{
	ReasonBinarySmiOp:                     "BinarySmiOp",
	ReasonBinaryInt64Op:                   "BinaryInt64Op",
	ReasonDoubleToSmi:                     "DoubleToSmi",
	ReasonCheckSmi:                        "CheckSmi",
	ReasonCheckClass:                      "CheckClass",
	ReasonUnknown:                         "Unknown",
	ReasonPolymorphicInstanceCallTestFail: "PolymorphicInstanceCallTestFail",
	ReasonUnaryInt64Op:                    "UnaryInt64Op",
	ReasonBinaryDoubleOp:                  "BinaryDoubleOp",
	ReasonUnaryOp:                         "UnaryOp",
	ReasonUnboxInteger:                    "UnboxInteger",
	ReasonUnbox:                           "Unbox",
	ReasonCheckArrayBound:                 "CheckArrayBound",
	ReasonAtCall:                          "AtCall",
	ReasonGuardField:                      "GuardField",
	ReasonTestCids:                        "TestCids",
}

func (r Reason) String() string {
	return ReasonToString(r)
}

// ReasonToString renders a deoptimization cause for logs. It never fails.
func ReasonToString(r Reason) string {
	if r >= NumReasons {
		return UnrecognizedReason
	}
	return reasonNames[r]
}
