package privacy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNotInitialized is returned when an operation is attempted without a
// bound session.
var ErrNotInitialized = errors.New("orchestrator not initialized: no session bound")

// blockhashPatterns are the failure signatures of a transaction whose
// blockhash validity window closed before submission. Proof generation is
// slow enough that this is an expected race, not an anomaly.
var blockhashPatterns = []string{
	"block height exceeded",
	"has expired",
}

// IsBlockhashExpired reports whether the error looks like blockhash expiry.
// Besides the direct patterns, a message mentioning both a signature and
// expiry counts: some nodes phrase the same condition that way.
func IsBlockhashExpired(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range blockhashPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return strings.Contains(msg, "signature") && strings.Contains(msg, "expired")
}

// IndexingTimeoutError is returned when a deposit's UTXOs never became
// visible through the SDK's read path within the polling window. The funds
// are not lost, only not yet indexed; the deposit signature lets the caller
// resume manually.
type IndexingTimeoutError struct {
	ObservedLamports uint64
	ExpectedLamports uint64
	Polls            int
	DepositSignature string
}

func (e *IndexingTimeoutError) Error() string {
	observed := decimal.NewFromUint64(e.ObservedLamports).Shift(-9)
	expected := decimal.NewFromUint64(e.ExpectedLamports).Shift(-9)
	return fmt.Sprintf(
		"private balance not indexed after %d polls: observed %s SOL, expected %s SOL (deposit %s landed; funds are safe but not yet visible)",
		e.Polls, observed.String(), expected.String(), e.DepositSignature,
	)
}
