package entity

import (
	"strconv"
	"strings"
)

// ConnectionContext identifies the account and chain a computation runs
// against. It is passed explicitly into every core operation so the engine
// never depends on ambient wallet state.
type ConnectionContext struct {
	Address string `json:"address"`
	ChainID uint64 `json:"chainId"`
}

// Key returns a stable identity for this connection, used by the poller to
// discard results from superseded refresh cycles after an account or chain
// switch.
func (c ConnectionContext) Key() string {
	return strings.ToLower(c.Address) + "@" + strconv.FormatUint(c.ChainID, 10)
}
