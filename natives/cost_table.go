// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package natives

// CostIndex identifies a native function in a CostTable.
type CostIndex uint8

const (
	ED25519ValidateKey CostIndex = iota
	ED25519Verify
)

// GasCost is the per-unit cost of a native function.
type GasCost struct {
	Instruction uint64
	Memory      uint64
}

func (c GasCost) Total() uint64 { return c.Instruction + c.Memory }

// CostTable maps each native function to its per-unit cost.
// A missing entry costs nothing.
type CostTable map[CostIndex]GasCost

// DefaultCostTable is used when the executor is not configured otherwise.
var DefaultCostTable = CostTable{
	ED25519ValidateKey: {Instruction: 26, Memory: 1},
	ED25519Verify:      {Instruction: 61, Memory: 1},
}

// NativeGas returns the cost of calling [index] on an input of [size] bytes.
// Empty inputs are charged as a single unit.
func (t CostTable) NativeGas(index CostIndex, size int) uint64 {
	if size < 1 {
		size = 1
	}
	return t[index].Total() * uint64(size)
}
