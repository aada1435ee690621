package chain

import "math"

// LamportsPerSol is the lamport scale of the settlement network.
const LamportsPerSol = 1_000_000_000

// SolToLamports converts a SOL amount from the JSON boundary into lamports.
// Values are rounded to the nearest lamport so 0.1 SOL is exactly 100000000.
func SolToLamports(sol float64) int64 {
	return int64(math.Round(sol * LamportsPerSol))
}

// LamportsToSol converts lamports back to SOL for responses.
func LamportsToSol(lamports int64) float64 {
	return float64(lamports) / LamportsPerSol
}
