package outlook

import "math/rand/v2"

var (
	firstNames = []string{"John", "Jane", "Michael", "Emily", "David", "Sarah", "Robert", "Lisa"}
	lastNames  = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis"}
)

// randomName picks a display name for a contact created by the workflow.
func randomName(rng *rand.Rand) (first, last string) {
	return firstNames[rng.IntN(len(firstNames))], lastNames[rng.IntN(len(lastNames))]
}
