package history

import random "github.com/mazen160/go-random"

const batchLength = 8

// NewBatch returns a random identifier for the runs of one invocation.
func NewBatch() (string, error) {
	return random.String(batchLength)
}
