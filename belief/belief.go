// Package belief implements the Bayesian filter over belief-partition
// blocks of a partially observable policy graph. The filter conditions on
// which block the process entered and which noise realization was observed,
// and produces the posterior distribution over nodes.
package belief

import "fmt"

// ImpossibleObservationError reports an observation with zero likelihood
// under the current belief. The update is undefined there (the posterior
// would divide by zero), so the updater refuses rather than returning an
// unnormalized zero belief; on a training path callers treat this as fatal.
type ImpossibleObservationError struct {
	Partition int
	Noise     any
}

func (e *ImpossibleObservationError) Error() string {
	return fmt.Sprintf("observation (partition %d, noise %v) has zero probability under the current belief",
		e.Partition, e.Noise)
}

// Updater carries the transition map, the per-node noise distributions, and
// the ambiguity-set partition.
type Updater[K comparable] struct {
	phi       map[K]map[K]float64
	omega     map[K]map[any]float64
	partition [][]K
	nodes     []K
	block     map[K]int
}

// NewUpdater builds a filter from the node-to-node transition map phi(i, j),
// each node's noise distribution omega[i], and the partition of nodes into
// ambiguity sets. nodes fixes the support and iteration order of beliefs.
func NewUpdater[K comparable](nodes []K, phi map[K]map[K]float64,
	omega map[K]map[any]float64, partition [][]K) *Updater[K] {
	block := make(map[K]int)
	for bi, members := range partition {
		for _, id := range members {
			block[id] = bi
		}
	}
	return &Updater[K]{
		phi:       phi,
		omega:     omega,
		partition: partition,
		nodes:     nodes,
		block:     block,
	}
}

// Update computes the posterior belief after observing that the process
// entered the given partition block and realized the given noise:
//
//	P(Y)          = sum_i b_i * sum_j phi(i, j) * omega_j(noise)
//	P(X'_i)       = sum_j b_j * phi(j, i)
//	posterior_i   = [i in block] * omega_i(noise) * P(X'_i) / P(Y)
func (u *Updater[K]) Update(incoming map[K]float64, observedPartition int, observedNoise any) (map[K]float64, error) {
	if observedPartition < 0 || observedPartition >= len(u.partition) {
		return nil, fmt.Errorf("observed partition index %d out of range [0, %d)", observedPartition, len(u.partition))
	}
	py := 0.0
	for i, bi := range incoming {
		if bi == 0 {
			continue
		}
		for j, p := range u.phi[i] {
			py += bi * p * u.omega[j][observedNoise]
		}
	}
	if py == 0 {
		return nil, &ImpossibleObservationError{Partition: observedPartition, Noise: observedNoise}
	}

	posterior := make(map[K]float64, len(u.nodes))
	for _, i := range u.nodes {
		if !u.inBlock(i, observedPartition) {
			posterior[i] = 0
			continue
		}
		px := 0.0
		for j, bj := range incoming {
			px += bj * u.phi[j][i]
		}
		posterior[i] = u.omega[i][observedNoise] * px / py
	}
	return posterior, nil
}

func (u *Updater[K]) inBlock(id K, partition int) bool {
	bi, ok := u.block[id]
	return ok && bi == partition
}
