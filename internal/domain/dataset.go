package domain

import (
	"fmt"
	"slices"
)

// RankingInstance is one distinct ranking of a dataset together with the
// number of voters or observations that produced it.
type RankingInstance struct {
	Ranking Ranking
	Count   int
}

// RankAggregationDataset is an immutable weighted multiset of rankings over a
// fixed universe of labels. It is consumed read-only by aggregators and
// loss functions and is safe for concurrent use.
type RankAggregationDataset struct {
	labels    []int
	labelSet  map[int]struct{}
	instances []RankingInstance
}

// NewRankAggregationDataset validates and builds a dataset. Labels must be
// non-empty and unique, every ranked object must be a label, and every
// count must be positive.
func NewRankAggregationDataset(labels []int, instances []RankingInstance) (*RankAggregationDataset, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: label set is empty", ErrInvalidDataset)
	}
	labelSet := make(map[int]struct{}, len(labels))
	for _, l := range labels {
		if _, dup := labelSet[l]; dup {
			return nil, fmt.Errorf("%w: duplicate label %d", ErrInvalidDataset, l)
		}
		labelSet[l] = struct{}{}
	}

	for i, inst := range instances {
		if inst.Ranking.IsZero() {
			return nil, fmt.Errorf("%w: instance %d has no ranking", ErrInvalidDataset, i)
		}
		if inst.Count <= 0 {
			return nil, fmt.Errorf("%w: instance %d has non-positive count %d", ErrInvalidDataset, i, inst.Count)
		}
		for _, obj := range inst.Ranking.objects {
			if _, ok := labelSet[obj]; !ok {
				return nil, fmt.Errorf("%w: instance %d ranks object %d outside the label set", ErrInvalidDataset, i, obj)
			}
		}
	}

	sorted := slices.Clone(labels)
	slices.Sort(sorted)
	return &RankAggregationDataset{
		labels:    sorted,
		labelSet:  labelSet,
		instances: slices.Clone(instances),
	}, nil
}

// NumberOfInstances returns the number of distinct ranking instances.
func (d *RankAggregationDataset) NumberOfInstances() int { return len(d.instances) }

// InstanceAt returns the i-th instance.
func (d *RankAggregationDataset) InstanceAt(i int) RankingInstance { return d.instances[i] }

// Instances returns a copy of all instances in dataset order.
func (d *RankAggregationDataset) Instances() []RankingInstance { return slices.Clone(d.instances) }

// Labels returns the label universe in ascending order.
func (d *RankAggregationDataset) Labels() []int { return slices.Clone(d.labels) }

// NumberOfLabels returns the size of the label universe.
func (d *RankAggregationDataset) NumberOfLabels() int { return len(d.labels) }

// ContainsLabel reports whether l belongs to the label universe.
func (d *RankAggregationDataset) ContainsLabel(l int) bool {
	_, ok := d.labelSet[l]
	return ok
}

// TotalCount returns the sum of all instance counts.
func (d *RankAggregationDataset) TotalCount() int {
	total := 0
	for _, inst := range d.instances {
		total += inst.Count
	}
	return total
}

// DatasetBuilder accumulates rankings into a RankAggregationDataset.
// Structurally equal rankings are merged into one instance whose count is
// the sum of the added counts; instances keep first-seen order.
// A DatasetBuilder is not safe for concurrent use.
type DatasetBuilder struct {
	labels    []int
	instances []RankingInstance
	index     map[string]int
}

// NewDatasetBuilder creates a builder over the given label universe.
func NewDatasetBuilder(labels []int) *DatasetBuilder {
	return &DatasetBuilder{
		labels: slices.Clone(labels),
		index:  make(map[string]int),
	}
}

// Add records count observations of r. Validation is deferred to Build.
func (b *DatasetBuilder) Add(r Ranking, count int) *DatasetBuilder {
	key := r.String()
	if i, ok := b.index[key]; ok {
		b.instances[i].Count += count
		return b
	}
	b.index[key] = len(b.instances)
	b.instances = append(b.instances, RankingInstance{Ranking: r, Count: count})
	return b
}

// Build validates the accumulated instances and returns the dataset.
func (b *DatasetBuilder) Build() (*RankAggregationDataset, error) {
	return NewRankAggregationDataset(b.labels, b.instances)
}
