package generator

type Pair struct {
	Weight float64
	Value  string
}

// DiscreteGenerator generates a distribution by choosing from a discrete set
// of values weighted by their Weight. Once built, NextString() only reads the
// value set and draws from the locked package random source, so it is safe
// to sample from concurrent goroutines.
type DiscreteGenerator struct {
	values    []*Pair
	lastValue string
}

func NewDiscreteGenerator() *DiscreteGenerator {
	return &DiscreteGenerator{
		values:    make([]*Pair, 0),
		lastValue: "",
	}
}

func (self *DiscreteGenerator) NextString() string {
	var sum float64
	for _, p := range self.values {
		sum += p.Weight
	}

	value := NextFloat64()

	for _, p := range self.values {
		v := p.Weight / sum
		if value < v {
			return p.Value
		}
		value -= v
	}

	// rounding may leave a sliver of probability mass at the top end
	return self.values[len(self.values)-1].Value
}

func (self *DiscreteGenerator) LastString() string {
	if len(self.lastValue) == 0 {
		self.lastValue = self.NextString()
	}
	return self.lastValue
}

func (self *DiscreteGenerator) AddValue(weight float64, value string) {
	self.values = append(self.values, &Pair{
		Weight: weight,
		Value:  value,
	})
}
